package academic

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	Terms = 3

	reportDecimals = 2
)

var (
	maxScore  = decimal.NewFromInt(20)
	maxWeight = decimal.NewFromInt(100)
	hundred   = decimal.NewFromInt(100)
	termCount = decimal.NewFromInt(Terms)
)

// GradeEntry is one grade joined to its evaluation.
type GradeEntry struct {
	GradeID     string          `db:"grade_id"`
	SubjectName string          `db:"subject_name"`
	Term        int             `db:"term"`
	Weight      decimal.Decimal `db:"weight"` // percentage of the term, 0-100
	Score       decimal.Decimal `db:"score"`  // 0-20
}

func (e GradeEntry) validate() error {
	invalid := func(field, reason string) error {
		return &InvalidInputError{Record: "grade", ID: e.GradeID, Field: field, Reason: reason}
	}
	switch {
	case e.Score.IsNegative():
		return invalid("score", "must not be negative")
	case e.Score.GreaterThan(maxScore):
		return invalid("score", "must not be greater than 20")
	case e.Weight.IsNegative():
		return invalid("weight", "must not be negative")
	case e.Weight.GreaterThan(maxWeight):
		return invalid("weight", "must not be greater than 100")
	case e.Term < 1 || e.Term > Terms:
		return invalid("term", "must be 1, 2 or 3")
	}
	return nil
}

// SubjectScores holds the exact (unrounded) aggregation of one subject.
type SubjectScores struct {
	Subject string
	Terms   [Terms]decimal.Decimal
	Final   decimal.Decimal
}

// Term returns the subtotal of term n (1-based).
func (s SubjectScores) Term(n int) decimal.Decimal {
	return s.Terms[n-1]
}

// ReportCard lists subjects in byte-wise order of their names.
// Subjects without any grade are absent.
type ReportCard struct {
	Subjects []SubjectScores
}

// ReportRow is a report card line rendered to 2 decimal places.
type ReportRow struct {
	Subject string `json:"subject"`
	Term1   string `json:"1"`
	Term2   string `json:"2"`
	Term3   string `json:"3"`
	Final   string `json:"final"`
}

// AggregateGrades computes per-subject term subtotals and final averages.
//
// Each grade contributes score*weight/100 to its term subtotal and the final score
// is the mean of the 3 term subtotals, missing terms counting as 0.
// Arithmetic is exact; rounding only happens when rendering (Rows, Map).
// The first invalid entry fails the whole aggregation.
func AggregateGrades(entries []GradeEntry) (ReportCard, error) {
	bySubject := make(map[string]*SubjectScores)
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return ReportCard{}, err
		}
		scores, ok := bySubject[e.SubjectName]
		if !ok {
			scores = &SubjectScores{Subject: e.SubjectName}
			bySubject[e.SubjectName] = scores
		}
		contribution := e.Score.Mul(e.Weight).Div(hundred)
		scores.Terms[e.Term-1] = scores.Terms[e.Term-1].Add(contribution)
	}

	card := ReportCard{Subjects: make([]SubjectScores, 0, len(bySubject))}
	for _, scores := range bySubject {
		sum := decimal.Zero
		for _, subtotal := range scores.Terms {
			sum = sum.Add(subtotal)
		}
		scores.Final = sum.Div(termCount)
		card.Subjects = append(card.Subjects, *scores)
	}
	sort.Slice(card.Subjects, func(i, j int) bool {
		return card.Subjects[i].Subject < card.Subjects[j].Subject
	})
	return card, nil
}

// Subject returns the scores of the named subject, if graded.
func (rc ReportCard) Subject(name string) (SubjectScores, bool) {
	for _, s := range rc.Subjects {
		if s.Subject == name {
			return s, true
		}
	}
	return SubjectScores{}, false
}

// Rows renders the report card with 2 decimal places (half-up).
func (rc ReportCard) Rows() []ReportRow {
	rows := make([]ReportRow, 0, len(rc.Subjects))
	for _, s := range rc.Subjects {
		rows = append(rows, ReportRow{
			Subject: s.Subject,
			Term1:   s.Terms[0].StringFixed(reportDecimals),
			Term2:   s.Terms[1].StringFixed(reportDecimals),
			Term3:   s.Terms[2].StringFixed(reportDecimals),
			Final:   s.Final.StringFixed(reportDecimals),
		})
	}
	return rows
}

// Map renders the report card as subject -> {"1","2","3","final"} -> score,
// rounded to 2 decimal places.
func (rc ReportCard) Map() map[string]map[string]decimal.Decimal {
	m := make(map[string]map[string]decimal.Decimal, len(rc.Subjects))
	for _, s := range rc.Subjects {
		entry := make(map[string]decimal.Decimal, Terms+1)
		for i, subtotal := range s.Terms {
			entry[strconv.Itoa(i+1)] = subtotal.Round(reportDecimals)
		}
		entry["final"] = s.Final.Round(reportDecimals)
		m[s.Subject] = entry
	}
	return m
}
