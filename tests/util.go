// Package testutil creates fixtures through the repositories, bypassing service validation.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateTeacher(t *testing.T, repo academic.Repository, usr user.User, specialty string) academic.Teacher {
	t.Helper()
	teacher, err := repo.CreateTeacher(context.Background(), academic.Teacher{
		ID:        uuid.NewString(),
		UserID:    usr.ID,
		Specialty: specialty,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return teacher
}

func CreateStudent(
	t *testing.T,
	repo academic.Repository,
	representative user.User,
	firstName, lastName, idNumber, grade, section string,
) academic.Student {
	t.Helper()
	st, err := repo.CreateStudent(context.Background(), academic.Student{
		ID:               uuid.NewString(),
		RepresentativeID: representative.ID,
		FirstName:        firstName,
		LastName:         lastName,
		IDNumber:         idNumber,
		BirthDate:        academic.NewDate(2012, time.March, 9),
		CurrentGrade:     grade,
		Section:          section,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

// CreateSubject assigns the subject to teacher, if given.
func CreateSubject(
	t *testing.T,
	repo academic.Repository,
	name, grade, section string,
	teacher ...academic.Teacher,
) academic.Subject {
	t.Helper()
	subj := academic.Subject{ID: uuid.NewString(), Name: name, GradeLevel: grade, Section: section}
	if len(teacher) > 0 {
		subj.TeacherID = null.StringFrom(teacher[0].ID)
	}
	subj, err := repo.CreateSubject(context.Background(), subj)
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subj
}

func CreateEvaluation(
	t *testing.T,
	repo academic.Repository,
	subj academic.Subject,
	name, percentage string,
	term int,
) academic.Evaluation {
	t.Helper()
	ev, err := repo.CreateEvaluation(context.Background(), academic.Evaluation{
		ID:         uuid.NewString(),
		SubjectID:  subj.ID,
		Name:       name,
		Percentage: decimal.RequireFromString(percentage),
		Term:       term,
		Date:       academic.NewDate(2024, time.October, 14),
	})
	if err != nil {
		t.Fatalf("CreateEvaluation() failed: %v", err)
	}
	return ev
}

func CreateGrade(
	t *testing.T,
	repo academic.Repository,
	st academic.Student,
	ev academic.Evaluation,
	score string,
) academic.Grade {
	t.Helper()
	g, err := repo.CreateGrade(context.Background(), academic.Grade{
		ID:           uuid.NewString(),
		StudentID:    st.ID,
		EvaluationID: ev.ID,
		Score:        decimal.RequireFromString(score),
	})
	if err != nil {
		t.Fatalf("CreateGrade() failed: %v", err)
	}
	return g
}

// CreateSchedule stores the block as is, without conflict checking.
func CreateSchedule(
	t *testing.T,
	repo academic.Repository,
	subj academic.Subject,
	day academic.Day,
	start, end academic.Clock,
) academic.Schedule {
	t.Helper()
	sch, err := repo.CreateSchedule(context.Background(), academic.Schedule{
		ID:        uuid.NewString(),
		SubjectID: subj.ID,
		Day:       day,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		t.Fatalf("CreateSchedule() failed: %v", err)
	}
	return sch
}

func CreateRate(t *testing.T, repo billing.Repository, date academic.Date, rate string) billing.ExchangeRate {
	t.Helper()
	r, err := repo.CreateRate(context.Background(), billing.ExchangeRate{
		ID:   uuid.NewString(),
		Date: date,
		Rate: decimal.RequireFromString(rate),
	})
	if err != nil {
		t.Fatalf("CreateRate() failed: %v", err)
	}
	return r
}

func CreateConcept(t *testing.T, repo billing.Repository, name, amountUSD string) billing.PaymentConcept {
	t.Helper()
	pc, err := repo.CreateConcept(context.Background(), billing.PaymentConcept{
		ID:        uuid.NewString(),
		Name:      name,
		AmountUSD: decimal.RequireFromString(amountUSD),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateConcept() failed: %v", err)
	}
	return pc
}

// CreatePayment stores a PENDING payment converted at rate.
func CreatePayment(
	t *testing.T,
	repo billing.Repository,
	st academic.Student,
	reference, amountUSD, rate string,
) billing.Payment {
	t.Helper()
	usd, r := decimal.RequireFromString(amountUSD), decimal.RequireFromString(rate)
	p, err := repo.CreatePayment(context.Background(), billing.Payment{
		ID:              uuid.NewString(),
		StudentID:       st.ID,
		AmountUSD:       usd,
		AmountBs:        billing.AmountInBs(usd, r),
		RateApplied:     r,
		DateReported:    time.Now().UTC(),
		Concept:         "Mensualidad",
		ReferenceNumber: reference,
		ProofImage:      "payments/" + reference + ".png",
		Status:          billing.StatusPending,
	})
	if err != nil {
		t.Fatalf("CreatePayment() failed: %v", err)
	}
	return p
}
