package academic

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
)

type Teacher struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	Specialty string `json:"specialty" db:"specialty"`

	// from user
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

type Student struct {
	ID               string `json:"id" db:"id"`
	RepresentativeID string `json:"representative_id" db:"representative_id"`
	FirstName        string `json:"first_name" db:"first_name"`
	LastName         string `json:"last_name" db:"last_name"`
	IDNumber         string `json:"id_number" db:"id_number"` // cédula / cédula escolar
	BirthDate        Date   `json:"birth_date" db:"birth_date"`
	CurrentGrade     string `json:"current_grade" db:"current_grade"` // e.g. "1er Año"
	Section          string `json:"section" db:"section"`
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

type Subject struct {
	ID         string      `json:"id" db:"id"`
	Name       string      `json:"name" db:"name"`
	GradeLevel string      `json:"grade_level" db:"grade_level"`
	Section    string      `json:"section" db:"section"`
	TeacherID  null.String `json:"teacher_id" db:"teacher_id"`
}

type Evaluation struct {
	ID         string          `json:"id" db:"id"`
	SubjectID  string          `json:"subject_id" db:"subject_id"`
	Name       string          `json:"name" db:"name"`
	Percentage decimal.Decimal `json:"percentage" db:"percentage"`
	Term       int             `json:"lapso" db:"lapso"`
	Date       Date            `json:"date" db:"date"`
}

type Grade struct {
	ID           string          `json:"id" db:"id"`
	StudentID    string          `json:"student_id" db:"student_id"`
	EvaluationID string          `json:"evaluation_id" db:"evaluation_id"`
	Score        decimal.Decimal `json:"score" db:"score"`

	// from evaluation & subject
	EvaluationName string `json:"evaluation_name" db:"evaluation_name"`
	EvaluationDate Date   `json:"evaluation_date" db:"evaluation_date"`
	Term           int    `json:"evaluation_lapso" db:"evaluation_lapso"`
	SubjectID      string `json:"subject_id" db:"subject_id"`
	SubjectName    string `json:"subject_name" db:"subject_name"`
}

type Schedule struct {
	ID        string `json:"id" db:"id"`
	SubjectID string `json:"subject_id" db:"subject_id"`
	Day       Day    `json:"day" db:"day"`
	StartTime Clock  `json:"start_time" db:"start_time"`
	EndTime   Clock  `json:"end_time" db:"end_time"`
	Room      string `json:"room" db:"room"`

	// from subject
	SubjectName string `json:"subject_name" db:"subject_name"`
	GradeLevel  string `json:"grade_level" db:"grade_level"`
	Section     string `json:"section" db:"section"`
}

// Block locates the schedule in its subject's partition.
func (s Schedule) Block() Block {
	return Block{
		ID:         s.ID,
		SubjectID:  s.SubjectID,
		Subject:    s.SubjectName,
		GradeLevel: s.GradeLevel,
		Section:    s.Section,
		Day:        s.Day,
		Start:      s.StartTime,
		End:        s.EndTime,
	}
}

// Inputs

type NewTeacher struct {
	UserID    string `json:"user_id" validate:"required,uuid"`
	Specialty string `json:"specialty" validate:"max=100"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Specialty = core.CleanString(nt.Specialty)
	return validate.Struct(nt)
}

type UpdateTeacher struct {
	Specialty *string `json:"specialty" validate:"omitempty,max=100"`
}

func (ut UpdateTeacher) Validate(validate *validator.Validate) error { return validate.Struct(ut) }

type NewStudent struct {
	RepresentativeID string `json:"representative_id" validate:"required,uuid"`
	FirstName        string `json:"first_name" validate:"required,max=100"`
	LastName         string `json:"last_name" validate:"required,max=100"`
	IDNumber         string `json:"id_number" validate:"required,max=20"`
	BirthDate        Date   `json:"birth_date"`
	CurrentGrade     string `json:"current_grade" validate:"required,max=20"`
	Section          string `json:"section" validate:"required,max=5"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.IDNumber = core.CleanString(ns.IDNumber)
	ns.CurrentGrade = core.CleanString(ns.CurrentGrade)
	ns.Section = core.CleanString(ns.Section)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	if ns.BirthDate.IsZero() {
		return core.NewFieldValidationError("birth_date", errRequired)
	}
	return nil
}

type UpdateStudent struct {
	RepresentativeID *string `json:"representative_id" validate:"omitempty,uuid"`
	FirstName        *string `json:"first_name" validate:"omitempty,max=100"`
	LastName         *string `json:"last_name" validate:"omitempty,max=100"`
	IDNumber         *string `json:"id_number" validate:"omitempty,max=20"`
	BirthDate        *Date   `json:"birth_date"`
	CurrentGrade     *string `json:"current_grade" validate:"omitempty,max=20"`
	Section          *string `json:"section" validate:"omitempty,max=5"`
}

func (us UpdateStudent) Validate(validate *validator.Validate) error { return validate.Struct(us) }

type NewSubject struct {
	Name       string  `json:"name" validate:"required,max=100"`
	GradeLevel string  `json:"grade_level" validate:"required,max=20"`
	Section    string  `json:"section" validate:"max=5"`
	TeacherID  *string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.GradeLevel = core.CleanString(ns.GradeLevel)
	if ns.Section = core.CleanString(ns.Section); ns.Section == "" {
		ns.Section = DefaultSection
	}
	return validate.Struct(ns)
}

type UpdateSubject struct {
	Name       *string `json:"name" validate:"omitempty,max=100"`
	GradeLevel *string `json:"grade_level" validate:"omitempty,max=20"`
	Section    *string `json:"section" validate:"omitempty,max=5"`
	TeacherID  *string `json:"teacher_id" validate:"omitempty,uuid|len=0"` // "" unassigns
}

func (us UpdateSubject) Validate(validate *validator.Validate) error { return validate.Struct(us) }

type NewEvaluation struct {
	SubjectID  string          `json:"subject_id" validate:"required,uuid"`
	Name       string          `json:"name" validate:"required,max=100"`
	Percentage decimal.Decimal `json:"percentage" validate:"gte=0,lte=100"`
	Term       int             `json:"lapso" validate:"term"`
	Date       Date            `json:"date"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate) error {
	ne.Name = core.CleanString(ne.Name)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	if ne.Date.IsZero() {
		return core.NewFieldValidationError("date", errRequired)
	}
	return nil
}

type UpdateEvaluation struct {
	Name       *string          `json:"name" validate:"omitempty,max=100"`
	Percentage *decimal.Decimal `json:"percentage" validate:"omitempty,gte=0,lte=100"`
	Term       *int             `json:"lapso" validate:"omitempty,term"`
	Date       *Date            `json:"date"`
}

func (ue UpdateEvaluation) Validate(validate *validator.Validate) error { return validate.Struct(ue) }

type NewGrade struct {
	StudentID    string          `json:"student_id" validate:"required,uuid"`
	EvaluationID string          `json:"evaluation_id" validate:"required,uuid"`
	Score        decimal.Decimal `json:"score" validate:"gte=0,lte=20"`
}

func (ng NewGrade) Validate(validate *validator.Validate) error { return validate.Struct(ng) }

type UpdateGrade struct {
	Score decimal.Decimal `json:"score" validate:"gte=0,lte=20"`
}

func (ug UpdateGrade) Validate(validate *validator.Validate) error { return validate.Struct(ug) }

type NewSchedule struct {
	SubjectID string `json:"subject_id" validate:"required,uuid"`
	Day       Day    `json:"day" validate:"weekday"`
	StartTime Clock  `json:"start_time" validate:"clock"`
	EndTime   Clock  `json:"end_time" validate:"clock"`
	Room      string `json:"room" validate:"max=20"`
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.Room = core.CleanString(ns.Room)
	return validate.Struct(ns)
}

type UpdateSchedule struct {
	SubjectID *string `json:"subject_id" validate:"omitempty,uuid"`
	Day       *Day    `json:"day" validate:"omitempty,weekday"`
	StartTime *Clock  `json:"start_time" validate:"omitempty,clock"`
	EndTime   *Clock  `json:"end_time" validate:"omitempty,clock"`
	Room      *string `json:"room" validate:"omitempty,max=20"`
}

func (us UpdateSchedule) Validate(validate *validator.Validate) error { return validate.Struct(us) }

// Filters

type StudentFilter struct {
	RepresentativeID string `query:"representative_id"`
	Grade            string `query:"grade"`
	Section          string `query:"section"`
	Search           string `query:"search"`
}

type SubjectFilter struct {
	GradeLevel string `query:"grade_level"`
	Section    string `query:"section"`
	TeacherID  string `query:"teacher_id"`
}

type EvaluationFilter struct {
	SubjectID string `query:"subject_id"`
	Term      int    `query:"lapso"`
}

type GradeFilter struct {
	StudentID    string `query:"student_id"`
	SubjectID    string `query:"subject_id"`
	EvaluationID string `query:"evaluation_id"`
}

type ScheduleFilter struct {
	SubjectID  string `query:"subject_id"`
	GradeLevel string `query:"grade_level"`
	Section    string `query:"section"`
	Day        Day    `query:"day"`
}
