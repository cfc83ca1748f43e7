package academic

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core"
)

var (
	ErrTeacherNotFound    = core.NewNotFoundError("teacher")
	ErrStudentNotFound    = core.NewNotFoundError("student")
	ErrSubjectNotFound    = core.NewNotFoundError("subject")
	ErrEvaluationNotFound = core.NewNotFoundError("evaluation")
	ErrGradeNotFound      = core.NewNotFoundError("grade")
	ErrScheduleNotFound   = core.NewNotFoundError("schedule")

	ErrGradeExists     = errors.New("this student already has a grade for this evaluation")
	ErrIDNumberExists  = errors.New("a student with this id number already exists")
	ErrTeacherExists   = errors.New("this user already has a teacher profile")
	ErrNotSubjectOwner = errors.New("you do not teach this subject")
)

// InvalidInputError reports a record that cannot be processed.
type InvalidInputError struct {
	Record string // grade, schedule...
	ID     string
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s %s", e.Record, e.ID, e.Field, e.Reason)
}

// ScheduleConflictError carries the existing block a candidate overlaps with.
type ScheduleConflictError struct {
	Conflict Block
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf(
		"schedule conflict: %s already takes %s %s-%s for %s %s",
		e.Conflict.Subject, e.Conflict.Day, e.Conflict.Start, e.Conflict.End,
		e.Conflict.GradeLevel, e.Conflict.Section,
	)
}

func IsInvalidInput(err error) bool {
	_, ok := errors.Cause(err).(*InvalidInputError)
	return ok
}

func IsScheduleConflict(err error) bool {
	_, ok := errors.Cause(err).(*ScheduleConflictError)
	return ok
}
