// Package seed fills an empty store with demo data: a representative, a teacher,
// a student with graded subjects & a weekly schedule, plus billing defaults.
package seed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
)

const (
	gradeLevel = "5to Grado"
	section    = "A"
)

// ErrAlreadySeeded is returned when the demo representative already exists.
var ErrAlreadySeeded = errors.New("demo data already seeded")

type Repos struct {
	Users    user.Repository
	Academic academic.Repository
	Billing  billing.Repository
}

type subjectSeed struct {
	name  string
	day   academic.Day
	start academic.Clock
	end   academic.Clock
	score string
}

var subjects = []subjectSeed{
	{name: "Matemáticas", day: academic.Monday, start: academic.NewClock(7, 0), end: academic.NewClock(8, 30), score: "18.5"},
	{name: "Lenguaje", day: academic.Monday, start: academic.NewClock(8, 30), end: academic.NewClock(10, 0), score: "17"},
	{name: "Historia", day: academic.Tuesday, start: academic.NewClock(7, 0), end: academic.NewClock(8, 30), score: "15.75"},
	{name: "Ciencias", day: academic.Wednesday, start: academic.NewClock(7, 0), end: academic.NewClock(9, 0), score: "19"},
}

// Run creates the demo records, every account using pwd.
func Run(ctx context.Context, repos Repos, pwd string, logger core.Logger) error {
	if _, err := repos.Users.GetUser(ctx, user.GetFilter{Username: "rep1"}); err == nil {
		return ErrAlreadySeeded
	} else if !core.IsNotFound(err) {
		return errors.Wrap(err, "looking up demo representative")
	}

	// get or create
	newUser := func(name, uname, email string, roles []string) (user.User, error) {
		usr, err := repos.Users.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
		switch {
		case err == nil:
			return usr, nil
		case !core.IsNotFound(err):
			return user.User{}, errors.Wrapf(err, "looking up user %s", uname)
		}
		now := time.Now().UTC()
		usr = user.User{
			Name:      name,
			Username:  uname,
			Email:     email,
			Roles:     roles,
			CreatedAt: now,
			UpdatedAt: now,
		}
		usr.SetActive(true)
		if err := usr.SetPassword(pwd); err != nil {
			return user.User{}, err
		}
		if usr, err = repos.Users.UpdateOrCreateUser(ctx, usr); err != nil {
			return user.User{}, errors.Wrapf(err, "creating user %s", uname)
		}
		logger.Info("seeded user " + uname)
		return usr, nil
	}

	if _, err := newUser("Administrador", "admin", "admin@example.com", user.AllRoles); err != nil {
		return err
	}
	rep, err := newUser("María Pérez", "rep1", "rep1@example.com", user.RepresentativeRoles)
	if err != nil {
		return err
	}
	profUsr, err := newUser("Carlos Sánchez", "prof1", "prof1@example.com", user.TeacherRoles)
	if err != nil {
		return err
	}

	teacher, err := repos.Academic.CreateTeacher(ctx, academic.Teacher{
		ID:        uuid.NewString(),
		UserID:    profUsr.ID,
		Specialty: "Matemáticas",
	})
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}

	student, err := repos.Academic.CreateStudent(ctx, academic.Student{
		ID:               uuid.NewString(),
		RepresentativeID: rep.ID,
		FirstName:        "Juan",
		LastName:         "Pérez",
		IDNumber:         "30.123.456",
		BirthDate:        academic.NewDate(2015, time.May, 15),
		CurrentGrade:     gradeLevel,
		Section:          section,
	})
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	logger.Info("seeded student " + student.FullName())

	evalDate := time.Now().UTC().AddDate(0, 0, -10)
	for _, s := range subjects {
		if err = seedSubject(ctx, repos.Academic, s, teacher, student, academic.NewDate(evalDate.Year(), evalDate.Month(), evalDate.Day())); err != nil {
			return err
		}
	}

	if _, err = repos.Billing.CreateConcept(ctx, billing.PaymentConcept{
		ID:        uuid.NewString(),
		Name:      "Mensualidad",
		AmountUSD: decimal.NewFromInt(50),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return errors.Wrap(err, "creating payment concept")
	}
	return nil
}

func seedSubject(
	ctx context.Context,
	repo academic.Repository,
	s subjectSeed,
	teacher academic.Teacher,
	student academic.Student,
	evalDate academic.Date,
) error {
	subj, err := repo.CreateSubject(ctx, academic.Subject{
		ID:         uuid.NewString(),
		Name:       s.name,
		GradeLevel: gradeLevel,
		Section:    section,
		TeacherID:  null.StringFrom(teacher.ID),
	})
	if err != nil {
		return errors.Wrapf(err, "creating subject %s", s.name)
	}

	ev, err := repo.CreateEvaluation(ctx, academic.Evaluation{
		ID:         uuid.NewString(),
		SubjectID:  subj.ID,
		Name:       "Parcial 1",
		Percentage: decimal.NewFromInt(20),
		Term:       1,
		Date:       evalDate,
	})
	if err != nil {
		return errors.Wrapf(err, "creating evaluation of %s", s.name)
	}

	if _, err = repo.CreateGrade(ctx, academic.Grade{
		ID:           uuid.NewString(),
		StudentID:    student.ID,
		EvaluationID: ev.ID,
		Score:        decimal.RequireFromString(s.score),
	}); err != nil {
		return errors.Wrapf(err, "grading %s", s.name)
	}

	if _, err = repo.CreateSchedule(ctx, academic.Schedule{
		ID:        uuid.NewString(),
		SubjectID: subj.ID,
		Day:       s.day,
		StartTime: s.start,
		EndTime:   s.end,
	}); err != nil {
		return errors.Wrapf(err, "scheduling %s", s.name)
	}
	return nil
}
