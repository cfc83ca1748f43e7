package academic_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/services/email"
	"github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database/inmem"
	"github.com/trezcool/colegio/tests"
)

var staff = user.Scope{Kind: user.ScopeStaff}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc      academic.Service
	repo     academic.Repository
	usrRepo  user.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	rep      user.User
	teacher  user.User
	ana      academic.Student
	maths    academic.Subject
	physics  academic.Subject
	anaScope user.Scope
}

func newFixture(t *testing.T) *fixture {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(logger)

	db := inmemdb.Open()
	f := &fixture{
		repo:    inmemdb.NewAcademicRepository(db),
		usrRepo: inmemdb.NewUserRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}
	f.svc = academic.NewService(f.repo, user.NewServiceMock(f.usrRepo, f.mailSvc, conf), f.mailSvc)

	f.rep = testutil.CreateUser(t, f.usrRepo, "María Pérez", "mperez", "mperez@test.ve", "", []string{user.RoleRepresentative}, true)
	f.teacher = testutil.CreateUser(t, f.usrRepo, "Carlos Díaz", "cdiaz", "cdiaz@test.ve", "", []string{user.RoleTeacher}, true)
	tch := testutil.CreateTeacher(t, f.repo, f.teacher, "Matemáticas")
	f.ana = testutil.CreateStudent(t, f.repo, f.rep, "Ana", "Pérez", "V-30111222", "1er Año", "A")
	f.maths = testutil.CreateSubject(t, f.repo, "Matemáticas", "1er Año", "A", tch)
	f.physics = testutil.CreateSubject(t, f.repo, "Física", "1er Año", "A")
	f.anaScope = user.ScopeOf(f.rep)
	return f
}

func (f *fixture) newSchedule(subj academic.Subject, day academic.Day, start, end academic.Clock) academic.NewSchedule {
	return academic.NewSchedule{SubjectID: subj.ID, Day: day, StartTime: start, EndTime: end}
}

func TestService_CreateSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateSchedule(ctx, f.newSchedule(f.maths, academic.Monday, academic.NewClock(8, 0), academic.NewClock(9, 0)))
	require.NoError(t, err)
	assert.Equal(t, "1er Año", first.GradeLevel)
	assert.Equal(t, "Matemáticas", first.SubjectName)

	_, err = f.svc.CreateSchedule(ctx, f.newSchedule(f.physics, academic.Monday, academic.NewClock(8, 59), academic.NewClock(10, 0)))
	require.True(t, academic.IsScheduleConflict(err), "got %v", err)
	conflictErr := errors.Cause(err).(*academic.ScheduleConflictError)
	assert.Equal(t, first.ID, conflictErr.Conflict.ID)

	_, err = f.svc.CreateSchedule(ctx, f.newSchedule(f.physics, academic.Monday, academic.NewClock(9, 0), academic.NewClock(10, 0)))
	assert.NoError(t, err, "adjacent blocks do not overlap")

	_, err = f.svc.CreateSchedule(ctx, f.newSchedule(f.physics, academic.Tuesday, academic.NewClock(9, 0), academic.NewClock(9, 0)))
	assert.True(t, academic.IsInvalidInput(err), "got %v", err)

	schedules, err := f.svc.QuerySchedules(ctx, academic.ScheduleFilter{Day: academic.Monday})
	require.NoError(t, err)
	assert.Len(t, schedules, 2)
}

func TestService_CreateSchedule_concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// every candidate overlaps every other one: only one can win
	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := academic.NewClock(8, i)
			_, errs[i] = f.svc.CreateSchedule(ctx, f.newSchedule(f.maths, academic.Wednesday, start, academic.NewClock(9, i)))
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case academic.IsScheduleConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func TestService_UpdateSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	maths := testutil.CreateSchedule(t, f.repo, f.maths, academic.Monday, academic.NewClock(8, 0), academic.NewClock(9, 0))
	physics := testutil.CreateSchedule(t, f.repo, f.physics, academic.Monday, academic.NewClock(9, 0), academic.NewClock(10, 0))

	later := academic.NewClock(8, 30)
	_, err := f.svc.UpdateSchedule(ctx, maths, academic.UpdateSchedule{EndTime: &later})
	assert.NoError(t, err, "a block never conflicts with itself")

	earlier := academic.NewClock(8, 15)
	_, err = f.svc.UpdateSchedule(ctx, physics, academic.UpdateSchedule{StartTime: &earlier})
	assert.True(t, academic.IsScheduleConflict(err), "got %v", err)

	tuesday := academic.Tuesday
	moved, err := f.svc.UpdateSchedule(ctx, physics, academic.UpdateSchedule{Day: &tuesday, StartTime: &earlier})
	require.NoError(t, err)
	assert.Equal(t, academic.Tuesday, moved.Day)
}

func TestService_UpdateSchedule_subjectMoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chemistry := testutil.CreateSubject(t, f.repo, "Química", "2do Año", "B")
	testutil.CreateSchedule(t, f.repo, chemistry, academic.Monday, academic.NewClock(10, 0), academic.NewClock(11, 0))
	stale := testutil.CreateSchedule(t, f.repo, f.maths, academic.Monday, academic.NewClock(8, 0), academic.NewClock(9, 0))

	// the subject changes section after the schedule was read
	subj := f.maths
	subj.GradeLevel, subj.Section = "2do Año", "B"
	_, err := f.repo.UpdateSubject(ctx, subj)
	require.NoError(t, err)

	start, end := academic.NewClock(10, 30), academic.NewClock(11, 30)
	_, err = f.svc.UpdateSchedule(ctx, stale, academic.UpdateSchedule{StartTime: &start, EndTime: &end})
	assert.True(t, academic.IsScheduleConflict(err), "got %v", err)

	require.NoError(t, f.repo.DeleteSchedule(ctx, stale.ID))
	_, err = f.svc.UpdateSchedule(ctx, stale, academic.UpdateSchedule{StartTime: &start, EndTime: &end})
	assert.Equal(t, academic.ErrScheduleNotFound, err)
}

func TestService_grades_scopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherUsr := testutil.CreateUser(t, f.usrRepo, "Elena Ruiz", "eruiz", "eruiz@test.ve", "", []string{user.RoleTeacher}, true)
	testutil.CreateTeacher(t, f.repo, otherUsr, "")
	mathsTest := testutil.CreateEvaluation(t, f.repo, f.maths, "Prueba", "20", 1)
	physicsTest := testutil.CreateEvaluation(t, f.repo, f.physics, "Prueba", "20", 1)
	teacherScope, otherScope := user.ScopeOf(f.teacher), user.ScopeOf(otherUsr)

	_, err := f.svc.CreateGrade(ctx, otherScope, academic.NewGrade{StudentID: f.ana.ID, EvaluationID: mathsTest.ID, Score: dec("15")})
	assert.Equal(t, academic.ErrNotSubjectOwner, err)

	_, err = f.svc.CreateGrade(ctx, teacherScope, academic.NewGrade{StudentID: f.ana.ID, EvaluationID: physicsTest.ID, Score: dec("15")})
	assert.Equal(t, academic.ErrNotSubjectOwner, err, "unassigned subjects belong to no teacher")

	g, err := f.svc.CreateGrade(ctx, teacherScope, academic.NewGrade{StudentID: f.ana.ID, EvaluationID: mathsTest.ID, Score: dec("15")})
	require.NoError(t, err)
	assert.Equal(t, "Matemáticas", g.SubjectName)

	_, err = f.svc.CreateGrade(ctx, staff, academic.NewGrade{StudentID: f.ana.ID, EvaluationID: mathsTest.ID, Score: dec("12")})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)

	grades, err := f.svc.QueryGrades(ctx, otherScope, academic.GradeFilter{})
	require.NoError(t, err)
	assert.Empty(t, grades)

	grades, err = f.svc.QueryGrades(ctx, f.anaScope, academic.GradeFilter{StudentID: f.ana.ID})
	require.NoError(t, err)
	assert.Len(t, grades, 1)

	err = f.svc.DeleteGrade(ctx, otherScope, g.ID)
	assert.True(t, core.IsNotFound(err), "hidden grades cannot be deleted; got %v", err)
	require.NoError(t, f.svc.DeleteGrade(ctx, teacherScope, g.ID))
}

func TestService_ReportCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	term2 := testutil.CreateEvaluation(t, f.repo, f.maths, "Examen", "20", 2)
	testutil.CreateGrade(t, f.repo, f.ana, term2, "20")

	st, card, err := f.svc.ReportCard(ctx, f.anaScope, f.ana.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ana.ID, st.ID)
	assert.Equal(t, []academic.ReportRow{
		{Subject: "Matemáticas", Term1: "0.00", Term2: "4.00", Term3: "0.00", Final: "1.33"},
	}, card.Rows())

	otherRep := testutil.CreateUser(t, f.usrRepo, "Luis Gómez", "lgomez", "lgomez@test.ve", "", []string{user.RoleRepresentative}, true)
	_, _, err = f.svc.ReportCard(ctx, user.ScopeOf(otherRep), f.ana.ID)
	assert.Equal(t, academic.ErrStudentNotFound, err)
}

func TestService_EmailReportCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := testutil.CreateEvaluation(t, f.repo, f.maths, "Examen", "50", 1)
	testutil.CreateGrade(t, f.repo, f.ana, ev, "17")

	require.NoError(t, f.svc.EmailReportCard(ctx, staff, f.ana.ID))
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Boletín de calificaciones: Ana Pérez", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, "Matemáticas: L1 8.50 | L2 0.00 | L3 0.00 | Final 2.83")
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "boletin-V-30111222.csv", sent[0].Attachments[0].Filename)

	t.Run("representative without email", func(t *testing.T) {
		noEmail := testutil.CreateUser(t, f.usrRepo, "Pedro Mora", "pmora", "", "", []string{user.RoleRepresentative}, true)
		st := testutil.CreateStudent(t, f.repo, noEmail, "José", "Mora", "V-31222333", "1er Año", "A")

		err := f.svc.EmailReportCard(ctx, staff, st.ID)
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr), "got %v", err)
		assert.Len(t, f.mailSvc.SentMessages(), 1)
	})
}

func TestService_CreateStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ns := academic.NewStudent{
		RepresentativeID: f.rep.ID,
		FirstName:        "Luis",
		LastName:         "Pérez",
		IDNumber:         f.ana.IDNumber,
		BirthDate:        academic.NewDate(2013, 1, 2),
		CurrentGrade:     "1er Año",
		Section:          "A",
	}

	_, err := f.svc.CreateStudent(ctx, ns)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "got %v", err)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "id_number", vErr.Fields[0].Field)

	ns.IDNumber = "V-30999888"
	ns.RepresentativeID = "9f1c5f59-2d0a-4a7c-a0c8-3b1f2f4f6d1e"
	_, err = f.svc.CreateStudent(ctx, ns)
	require.True(t, errors.As(err, &vErr), "got %v", err)
	assert.Equal(t, "representative_id", vErr.Fields[0].Field)

	ns.RepresentativeID = f.rep.ID
	st, err := f.svc.CreateStudent(ctx, ns)
	require.NoError(t, err)

	students, err := f.svc.QueryStudents(ctx, f.anaScope, academic.StudentFilter{Search: " luis "})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, st.ID, students[0].ID)
}
