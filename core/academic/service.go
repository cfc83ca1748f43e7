package academic

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/user"
)

// staff scope, used for internal lookups
var unrestricted = user.Scope{Kind: user.ScopeStaff}

type (
	// Repository persists academic records. Query & Get methods filter by scope:
	//  - representatives only see their own students & those students' grades;
	//  - teachers only see the subjects they teach & the grades of those subjects;
	//  - staff see everything.
	// Hidden records are reported as not found.
	Repository interface {
		// RunInTx runs fn against a repository bound to a single transaction.
		RunInTx(ctx context.Context, fn func(repo Repository) error) error

		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		QueryTeachers(ctx context.Context) ([]Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		GetTeacherByUser(ctx context.Context, userID string) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		DeleteTeacher(ctx context.Context, id string) error

		CreateStudent(ctx context.Context, st Student) (Student, error)
		QueryStudents(ctx context.Context, scope user.Scope, filter StudentFilter) ([]Student, error)
		GetStudent(ctx context.Context, scope user.Scope, id string) (Student, error)
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		DeleteStudent(ctx context.Context, id string) error

		CreateSubject(ctx context.Context, subj Subject) (Subject, error)
		QuerySubjects(ctx context.Context, scope user.Scope, filter SubjectFilter) ([]Subject, error)
		GetSubject(ctx context.Context, scope user.Scope, id string) (Subject, error)
		UpdateSubject(ctx context.Context, subj Subject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error

		CreateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
		QueryEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		UpdateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
		DeleteEvaluation(ctx context.Context, id string) error

		CreateGrade(ctx context.Context, g Grade) (Grade, error)
		QueryGrades(ctx context.Context, scope user.Scope, filter GradeFilter) ([]Grade, error)
		GetGrade(ctx context.Context, scope user.Scope, id string) (Grade, error)
		UpdateGrade(ctx context.Context, g Grade) (Grade, error)
		DeleteGrade(ctx context.Context, id string) error
		// ReportCardEntries reads every grade of a student joined to its evaluation, in one snapshot.
		ReportCardEntries(ctx context.Context, studentID string) ([]GradeEntry, error)

		// LockSchedulePartition serializes schedule writes on a (grade level, section, day)
		// until the enclosing transaction ends.
		LockSchedulePartition(ctx context.Context, gradeLevel, section string, day Day) error
		PartitionBlocks(ctx context.Context, gradeLevel, section string, day Day) ([]Block, error)
		CreateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		QuerySchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		UpdateSchedule(ctx context.Context, sch Schedule) (Schedule, error)
		DeleteSchedule(ctx context.Context, id string) error
	}

	Service interface {
		CreateTeacher(ctx context.Context, nt NewTeacher) (Teacher, error)
		QueryTeachers(ctx context.Context) ([]Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, ut UpdateTeacher) (Teacher, error)
		DeleteTeacher(ctx context.Context, id string) error

		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		QueryStudents(ctx context.Context, scope user.Scope, filter StudentFilter) ([]Student, error)
		GetStudent(ctx context.Context, scope user.Scope, id string) (Student, error)
		UpdateStudent(ctx context.Context, st Student, us UpdateStudent) (Student, error)
		DeleteStudent(ctx context.Context, id string) error

		CreateSubject(ctx context.Context, ns NewSubject) (Subject, error)
		QuerySubjects(ctx context.Context, scope user.Scope, filter SubjectFilter) ([]Subject, error)
		GetSubject(ctx context.Context, scope user.Scope, id string) (Subject, error)
		UpdateSubject(ctx context.Context, subj Subject, us UpdateSubject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error

		CreateEvaluation(ctx context.Context, scope user.Scope, ne NewEvaluation) (Evaluation, error)
		QueryEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error)
		GetEvaluation(ctx context.Context, id string) (Evaluation, error)
		UpdateEvaluation(ctx context.Context, scope user.Scope, ev Evaluation, ue UpdateEvaluation) (Evaluation, error)
		DeleteEvaluation(ctx context.Context, scope user.Scope, id string) error

		CreateGrade(ctx context.Context, scope user.Scope, ng NewGrade) (Grade, error)
		QueryGrades(ctx context.Context, scope user.Scope, filter GradeFilter) ([]Grade, error)
		GetGrade(ctx context.Context, scope user.Scope, id string) (Grade, error)
		UpdateGrade(ctx context.Context, scope user.Scope, g Grade, ug UpdateGrade) (Grade, error)
		DeleteGrade(ctx context.Context, scope user.Scope, id string) error

		CreateSchedule(ctx context.Context, ns NewSchedule) (Schedule, error)
		QuerySchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)
		GetSchedule(ctx context.Context, id string) (Schedule, error)
		UpdateSchedule(ctx context.Context, sch Schedule, us UpdateSchedule) (Schedule, error)
		DeleteSchedule(ctx context.Context, id string) error

		ReportCard(ctx context.Context, scope user.Scope, studentID string) (Student, ReportCard, error)
		EmailReportCard(ctx context.Context, scope user.Scope, studentID string) error
	}

	service struct {
		repo    Repository
		userSvc user.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, userSvc user.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, userSvc: userSvc, mailSvc: mailSvc}
}

// Teachers

func (svc *service) CreateTeacher(ctx context.Context, nt NewTeacher) (Teacher, error) {
	usr, err := svc.userSvc.GetByID(nt.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return Teacher{}, core.NewFieldValidationError("user_id", err)
		}
		return Teacher{}, errors.Wrap(err, "finding user")
	}
	t, err := svc.repo.CreateTeacher(ctx, Teacher{ID: uuid.NewString(), UserID: usr.ID, Specialty: nt.Specialty})
	if errors.Cause(err) == ErrTeacherExists {
		return Teacher{}, core.NewFieldValidationError("user_id", ErrTeacherExists)
	}
	return t, err
}

func (svc *service) QueryTeachers(ctx context.Context) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx)
}

func (svc *service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

func (svc *service) UpdateTeacher(ctx context.Context, t Teacher, ut UpdateTeacher) (Teacher, error) {
	if ut.Specialty != nil {
		t.Specialty = core.CleanString(*ut.Specialty)
	}
	return svc.repo.UpdateTeacher(ctx, t)
}

func (svc *service) DeleteTeacher(ctx context.Context, id string) error {
	return svc.repo.DeleteTeacher(ctx, id)
}

// Students

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.checkRepresentative(ns.RepresentativeID); err != nil {
		return Student{}, err
	}
	st, err := svc.repo.CreateStudent(ctx, Student{
		ID:               uuid.NewString(),
		RepresentativeID: ns.RepresentativeID,
		FirstName:        ns.FirstName,
		LastName:         ns.LastName,
		IDNumber:         ns.IDNumber,
		BirthDate:        ns.BirthDate,
		CurrentGrade:     ns.CurrentGrade,
		Section:          ns.Section,
	})
	return st, idNumberError(err)
}

func (svc *service) checkRepresentative(id string) error {
	if _, err := svc.userSvc.GetByID(id); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldValidationError("representative_id", err)
		}
		return errors.Wrap(err, "finding representative")
	}
	return nil
}

func idNumberError(err error) error {
	if errors.Cause(err) == ErrIDNumberExists {
		return core.NewFieldValidationError("id_number", ErrIDNumberExists)
	}
	return err
}

func (svc *service) QueryStudents(ctx context.Context, scope user.Scope, filter StudentFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search)
	return svc.repo.QueryStudents(ctx, scope, filter)
}

func (svc *service) GetStudent(ctx context.Context, scope user.Scope, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, scope, id)
}

func (svc *service) UpdateStudent(ctx context.Context, st Student, us UpdateStudent) (Student, error) {
	if us.RepresentativeID != nil && *us.RepresentativeID != st.RepresentativeID {
		if err := svc.checkRepresentative(*us.RepresentativeID); err != nil {
			return Student{}, err
		}
		st.RepresentativeID = *us.RepresentativeID
	}
	setString(&st.FirstName, us.FirstName)
	setString(&st.LastName, us.LastName)
	setString(&st.IDNumber, us.IDNumber)
	setString(&st.CurrentGrade, us.CurrentGrade)
	setString(&st.Section, us.Section)
	if us.BirthDate != nil && !us.BirthDate.IsZero() {
		st.BirthDate = *us.BirthDate
	}
	st, err := svc.repo.UpdateStudent(ctx, st)
	return st, idNumberError(err)
}

func (svc *service) DeleteStudent(ctx context.Context, id string) error {
	return svc.repo.DeleteStudent(ctx, id)
}

// setString overwrites dst with the cleaned src, if provided and not blank.
func setString(dst *string, src *string) {
	if src == nil {
		return
	}
	if s := core.CleanString(*src); s != "" {
		*dst = s
	}
}

// Subjects

func (svc *service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	subj := Subject{
		ID:         uuid.NewString(),
		Name:       ns.Name,
		GradeLevel: ns.GradeLevel,
		Section:    ns.Section,
	}
	if ns.TeacherID != nil && *ns.TeacherID != "" {
		if err := svc.checkTeacher(ctx, *ns.TeacherID); err != nil {
			return Subject{}, err
		}
		subj.TeacherID = null.StringFrom(*ns.TeacherID)
	}
	return svc.repo.CreateSubject(ctx, subj)
}

func (svc *service) checkTeacher(ctx context.Context, id string) error {
	if _, err := svc.repo.GetTeacher(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldValidationError("teacher_id", err)
		}
		return errors.Wrap(err, "finding teacher")
	}
	return nil
}

func (svc *service) QuerySubjects(ctx context.Context, scope user.Scope, filter SubjectFilter) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, scope, filter)
}

func (svc *service) GetSubject(ctx context.Context, scope user.Scope, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, scope, id)
}

// UpdateSubject re-checks the subject's schedules when it moves to another
// (grade level, section): the move is refused if any of them would collide.
func (svc *service) UpdateSubject(ctx context.Context, subj Subject, us UpdateSubject) (Subject, error) {
	setString(&subj.Name, us.Name)
	if us.TeacherID != nil {
		if *us.TeacherID == "" {
			subj.TeacherID = null.String{}
		} else {
			if err := svc.checkTeacher(ctx, *us.TeacherID); err != nil {
				return Subject{}, err
			}
			subj.TeacherID = null.StringFrom(*us.TeacherID)
		}
	}

	moved := (us.GradeLevel != nil && core.CleanString(*us.GradeLevel) != subj.GradeLevel) ||
		(us.Section != nil && core.CleanString(*us.Section) != subj.Section)
	setString(&subj.GradeLevel, us.GradeLevel)
	setString(&subj.Section, us.Section)
	if !moved {
		return svc.repo.UpdateSubject(ctx, subj)
	}

	var updated Subject
	err := svc.repo.RunInTx(ctx, func(repo Repository) error {
		schedules, err := repo.QuerySchedules(ctx, ScheduleFilter{SubjectID: subj.ID})
		if err != nil {
			return errors.Wrap(err, "querying subject schedules")
		}
		for _, sch := range schedules {
			candidate := sch.Block()
			candidate.GradeLevel, candidate.Section, candidate.Subject = subj.GradeLevel, subj.Section, subj.Name
			if err = svc.checkBlock(ctx, repo, candidate); err != nil {
				return err
			}
		}
		updated, err = repo.UpdateSubject(ctx, subj)
		return err
	})
	return updated, err
}

func (svc *service) DeleteSubject(ctx context.Context, id string) error {
	return svc.repo.DeleteSubject(ctx, id)
}

// Evaluations

// ownSubject checks that the subject is visible to scope (teachers only manage their own subjects).
func (svc *service) ownSubject(ctx context.Context, scope user.Scope, subjectID string) error {
	if _, err := svc.repo.GetSubject(ctx, scope, subjectID); err != nil {
		if core.IsNotFound(err) {
			if scope.IsTeacher() {
				return ErrNotSubjectOwner
			}
			return core.NewFieldValidationError("subject_id", err)
		}
		return errors.Wrap(err, "finding subject")
	}
	return nil
}

func (svc *service) CreateEvaluation(ctx context.Context, scope user.Scope, ne NewEvaluation) (Evaluation, error) {
	if err := svc.ownSubject(ctx, scope, ne.SubjectID); err != nil {
		return Evaluation{}, err
	}
	return svc.repo.CreateEvaluation(ctx, Evaluation{
		ID:         uuid.NewString(),
		SubjectID:  ne.SubjectID,
		Name:       ne.Name,
		Percentage: ne.Percentage,
		Term:       ne.Term,
		Date:       ne.Date,
	})
}

func (svc *service) QueryEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error) {
	return svc.repo.QueryEvaluations(ctx, filter)
}

func (svc *service) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	return svc.repo.GetEvaluation(ctx, id)
}

func (svc *service) UpdateEvaluation(ctx context.Context, scope user.Scope, ev Evaluation, ue UpdateEvaluation) (Evaluation, error) {
	if err := svc.ownSubject(ctx, scope, ev.SubjectID); err != nil {
		return Evaluation{}, err
	}
	setString(&ev.Name, ue.Name)
	if ue.Percentage != nil {
		ev.Percentage = *ue.Percentage
	}
	if ue.Term != nil {
		ev.Term = *ue.Term
	}
	if ue.Date != nil && !ue.Date.IsZero() {
		ev.Date = *ue.Date
	}
	return svc.repo.UpdateEvaluation(ctx, ev)
}

func (svc *service) DeleteEvaluation(ctx context.Context, scope user.Scope, id string) error {
	ev, err := svc.repo.GetEvaluation(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.ownSubject(ctx, scope, ev.SubjectID); err != nil {
		return err
	}
	return svc.repo.DeleteEvaluation(ctx, id)
}

// Grades

func (svc *service) CreateGrade(ctx context.Context, scope user.Scope, ng NewGrade) (Grade, error) {
	ev, err := svc.repo.GetEvaluation(ctx, ng.EvaluationID)
	if err != nil {
		if core.IsNotFound(err) {
			return Grade{}, core.NewFieldValidationError("evaluation_id", err)
		}
		return Grade{}, errors.Wrap(err, "finding evaluation")
	}
	if err = svc.ownSubject(ctx, scope, ev.SubjectID); err != nil {
		return Grade{}, err
	}
	if _, err = svc.repo.GetStudent(ctx, unrestricted, ng.StudentID); err != nil {
		if core.IsNotFound(err) {
			return Grade{}, core.NewFieldValidationError("student_id", err)
		}
		return Grade{}, errors.Wrap(err, "finding student")
	}

	g, err := svc.repo.CreateGrade(ctx, Grade{
		ID:           uuid.NewString(),
		StudentID:    ng.StudentID,
		EvaluationID: ng.EvaluationID,
		Score:        ng.Score,
	})
	if errors.Cause(err) == ErrGradeExists {
		return Grade{}, core.NewFieldValidationError("evaluation_id", ErrGradeExists)
	}
	return g, err
}

func (svc *service) QueryGrades(ctx context.Context, scope user.Scope, filter GradeFilter) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, scope, filter)
}

func (svc *service) GetGrade(ctx context.Context, scope user.Scope, id string) (Grade, error) {
	return svc.repo.GetGrade(ctx, scope, id)
}

func (svc *service) UpdateGrade(ctx context.Context, scope user.Scope, g Grade, ug UpdateGrade) (Grade, error) {
	if err := svc.ownSubject(ctx, scope, g.SubjectID); err != nil {
		return Grade{}, err
	}
	g.Score = ug.Score
	return svc.repo.UpdateGrade(ctx, g)
}

func (svc *service) DeleteGrade(ctx context.Context, scope user.Scope, id string) error {
	g, err := svc.repo.GetGrade(ctx, scope, id)
	if err != nil {
		return err
	}
	if err = svc.ownSubject(ctx, scope, g.SubjectID); err != nil {
		return err
	}
	return svc.repo.DeleteGrade(ctx, id)
}

// Schedules

// checkBlock locks the candidate's partition then runs the conflict checker against it.
// Must run inside RunInTx.
func (svc *service) checkBlock(ctx context.Context, repo Repository, candidate Block) error {
	if err := candidate.validate(); err != nil {
		return err
	}
	if err := repo.LockSchedulePartition(ctx, candidate.GradeLevel, candidate.Section, candidate.Day); err != nil {
		return errors.Wrap(err, "locking schedule partition")
	}
	blocks, err := repo.PartitionBlocks(ctx, candidate.GradeLevel, candidate.Section, candidate.Day)
	if err != nil {
		return errors.Wrap(err, "reading schedule partition")
	}
	return CheckScheduleConflict(blocks, candidate)
}

func (svc *service) scheduleSubject(ctx context.Context, repo Repository, subjectID string) (Subject, error) {
	subj, err := repo.GetSubject(ctx, unrestricted, subjectID)
	if err != nil {
		if core.IsNotFound(err) {
			return Subject{}, core.NewFieldValidationError("subject_id", err)
		}
		return Subject{}, errors.Wrap(err, "finding subject")
	}
	return subj, nil
}

func (svc *service) CreateSchedule(ctx context.Context, ns NewSchedule) (Schedule, error) {
	var sch Schedule
	err := svc.repo.RunInTx(ctx, func(repo Repository) error {
		subj, err := svc.scheduleSubject(ctx, repo, ns.SubjectID)
		if err != nil {
			return err
		}
		candidate := Schedule{
			SubjectID:   subj.ID,
			Day:         ns.Day,
			StartTime:   ns.StartTime,
			EndTime:     ns.EndTime,
			Room:        ns.Room,
			SubjectName: subj.Name,
			GradeLevel:  subj.GradeLevel,
			Section:     subj.Section,
		}
		if err = svc.checkBlock(ctx, repo, candidate.Block()); err != nil {
			return err
		}
		candidate.ID = uuid.NewString()
		sch, err = repo.CreateSchedule(ctx, candidate)
		return err
	})
	return sch, err
}

func (svc *service) QuerySchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	return svc.repo.QuerySchedules(ctx, filter)
}

func (svc *service) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	return svc.repo.GetSchedule(ctx, id)
}

// UpdateSchedule applies us to the stored schedule, not to the given copy,
// so the conflict check runs against the subject's current partition.
func (svc *service) UpdateSchedule(ctx context.Context, sch Schedule, us UpdateSchedule) (Schedule, error) {
	var updated Schedule
	err := svc.repo.RunInTx(ctx, func(repo Repository) error {
		sch, err := repo.GetSchedule(ctx, sch.ID)
		if err != nil {
			return err
		}
		if us.SubjectID != nil && *us.SubjectID != sch.SubjectID {
			subj, err := svc.scheduleSubject(ctx, repo, *us.SubjectID)
			if err != nil {
				return err
			}
			sch.SubjectID, sch.SubjectName, sch.GradeLevel, sch.Section = subj.ID, subj.Name, subj.GradeLevel, subj.Section
		}
		if us.Day != nil {
			sch.Day = *us.Day
		}
		if us.StartTime != nil {
			sch.StartTime = *us.StartTime
		}
		if us.EndTime != nil {
			sch.EndTime = *us.EndTime
		}
		if us.Room != nil {
			sch.Room = core.CleanString(*us.Room)
		}

		if err = svc.checkBlock(ctx, repo, sch.Block()); err != nil {
			return err
		}
		updated, err = repo.UpdateSchedule(ctx, sch)
		return err
	})
	return updated, err
}

func (svc *service) DeleteSchedule(ctx context.Context, id string) error {
	return svc.repo.DeleteSchedule(ctx, id)
}

// Report cards

func (svc *service) ReportCard(ctx context.Context, scope user.Scope, studentID string) (Student, ReportCard, error) {
	st, err := svc.repo.GetStudent(ctx, scope, studentID)
	if err != nil {
		return Student{}, ReportCard{}, err
	}
	entries, err := svc.repo.ReportCardEntries(ctx, st.ID)
	if err != nil {
		return Student{}, ReportCard{}, errors.Wrap(err, "reading grades")
	}
	card, err := AggregateGrades(entries)
	if err != nil {
		return Student{}, ReportCard{}, err
	}
	return st, card, nil
}

// EmailReportCard mails the report card to the student's representative, with a CSV copy attached.
func (svc *service) EmailReportCard(ctx context.Context, scope user.Scope, studentID string) error {
	st, card, err := svc.ReportCard(ctx, scope, studentID)
	if err != nil {
		return err
	}
	rep, err := svc.userSvc.GetByID(st.RepresentativeID)
	if err != nil {
		return errors.Wrap(err, "finding representative")
	}
	if rep.Email == "" {
		return core.NewValidationError(errors.New("the representative has no email address"))
	}

	rows := card.Rows()
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: rep.Name, Address: rep.Email}},
		Subject:      fmt.Sprintf("Boletín de calificaciones: %s", st.FullName()),
		TemplateName: "report_card",
		TemplateData: map[string]interface{}{
			"StudentName": st.FullName(),
			"IDNumber":    st.IDNumber,
			"Grade":       st.CurrentGrade,
			"Section":     st.Section,
			"Rows":        rows,
		},
	}

	var buf bytes.Buffer
	if err = writeReportCSV(&buf, rows); err != nil {
		return errors.Wrap(err, "writing report card csv")
	}
	if err = msg.Attach(&buf, fmt.Sprintf("boletin-%s.csv", st.IDNumber), "text/csv"); err != nil {
		return err
	}

	svc.mailSvc.SendMessages(msg)
	return nil
}

func writeReportCSV(buf *bytes.Buffer, rows []ReportRow) error {
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"Materia", "Lapso 1", "Lapso 2", "Lapso 3", "Definitiva"})
	for _, r := range rows {
		_ = w.Write([]string{r.Subject, r.Term1, r.Term2, r.Term3, r.Final})
	}
	w.Flush()
	return w.Error()
}
