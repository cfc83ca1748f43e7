package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/user"
)

type academicRepository struct {
	db   *DB
	inTx bool
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

// RunInTx serializes fn against every other transaction; writes are not rolled back on error.
func (repo *academicRepository) RunInTx(_ context.Context, fn func(repo academic.Repository) error) error {
	if repo.inTx {
		return fn(repo)
	}
	repo.db.txMu.Lock()
	defer repo.db.txMu.Unlock()
	return fn(&academicRepository{db: repo.db, inTx: true})
}

// LockSchedulePartition is a no-op: RunInTx already serializes transactions.
func (repo *academicRepository) LockSchedulePartition(context.Context, string, string, academic.Day) error {
	return nil
}

// helpers, callers hold db.mu

func (db *DB) teacherIDOf(userID string) string {
	for _, t := range db.teachers {
		if t.UserID == userID {
			return t.ID
		}
	}
	return ""
}

func (db *DB) studentVisible(scope user.Scope, st academic.Student) bool {
	return !scope.IsRepresentative() || st.RepresentativeID == scope.UserID
}

func (db *DB) subjectVisible(scope user.Scope, subj academic.Subject) bool {
	if !scope.IsTeacher() {
		return true
	}
	tid := db.teacherIDOf(scope.UserID)
	return tid != "" && subj.TeacherID.Valid && subj.TeacherID.String == tid
}

func (db *DB) gradeVisible(scope user.Scope, g academic.Grade) bool {
	switch {
	case scope.IsRepresentative():
		st, ok := db.students[g.StudentID]
		return ok && st.RepresentativeID == scope.UserID
	case scope.IsTeacher():
		subj, ok := db.subjects[g.SubjectID]
		return ok && db.subjectVisible(scope, subj)
	default:
		return true
	}
}

func (db *DB) joinTeacher(t academic.Teacher) academic.Teacher {
	if usr, ok := db.users[t.UserID]; ok {
		t.Name, t.Email = usr.Name, usr.Email
	}
	return t
}

func (db *DB) joinGrade(g academic.Grade) academic.Grade {
	if ev, ok := db.evaluations[g.EvaluationID]; ok {
		g.EvaluationName, g.EvaluationDate, g.Term, g.SubjectID = ev.Name, ev.Date, ev.Term, ev.SubjectID
		if subj, ok := db.subjects[ev.SubjectID]; ok {
			g.SubjectName = subj.Name
		}
	}
	return g
}

func (db *DB) joinSchedule(sch academic.Schedule) academic.Schedule {
	if subj, ok := db.subjects[sch.SubjectID]; ok {
		sch.SubjectName, sch.GradeLevel, sch.Section = subj.Name, subj.GradeLevel, subj.Section
	}
	return sch
}

func (db *DB) deleteTeacher(id string) {
	delete(db.teachers, id)
	for sid, subj := range db.subjects {
		if subj.TeacherID.Valid && subj.TeacherID.String == id {
			subj.TeacherID = null.String{}
			db.subjects[sid] = subj
		}
	}
}

func (db *DB) deleteStudent(id string) {
	delete(db.students, id)
	for gid, g := range db.grades {
		if g.StudentID == id {
			delete(db.grades, gid)
		}
	}
	for pid, p := range db.payments {
		if p.StudentID == id {
			delete(db.payments, pid)
		}
	}
}

func (db *DB) deleteSubject(id string) {
	delete(db.subjects, id)
	for eid, ev := range db.evaluations {
		if ev.SubjectID == id {
			db.deleteEvaluation(eid)
		}
	}
	for sid, sch := range db.schedules {
		if sch.SubjectID == id {
			delete(db.schedules, sid)
		}
	}
}

func (db *DB) deleteEvaluation(id string) {
	delete(db.evaluations, id)
	for gid, g := range db.grades {
		if g.EvaluationID == id {
			delete(db.grades, gid)
		}
	}
}

// Teachers

func (repo *academicRepository) CreateTeacher(_ context.Context, t academic.Teacher) (academic.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.teacherIDOf(t.UserID) != "" {
		return academic.Teacher{}, academic.ErrTeacherExists
	}
	repo.db.teachers[t.ID] = t
	return repo.db.joinTeacher(t), nil
}

func (repo *academicRepository) QueryTeachers(context.Context) ([]academic.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teachers := make([]academic.Teacher, 0, len(repo.db.teachers))
	for _, t := range repo.db.teachers {
		teachers = append(teachers, repo.db.joinTeacher(t))
	}
	sort.Slice(teachers, func(i, j int) bool {
		if teachers[i].Name != teachers[j].Name {
			return teachers[i].Name < teachers[j].Name
		}
		return teachers[i].ID < teachers[j].ID
	})
	return teachers, nil
}

func (repo *academicRepository) GetTeacher(_ context.Context, id string) (academic.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	t, ok := repo.db.teachers[id]
	if !ok {
		return academic.Teacher{}, academic.ErrTeacherNotFound
	}
	return repo.db.joinTeacher(t), nil
}

func (repo *academicRepository) GetTeacherByUser(_ context.Context, userID string) (academic.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if id := repo.db.teacherIDOf(userID); id != "" {
		return repo.db.joinTeacher(repo.db.teachers[id]), nil
	}
	return academic.Teacher{}, academic.ErrTeacherNotFound
}

func (repo *academicRepository) UpdateTeacher(_ context.Context, t academic.Teacher) (academic.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.teachers[t.ID]; !ok {
		return academic.Teacher{}, academic.ErrTeacherNotFound
	}
	repo.db.teachers[t.ID] = t
	return repo.db.joinTeacher(t), nil
}

func (repo *academicRepository) DeleteTeacher(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.teachers[id]; !ok {
		return academic.ErrTeacherNotFound
	}
	repo.db.deleteTeacher(id)
	return nil
}

// Students

func (repo *academicRepository) CreateStudent(_ context.Context, st academic.Student) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.db.idNumberTaken(st) {
		return academic.Student{}, academic.ErrIDNumberExists
	}
	repo.db.students[st.ID] = st
	return st, nil
}

func (db *DB) idNumberTaken(st academic.Student) bool {
	for _, other := range db.students {
		if other.ID != st.ID && other.IDNumber == st.IDNumber {
			return true
		}
	}
	return false
}

func (repo *academicRepository) QueryStudents(_ context.Context, scope user.Scope, filter academic.StudentFilter) ([]academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	students := make([]academic.Student, 0)
	for _, st := range repo.db.students {
		switch {
		case !repo.db.studentVisible(scope, st),
			filter.RepresentativeID != "" && st.RepresentativeID != filter.RepresentativeID,
			filter.Grade != "" && st.CurrentGrade != filter.Grade,
			filter.Section != "" && st.Section != filter.Section:
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(st.FullName()), search) &&
			!strings.Contains(strings.ToLower(st.IDNumber), search) {
			continue
		}
		students = append(students, st)
	}
	sort.Slice(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return students, nil
}

func (repo *academicRepository) GetStudent(_ context.Context, scope user.Scope, id string) (academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	st, ok := repo.db.students[id]
	if !ok || !repo.db.studentVisible(scope, st) {
		return academic.Student{}, academic.ErrStudentNotFound
	}
	return st, nil
}

func (repo *academicRepository) UpdateStudent(_ context.Context, st academic.Student) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[st.ID]; !ok {
		return academic.Student{}, academic.ErrStudentNotFound
	}
	if repo.db.idNumberTaken(st) {
		return academic.Student{}, academic.ErrIDNumberExists
	}
	repo.db.students[st.ID] = st
	return st, nil
}

func (repo *academicRepository) DeleteStudent(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.students[id]; !ok {
		return academic.ErrStudentNotFound
	}
	repo.db.deleteStudent(id)
	return nil
}

// Subjects

func (repo *academicRepository) CreateSubject(_ context.Context, subj academic.Subject) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.subjects[subj.ID] = subj
	return subj, nil
}

func (repo *academicRepository) QuerySubjects(_ context.Context, scope user.Scope, filter academic.SubjectFilter) ([]academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subjects := make([]academic.Subject, 0)
	for _, subj := range repo.db.subjects {
		switch {
		case !repo.db.subjectVisible(scope, subj),
			filter.GradeLevel != "" && subj.GradeLevel != filter.GradeLevel,
			filter.Section != "" && subj.Section != filter.Section,
			filter.TeacherID != "" && subj.TeacherID.String != filter.TeacherID:
			continue
		}
		subjects = append(subjects, subj)
	}
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		if a.GradeLevel != b.GradeLevel {
			return a.GradeLevel < b.GradeLevel
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return subjects, nil
}

func (repo *academicRepository) GetSubject(_ context.Context, scope user.Scope, id string) (academic.Subject, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subj, ok := repo.db.subjects[id]
	if !ok || !repo.db.subjectVisible(scope, subj) {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	return subj, nil
}

func (repo *academicRepository) UpdateSubject(_ context.Context, subj academic.Subject) (academic.Subject, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[subj.ID]; !ok {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	repo.db.subjects[subj.ID] = subj
	return subj, nil
}

func (repo *academicRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return academic.ErrSubjectNotFound
	}
	repo.db.deleteSubject(id)
	return nil
}

// Evaluations

func (repo *academicRepository) CreateEvaluation(_ context.Context, ev academic.Evaluation) (academic.Evaluation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.evaluations[ev.ID] = ev
	return ev, nil
}

func (repo *academicRepository) QueryEvaluations(_ context.Context, filter academic.EvaluationFilter) ([]academic.Evaluation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	evaluations := make([]academic.Evaluation, 0)
	for _, ev := range repo.db.evaluations {
		if filter.SubjectID != "" && ev.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Term != 0 && ev.Term != filter.Term {
			continue
		}
		evaluations = append(evaluations, ev)
	}
	sort.Slice(evaluations, func(i, j int) bool {
		a, b := evaluations[i], evaluations[j]
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		return a.ID < b.ID
	})
	return evaluations, nil
}

func (repo *academicRepository) GetEvaluation(_ context.Context, id string) (academic.Evaluation, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ev, ok := repo.db.evaluations[id]
	if !ok {
		return academic.Evaluation{}, academic.ErrEvaluationNotFound
	}
	return ev, nil
}

func (repo *academicRepository) UpdateEvaluation(_ context.Context, ev academic.Evaluation) (academic.Evaluation, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.evaluations[ev.ID]; !ok {
		return academic.Evaluation{}, academic.ErrEvaluationNotFound
	}
	repo.db.evaluations[ev.ID] = ev
	return ev, nil
}

func (repo *academicRepository) DeleteEvaluation(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.evaluations[id]; !ok {
		return academic.ErrEvaluationNotFound
	}
	repo.db.deleteEvaluation(id)
	return nil
}

// Grades

func (repo *academicRepository) CreateGrade(_ context.Context, g academic.Grade) (academic.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.grades {
		if other.StudentID == g.StudentID && other.EvaluationID == g.EvaluationID {
			return academic.Grade{}, academic.ErrGradeExists
		}
	}
	repo.db.grades[g.ID] = academic.Grade{ID: g.ID, StudentID: g.StudentID, EvaluationID: g.EvaluationID, Score: g.Score}
	return repo.db.joinGrade(g), nil
}

func (repo *academicRepository) QueryGrades(_ context.Context, scope user.Scope, filter academic.GradeFilter) ([]academic.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	grades := make([]academic.Grade, 0)
	for _, g := range repo.db.grades {
		g = repo.db.joinGrade(g)
		switch {
		case !repo.db.gradeVisible(scope, g),
			filter.StudentID != "" && g.StudentID != filter.StudentID,
			filter.SubjectID != "" && g.SubjectID != filter.SubjectID,
			filter.EvaluationID != "" && g.EvaluationID != filter.EvaluationID:
			continue
		}
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool {
		a, b := grades[i], grades[j]
		if a.SubjectName != b.SubjectName {
			return a.SubjectName < b.SubjectName
		}
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		if !a.EvaluationDate.Equal(b.EvaluationDate.Time) {
			return a.EvaluationDate.Before(b.EvaluationDate.Time)
		}
		return a.ID < b.ID
	})
	return grades, nil
}

func (repo *academicRepository) GetGrade(_ context.Context, scope user.Scope, id string) (academic.Grade, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	g, ok := repo.db.grades[id]
	if !ok {
		return academic.Grade{}, academic.ErrGradeNotFound
	}
	if g = repo.db.joinGrade(g); !repo.db.gradeVisible(scope, g) {
		return academic.Grade{}, academic.ErrGradeNotFound
	}
	return g, nil
}

// UpdateGrade only changes the score.
func (repo *academicRepository) UpdateGrade(_ context.Context, g academic.Grade) (academic.Grade, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.grades[g.ID]
	if !ok {
		return academic.Grade{}, academic.ErrGradeNotFound
	}
	stored.Score = g.Score
	repo.db.grades[g.ID] = stored
	return repo.db.joinGrade(stored), nil
}

func (repo *academicRepository) DeleteGrade(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.grades[id]; !ok {
		return academic.ErrGradeNotFound
	}
	delete(repo.db.grades, id)
	return nil
}

func (repo *academicRepository) ReportCardEntries(_ context.Context, studentID string) ([]academic.GradeEntry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]academic.GradeEntry, 0)
	for _, g := range repo.db.grades {
		if g.StudentID != studentID {
			continue
		}
		ev, ok := repo.db.evaluations[g.EvaluationID]
		if !ok {
			continue
		}
		entries = append(entries, academic.GradeEntry{
			GradeID:     g.ID,
			SubjectName: repo.db.subjects[ev.SubjectID].Name,
			Term:        ev.Term,
			Weight:      ev.Percentage,
			Score:       g.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].GradeID < entries[j].GradeID })
	return entries, nil
}

// Schedules

func (repo *academicRepository) PartitionBlocks(_ context.Context, gradeLevel, section string, day academic.Day) ([]academic.Block, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	blocks := make([]academic.Block, 0)
	for _, sch := range repo.db.schedules {
		sch = repo.db.joinSchedule(sch)
		if sch.GradeLevel == gradeLevel && sch.Section == section && sch.Day == day {
			blocks = append(blocks, sch.Block())
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Start != blocks[j].Start {
			return blocks[i].Start < blocks[j].Start
		}
		return blocks[i].ID < blocks[j].ID
	})
	return blocks, nil
}

func (repo *academicRepository) CreateSchedule(_ context.Context, sch academic.Schedule) (academic.Schedule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subjects[sch.SubjectID]; !ok {
		return academic.Schedule{}, academic.ErrSubjectNotFound
	}
	repo.db.schedules[sch.ID] = sch
	return repo.db.joinSchedule(sch), nil
}

func (repo *academicRepository) QuerySchedules(_ context.Context, filter academic.ScheduleFilter) ([]academic.Schedule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	schedules := make([]academic.Schedule, 0)
	for _, sch := range repo.db.schedules {
		sch = repo.db.joinSchedule(sch)
		switch {
		case filter.SubjectID != "" && sch.SubjectID != filter.SubjectID,
			filter.GradeLevel != "" && sch.GradeLevel != filter.GradeLevel,
			filter.Section != "" && sch.Section != filter.Section,
			filter.Day != "" && sch.Day != filter.Day:
			continue
		}
		schedules = append(schedules, sch)
	}
	sort.Slice(schedules, func(i, j int) bool {
		a, b := schedules[i], schedules[j]
		if a.Day != b.Day {
			return a.Day.Index() < b.Day.Index()
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	return schedules, nil
}

func (repo *academicRepository) GetSchedule(_ context.Context, id string) (academic.Schedule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sch, ok := repo.db.schedules[id]
	if !ok {
		return academic.Schedule{}, academic.ErrScheduleNotFound
	}
	return repo.db.joinSchedule(sch), nil
}

func (repo *academicRepository) UpdateSchedule(_ context.Context, sch academic.Schedule) (academic.Schedule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schedules[sch.ID]; !ok {
		return academic.Schedule{}, academic.ErrScheduleNotFound
	}
	repo.db.schedules[sch.ID] = sch
	return repo.db.joinSchedule(sch), nil
}

func (repo *academicRepository) DeleteSchedule(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.schedules[id]; !ok {
		return academic.ErrScheduleNotFound
	}
	delete(repo.db.schedules, id)
	return nil
}
