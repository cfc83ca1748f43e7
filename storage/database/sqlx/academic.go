package sqlxrepos

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/user"
)

const (
	teacherSelect = `SELECT t.id, t.user_id, t.specialty, u.name, COALESCE(u.email, '') AS email
		FROM teacher t JOIN "user" u ON u.id = t.user_id`

	studentSelect = `SELECT st.id, st.representative_id, st.first_name, st.last_name, st.id_number,
		st.birth_date, st.current_grade, st.section
		FROM student st`

	subjectSelect = `SELECT sub.id, sub.name, sub.grade_level, sub.section, sub.teacher_id FROM subject sub`

	evaluationSelect = `SELECT e.id, e.subject_id, e.name, e.percentage, e.lapso, e.date FROM evaluation e`

	gradeSelect = `SELECT g.id, g.student_id, g.evaluation_id, g.score,
		e.name AS evaluation_name, e.date AS evaluation_date, e.lapso AS evaluation_lapso,
		sub.id AS subject_id, sub.name AS subject_name
		FROM grade g
		JOIN evaluation e ON e.id = g.evaluation_id
		JOIN subject sub ON sub.id = e.subject_id
		JOIN student st ON st.id = g.student_id`

	scheduleSelect = `SELECT sch.id, sch.subject_id, sch.day, sch.start_time, sch.end_time, sch.room,
		sub.name AS subject_name, sub.grade_level, sub.section
		FROM schedule sch JOIN subject sub ON sub.id = sch.subject_id`

	// teacher row of the scoped user; NULL (matching nothing) if the user does not teach
	scopeTeacherID = `(SELECT id FROM teacher WHERE user_id = ?)`
)

type academicRepository struct {
	db   *sqlx.DB // nil when bound to a transaction
	exec sqlx.ExtContext
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *sqlx.DB) academic.Repository {
	return &academicRepository{db: db, exec: db}
}

func (repo *academicRepository) RunInTx(ctx context.Context, fn func(repo academic.Repository) error) error {
	if repo.db == nil {
		return fn(repo)
	}
	return runInTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return fn(&academicRepository{exec: tx})
	})
}

// LockSchedulePartition takes a transaction-scoped advisory lock on the partition key.
func (repo *academicRepository) LockSchedulePartition(ctx context.Context, gradeLevel, section string, day academic.Day) error {
	if repo.db != nil {
		return errors.New("schedule partitions can only be locked in a transaction")
	}
	key := fmt.Sprintf("schedule:%s|%s|%s", gradeLevel, section, day)
	_, err := repo.exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	return err
}

func (repo *academicRepository) get(ctx context.Context, dest interface{}, notFound error, msg, query string, args ...interface{}) error {
	if err := sqlx.GetContext(ctx, repo.exec, dest, repo.exec.Rebind(query), args...); err != nil {
		return trapNoRows(err, notFound, msg)
	}
	return nil
}

func (repo *academicRepository) sel(ctx context.Context, dest interface{}, msg, query string, args ...interface{}) error {
	return errors.Wrap(sqlx.SelectContext(ctx, repo.exec, dest, repo.exec.Rebind(query), args...), msg)
}

// Teachers

func (repo *academicRepository) CreateTeacher(ctx context.Context, t academic.Teacher) (academic.Teacher, error) {
	_, err := repo.exec.ExecContext(ctx, `INSERT INTO teacher (id, user_id, specialty) VALUES ($1, $2, $3)`, t.ID, t.UserID, t.Specialty)
	if err != nil {
		if isUniqueViolation(err, "teacher_user_id_key") {
			return academic.Teacher{}, academic.ErrTeacherExists
		}
		return academic.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return repo.GetTeacher(ctx, t.ID)
}

func (repo *academicRepository) QueryTeachers(ctx context.Context) ([]academic.Teacher, error) {
	teachers := make([]academic.Teacher, 0)
	err := repo.sel(ctx, &teachers, "querying teachers", teacherSelect+` ORDER BY u.name, t.id`)
	return teachers, err
}

func (repo *academicRepository) GetTeacher(ctx context.Context, id string) (academic.Teacher, error) {
	var t academic.Teacher
	err := repo.get(ctx, &t, academic.ErrTeacherNotFound, "finding teacher", teacherSelect+` WHERE t.id = ?`, id)
	return t, err
}

func (repo *academicRepository) GetTeacherByUser(ctx context.Context, userID string) (academic.Teacher, error) {
	var t academic.Teacher
	err := repo.get(ctx, &t, academic.ErrTeacherNotFound, "finding teacher", teacherSelect+` WHERE t.user_id = ?`, userID)
	return t, err
}

func (repo *academicRepository) UpdateTeacher(ctx context.Context, t academic.Teacher) (academic.Teacher, error) {
	err := execAffecting(ctx, repo.exec, academic.ErrTeacherNotFound, "updating teacher",
		`UPDATE teacher SET specialty = ? WHERE id = ?`, t.Specialty, t.ID)
	if err != nil {
		return academic.Teacher{}, err
	}
	return repo.GetTeacher(ctx, t.ID)
}

func (repo *academicRepository) DeleteTeacher(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrTeacherNotFound, "deleting teacher", `DELETE FROM teacher WHERE id = ?`, id)
}

// Students

func studentScope(w *where, scope user.Scope) {
	if scope.IsRepresentative() {
		w.add("st.representative_id = ?", scope.UserID)
	}
}

func (repo *academicRepository) CreateStudent(ctx context.Context, st academic.Student) (academic.Student, error) {
	q := `INSERT INTO student (id, representative_id, first_name, last_name, id_number, birth_date, current_grade, section)
		VALUES (:id, :representative_id, :first_name, :last_name, :id_number, :birth_date, :current_grade, :section)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, st); err != nil {
		if isUniqueViolation(err, "student_id_number_key") {
			return academic.Student{}, academic.ErrIDNumberExists
		}
		return academic.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo *academicRepository) QueryStudents(ctx context.Context, scope user.Scope, filter academic.StudentFilter) ([]academic.Student, error) {
	var w where
	studentScope(&w, scope)
	if filter.RepresentativeID != "" {
		w.add("st.representative_id = ?", filter.RepresentativeID)
	}
	if filter.Grade != "" {
		w.add("st.current_grade = ?", filter.Grade)
	}
	if filter.Section != "" {
		w.add("st.section = ?", filter.Section)
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("st.first_name || ' ' || st.last_name ILIKE ? OR st.id_number ILIKE ?", val, val)
	}

	students := make([]academic.Student, 0)
	err := repo.sel(ctx, &students, "querying students",
		studentSelect+w.String()+` ORDER BY st.last_name, st.first_name, st.id`, w.args...)
	return students, err
}

func (repo *academicRepository) GetStudent(ctx context.Context, scope user.Scope, id string) (academic.Student, error) {
	var w where
	w.add("st.id = ?", id)
	studentScope(&w, scope)

	var st academic.Student
	err := repo.get(ctx, &st, academic.ErrStudentNotFound, "finding student", studentSelect+w.String(), w.args...)
	return st, err
}

func (repo *academicRepository) UpdateStudent(ctx context.Context, st academic.Student) (academic.Student, error) {
	q := `UPDATE student SET representative_id = :representative_id, first_name = :first_name, last_name = :last_name,
		id_number = :id_number, birth_date = :birth_date, current_grade = :current_grade, section = :section
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.exec, q, st)
	if err != nil {
		if isUniqueViolation(err, "student_id_number_key") {
			return academic.Student{}, academic.ErrIDNumberExists
		}
		return academic.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academic.Student{}, academic.ErrStudentNotFound
	}
	return st, nil
}

func (repo *academicRepository) DeleteStudent(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrStudentNotFound, "deleting student", `DELETE FROM student WHERE id = ?`, id)
}

// Subjects

func subjectScope(w *where, scope user.Scope) {
	if scope.IsTeacher() {
		w.add("sub.teacher_id = "+scopeTeacherID, scope.UserID)
	}
}

func (repo *academicRepository) CreateSubject(ctx context.Context, subj academic.Subject) (academic.Subject, error) {
	q := `INSERT INTO subject (id, name, grade_level, section, teacher_id) VALUES (:id, :name, :grade_level, :section, :teacher_id)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, subj); err != nil {
		if isForeignKeyViolation(err) {
			return academic.Subject{}, academic.ErrTeacherNotFound
		}
		return academic.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return subj, nil
}

func (repo *academicRepository) QuerySubjects(ctx context.Context, scope user.Scope, filter academic.SubjectFilter) ([]academic.Subject, error) {
	var w where
	subjectScope(&w, scope)
	if filter.GradeLevel != "" {
		w.add("sub.grade_level = ?", filter.GradeLevel)
	}
	if filter.Section != "" {
		w.add("sub.section = ?", filter.Section)
	}
	if filter.TeacherID != "" {
		w.add("sub.teacher_id = ?", filter.TeacherID)
	}

	subjects := make([]academic.Subject, 0)
	err := repo.sel(ctx, &subjects, "querying subjects",
		subjectSelect+w.String()+` ORDER BY sub.grade_level, sub.section, sub.name, sub.id`, w.args...)
	return subjects, err
}

func (repo *academicRepository) GetSubject(ctx context.Context, scope user.Scope, id string) (academic.Subject, error) {
	var w where
	w.add("sub.id = ?", id)
	subjectScope(&w, scope)

	var subj academic.Subject
	err := repo.get(ctx, &subj, academic.ErrSubjectNotFound, "finding subject", subjectSelect+w.String(), w.args...)
	return subj, err
}

func (repo *academicRepository) UpdateSubject(ctx context.Context, subj academic.Subject) (academic.Subject, error) {
	q := `UPDATE subject SET name = :name, grade_level = :grade_level, section = :section, teacher_id = :teacher_id WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.exec, q, subj)
	if err != nil {
		if isForeignKeyViolation(err) {
			return academic.Subject{}, academic.ErrTeacherNotFound
		}
		return academic.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return academic.Subject{}, academic.ErrSubjectNotFound
	}
	return subj, nil
}

func (repo *academicRepository) DeleteSubject(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrSubjectNotFound, "deleting subject", `DELETE FROM subject WHERE id = ?`, id)
}

// Evaluations

func (repo *academicRepository) CreateEvaluation(ctx context.Context, ev academic.Evaluation) (academic.Evaluation, error) {
	q := `INSERT INTO evaluation (id, subject_id, name, percentage, lapso, date) VALUES (:id, :subject_id, :name, :percentage, :lapso, :date)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, ev); err != nil {
		if isForeignKeyViolation(err) {
			return academic.Evaluation{}, academic.ErrSubjectNotFound
		}
		return academic.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}
	return ev, nil
}

func (repo *academicRepository) QueryEvaluations(ctx context.Context, filter academic.EvaluationFilter) ([]academic.Evaluation, error) {
	var w where
	if filter.SubjectID != "" {
		w.add("e.subject_id = ?", filter.SubjectID)
	}
	if filter.Term != 0 {
		w.add("e.lapso = ?", filter.Term)
	}

	evaluations := make([]academic.Evaluation, 0)
	err := repo.sel(ctx, &evaluations, "querying evaluations",
		evaluationSelect+w.String()+` ORDER BY e.lapso, e.date, e.id`, w.args...)
	return evaluations, err
}

func (repo *academicRepository) GetEvaluation(ctx context.Context, id string) (academic.Evaluation, error) {
	var ev academic.Evaluation
	err := repo.get(ctx, &ev, academic.ErrEvaluationNotFound, "finding evaluation", evaluationSelect+` WHERE e.id = ?`, id)
	return ev, err
}

func (repo *academicRepository) UpdateEvaluation(ctx context.Context, ev academic.Evaluation) (academic.Evaluation, error) {
	err := execAffecting(ctx, repo.exec, academic.ErrEvaluationNotFound, "updating evaluation",
		`UPDATE evaluation SET name = ?, percentage = ?, lapso = ?, date = ? WHERE id = ?`,
		ev.Name, ev.Percentage, ev.Term, ev.Date, ev.ID)
	if err != nil {
		return academic.Evaluation{}, err
	}
	return ev, nil
}

func (repo *academicRepository) DeleteEvaluation(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrEvaluationNotFound, "deleting evaluation", `DELETE FROM evaluation WHERE id = ?`, id)
}

// Grades

func gradeScope(w *where, scope user.Scope) {
	switch {
	case scope.IsRepresentative():
		w.add("st.representative_id = ?", scope.UserID)
	case scope.IsTeacher():
		w.add("sub.teacher_id = "+scopeTeacherID, scope.UserID)
	}
}

func (repo *academicRepository) CreateGrade(ctx context.Context, g academic.Grade) (academic.Grade, error) {
	_, err := repo.exec.ExecContext(ctx, `INSERT INTO grade (id, student_id, evaluation_id, score) VALUES ($1, $2, $3, $4)`,
		g.ID, g.StudentID, g.EvaluationID, g.Score)
	if err != nil {
		if isUniqueViolation(err, "grade_student_evaluation_key") {
			return academic.Grade{}, academic.ErrGradeExists
		}
		return academic.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return repo.GetGrade(ctx, unrestricted, g.ID)
}

func (repo *academicRepository) QueryGrades(ctx context.Context, scope user.Scope, filter academic.GradeFilter) ([]academic.Grade, error) {
	var w where
	gradeScope(&w, scope)
	if filter.StudentID != "" {
		w.add("g.student_id = ?", filter.StudentID)
	}
	if filter.SubjectID != "" {
		w.add("sub.id = ?", filter.SubjectID)
	}
	if filter.EvaluationID != "" {
		w.add("g.evaluation_id = ?", filter.EvaluationID)
	}

	grades := make([]academic.Grade, 0)
	err := repo.sel(ctx, &grades, "querying grades",
		gradeSelect+w.String()+` ORDER BY sub.name, e.lapso, e.date, g.id`, w.args...)
	return grades, err
}

func (repo *academicRepository) GetGrade(ctx context.Context, scope user.Scope, id string) (academic.Grade, error) {
	var w where
	w.add("g.id = ?", id)
	gradeScope(&w, scope)

	var g academic.Grade
	err := repo.get(ctx, &g, academic.ErrGradeNotFound, "finding grade", gradeSelect+w.String(), w.args...)
	return g, err
}

func (repo *academicRepository) UpdateGrade(ctx context.Context, g academic.Grade) (academic.Grade, error) {
	err := execAffecting(ctx, repo.exec, academic.ErrGradeNotFound, "updating grade",
		`UPDATE grade SET score = ? WHERE id = ?`, g.Score, g.ID)
	if err != nil {
		return academic.Grade{}, err
	}
	return repo.GetGrade(ctx, unrestricted, g.ID)
}

func (repo *academicRepository) DeleteGrade(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrGradeNotFound, "deleting grade", `DELETE FROM grade WHERE id = ?`, id)
}

func (repo *academicRepository) ReportCardEntries(ctx context.Context, studentID string) ([]academic.GradeEntry, error) {
	q := `SELECT g.id AS grade_id, sub.name AS subject_name, e.lapso AS term, e.percentage AS weight, g.score
		FROM grade g
		JOIN evaluation e ON e.id = g.evaluation_id
		JOIN subject sub ON sub.id = e.subject_id
		WHERE g.student_id = ?
		ORDER BY g.id`
	entries := make([]academic.GradeEntry, 0)
	err := repo.sel(ctx, &entries, "reading report card entries", q, studentID)
	return entries, err
}

// Schedules

func weekdayOrder() interface{} {
	days := make([]string, 0, len(academic.Weekdays))
	for _, d := range academic.Weekdays {
		days = append(days, string(d))
	}
	return pq.Array(days)
}

func (repo *academicRepository) PartitionBlocks(ctx context.Context, gradeLevel, section string, day academic.Day) ([]academic.Block, error) {
	schedules := make([]academic.Schedule, 0)
	err := repo.sel(ctx, &schedules, "reading schedule partition",
		scheduleSelect+` WHERE sub.grade_level = ? AND sub.section = ? AND sch.day = ? ORDER BY sch.start_time, sch.id`,
		gradeLevel, section, day)
	if err != nil {
		return nil, err
	}
	blocks := make([]academic.Block, 0, len(schedules))
	for _, sch := range schedules {
		blocks = append(blocks, sch.Block())
	}
	return blocks, nil
}

func (repo *academicRepository) CreateSchedule(ctx context.Context, sch academic.Schedule) (academic.Schedule, error) {
	q := `INSERT INTO schedule (id, subject_id, day, start_time, end_time, room) VALUES (:id, :subject_id, :day, :start_time, :end_time, :room)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, sch); err != nil {
		if isForeignKeyViolation(err) {
			return academic.Schedule{}, academic.ErrSubjectNotFound
		}
		return academic.Schedule{}, errors.Wrap(err, "inserting schedule")
	}
	return repo.GetSchedule(ctx, sch.ID)
}

func (repo *academicRepository) QuerySchedules(ctx context.Context, filter academic.ScheduleFilter) ([]academic.Schedule, error) {
	var w where
	if filter.SubjectID != "" {
		w.add("sch.subject_id = ?", filter.SubjectID)
	}
	if filter.GradeLevel != "" {
		w.add("sub.grade_level = ?", filter.GradeLevel)
	}
	if filter.Section != "" {
		w.add("sub.section = ?", filter.Section)
	}
	if filter.Day != "" {
		w.add("sch.day = ?", filter.Day)
	}

	args := append(w.args, weekdayOrder())
	schedules := make([]academic.Schedule, 0)
	err := repo.sel(ctx, &schedules, "querying schedules",
		scheduleSelect+w.String()+` ORDER BY array_position(?::text[], sch.day::text), sch.start_time, sch.id`, args...)
	return schedules, err
}

func (repo *academicRepository) GetSchedule(ctx context.Context, id string) (academic.Schedule, error) {
	var sch academic.Schedule
	err := repo.get(ctx, &sch, academic.ErrScheduleNotFound, "finding schedule", scheduleSelect+` WHERE sch.id = ?`, id)
	return sch, err
}

func (repo *academicRepository) UpdateSchedule(ctx context.Context, sch academic.Schedule) (academic.Schedule, error) {
	err := execAffecting(ctx, repo.exec, academic.ErrScheduleNotFound, "updating schedule",
		`UPDATE schedule SET subject_id = ?, day = ?, start_time = ?, end_time = ?, room = ? WHERE id = ?`,
		sch.SubjectID, sch.Day, sch.StartTime, sch.EndTime, sch.Room, sch.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return academic.Schedule{}, academic.ErrSubjectNotFound
		}
		return academic.Schedule{}, err
	}
	return repo.GetSchedule(ctx, sch.ID)
}

func (repo *academicRepository) DeleteSchedule(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, academic.ErrScheduleNotFound, "deleting schedule", `DELETE FROM schedule WHERE id = ?`, id)
}

var unrestricted = user.Scope{Kind: user.ScopeStaff}
