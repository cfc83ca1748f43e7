package echoapi

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/user"
	"github.com/trezcool/colegio/tests"
)

type school struct {
	admin, clerk            user.User
	teacherUsr, otherTchUsr user.User
	rep, otherRep           user.User

	teacher, otherTeacher academic.Teacher
	ana, luis             academic.Student
	maths, history        academic.Subject
}

// seedSchool: Ana (rep) & Luis (otherRep) in 1er Año A; teacher teaches Matemáticas, otherTeacher Historia.
func seedSchool(t *testing.T, app *testApp) school {
	var s school
	s.admin = testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.ve", "", []string{user.RoleAdmin}, true)
	s.clerk = testutil.CreateUser(t, app.usrRepo, "Oficina", "clerk", "clerk@test.ve", "", []string{user.RoleClerk}, true)
	s.teacherUsr = testutil.CreateUser(t, app.usrRepo, "Carlos Díaz", "cdiaz", "cdiaz@test.ve", "", []string{user.RoleTeacher}, true)
	s.otherTchUsr = testutil.CreateUser(t, app.usrRepo, "Elena Ruiz", "eruiz", "eruiz@test.ve", "", []string{user.RoleTeacher}, true)
	s.rep = testutil.CreateUser(t, app.usrRepo, "María Pérez", "mperez", "mperez@test.ve", "", []string{user.RoleRepresentative}, true)
	s.otherRep = testutil.CreateUser(t, app.usrRepo, "Luis Gómez", "lgomez", "lgomez@test.ve", "", []string{user.RoleRepresentative}, true)

	s.teacher = testutil.CreateTeacher(t, app.acadRepo, s.teacherUsr, "Matemáticas")
	s.otherTeacher = testutil.CreateTeacher(t, app.acadRepo, s.otherTchUsr, "Ciencias Sociales")
	s.ana = testutil.CreateStudent(t, app.acadRepo, s.rep, "Ana", "Pérez", "V-30111222", "1er Año", "A")
	s.luis = testutil.CreateStudent(t, app.acadRepo, s.otherRep, "Luis", "Gómez", "V-30333444", "1er Año", "A")
	s.maths = testutil.CreateSubject(t, app.acadRepo, "Matemáticas", "1er Año", "A", s.teacher)
	s.history = testutil.CreateSubject(t, app.acadRepo, "Historia", "1er Año", "A", s.otherTeacher)
	return s
}

func Test_academicApi_teachers(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	newcomer := testutil.CreateUser(t, app.usrRepo, "Pedro Mora", "pmora", "pmora@test.ve", "", []string{user.RoleTeacher}, true)
	clerkToken := getToken(t, app, s.clerk)

	runHTTPTests(t, app, []httpTest{
		{name: "Auth required", path: "/v1/teachers", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "Staff required", path: "/v1/teachers", token: getToken(t, app, s.teacherUsr), wantCode: http.StatusForbidden},
		{name: "list", path: "/v1/teachers", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, s.teacher, s.otherTeacher)},
		{name: "retrieve", path: "/v1/teachers/" + s.teacher.ID, token: clerkToken, wantCode: http.StatusOK, wantData: marshallObj(t, s.teacher)},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/teachers", token: clerkToken,
			body: []byte(`{"user_id":"9f1c5f59-2d0a-4a7c-a0c8-3b1f2f4f6d1e"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"user_id": "user not found"}),
		},
		{
			name: "already a teacher", method: http.MethodPost, path: "/v1/teachers", token: clerkToken,
			body: []byte(`{"user_id":"` + s.teacherUsr.ID + `"}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"user_id": academic.ErrTeacherExists.Error()}),
		},
		{
			name: "create", method: http.MethodPost, path: "/v1/teachers", token: clerkToken,
			body: []byte(`{"user_id":"` + newcomer.ID + `","specialty":"  Física "}`), wantCode: http.StatusCreated,
		},
		{
			name: "update", method: http.MethodPut, path: "/v1/teachers/" + s.otherTeacher.ID, token: clerkToken,
			body: []byte(`{"specialty":"Historia Universal"}`), wantCode: http.StatusOK,
		},
	})

	teachers, err := app.acadRepo.QueryTeachers(context.Background())
	require.NoError(t, err)
	require.Len(t, teachers, 3)
	for _, tch := range teachers {
		switch tch.UserID {
		case newcomer.ID:
			assert.Equal(t, "Física", tch.Specialty)
			assert.Equal(t, "Pedro Mora", tch.Name)
		case s.otherTchUsr.ID:
			assert.Equal(t, "Historia Universal", tch.Specialty)
		}
	}
}

func Test_academicApi_students(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	repToken := getToken(t, app, s.rep)
	clerkToken := getToken(t, app, s.clerk)

	newStudent := func(repID, idNumber string) []byte {
		return []byte(`{"representative_id":"` + repID + `","first_name":" josé ","last_name":"Pérez","id_number":"` +
			idNumber + `","birth_date":"2013-05-20","current_grade":"1er Año","section":"A"}`)
	}

	runHTTPTests(t, app, []httpTest{
		{name: "representative sees own", path: "/v1/students", token: repToken, wantCode: http.StatusOK, wantData: marshallList(t, s.ana)},
		{name: "staff sees all", path: "/v1/students", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, s.luis, s.ana)},
		{name: "teachers see all", path: "/v1/students", token: getToken(t, app, s.teacherUsr), wantCode: http.StatusOK, wantData: marshallList(t, s.luis, s.ana)},
		{name: "search", path: "/v1/students?search=v-3011", token: clerkToken, wantCode: http.StatusOK, wantData: marshallList(t, s.ana)},
		{name: "retrieve own", path: "/v1/students/" + s.ana.ID, token: repToken, wantCode: http.StatusOK, wantData: marshallObj(t, s.ana)},
		{
			name: "someone else's child is hidden", path: "/v1/students/" + s.luis.ID, token: repToken, wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "representatives cannot enroll", method: http.MethodPost, path: "/v1/students", token: repToken,
			body: newStudent(s.rep.ID, "V-30555666"), wantCode: http.StatusForbidden,
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/students", token: clerkToken,
			body: []byte(`{"representative_id":"` + s.rep.ID + `"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate id number", method: http.MethodPost, path: "/v1/students", token: clerkToken,
			body: newStudent(s.rep.ID, s.luis.IDNumber), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"id_number": academic.ErrIDNumberExists.Error()}),
		},
		{
			name: "enroll", method: http.MethodPost, path: "/v1/students", token: clerkToken,
			body: newStudent(s.rep.ID, "V-30555666"), wantCode: http.StatusCreated,
		},
		{
			name: "change section", method: http.MethodPut, path: "/v1/students/" + s.luis.ID, token: clerkToken,
			body: []byte(`{"section":"B"}`), wantCode: http.StatusOK,
		},
		{name: "delete", method: http.MethodDelete, path: "/v1/students/" + s.luis.ID, token: clerkToken, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/students/" + s.luis.ID, token: clerkToken, wantCode: http.StatusNotFound},
	})

	req, rec := newAuthRequest(http.MethodGet, "/v1/students", repToken)
	app.ServeHTTP(rec, req)
	var students []academic.Student
	decodeBody(t, rec, &students)
	require.Len(t, students, 2)
	assert.Equal(t, "josé", students[1].FirstName, "sorted by last name then first name; names are trimmed")
}

func Test_academicApi_subjects(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	teacherToken := getToken(t, app, s.teacherUsr)
	adminToken := getToken(t, app, s.admin)

	runHTTPTests(t, app, []httpTest{
		{name: "teacher sees own", path: "/v1/subjects", token: teacherToken, wantCode: http.StatusOK, wantData: marshallList(t, s.maths)},
		{name: "staff sees all", path: "/v1/subjects", token: adminToken, wantCode: http.StatusOK, wantData: marshallList(t, s.history, s.maths)},
		{name: "representatives see all", path: "/v1/subjects", token: getToken(t, app, s.rep), wantCode: http.StatusOK, wantData: marshallList(t, s.history, s.maths)},
		{name: "other teacher's subject is hidden", path: "/v1/subjects/" + s.history.ID, token: teacherToken, wantCode: http.StatusNotFound},
		{
			name: "teachers cannot create", method: http.MethodPost, path: "/v1/subjects", token: teacherToken,
			body: []byte(`{"name":"Física","grade_level":"1er Año"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown teacher", method: http.MethodPost, path: "/v1/subjects", token: adminToken,
			body:     []byte(`{"name":"Física","grade_level":"1er Año","teacher_id":"9f1c5f59-2d0a-4a7c-a0c8-3b1f2f4f6d1e"}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"teacher_id": "teacher not found"}),
		},
		{
			name: "create (default section)", method: http.MethodPost, path: "/v1/subjects", token: adminToken,
			body: []byte(`{"name":"Física","grade_level":"2do Año"}`), wantCode: http.StatusCreated,
		},
		{
			name: "unassign teacher", method: http.MethodPut, path: "/v1/subjects/" + s.history.ID, token: adminToken,
			body: []byte(`{"teacher_id":""}`), wantCode: http.StatusOK,
		},
	})

	subjects, err := app.acadRepo.QuerySubjects(context.Background(), user.Scope{Kind: user.ScopeStaff}, academic.SubjectFilter{GradeLevel: "2do Año"})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, academic.DefaultSection, subjects[0].Section)

	hist, err := app.acadRepo.GetSubject(context.Background(), user.Scope{Kind: user.ScopeStaff}, s.history.ID)
	require.NoError(t, err)
	assert.False(t, hist.TeacherID.Valid)
}

func Test_academicApi_evaluationsAndGrades(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	teacherToken := getToken(t, app, s.teacherUsr)
	mathsTest := testutil.CreateEvaluation(t, app.acadRepo, s.maths, "Prueba corta", "20", 1)
	historyTest := testutil.CreateEvaluation(t, app.acadRepo, s.history, "Exposición", "30", 1)
	anaHistory := testutil.CreateGrade(t, app.acadRepo, s.ana, historyTest, "15")
	luisHistory := testutil.CreateGrade(t, app.acadRepo, s.luis, historyTest, "12")
	// same evaluation: the listing breaks the tie on grade ID
	historyGrades := []academic.Grade{anaHistory, luisHistory}
	sort.Slice(historyGrades, func(i, j int) bool { return historyGrades[i].ID < historyGrades[j].ID })

	newEvaluation := func(subjectID string) []byte {
		return []byte(`{"subject_id":"` + subjectID + `","name":"Examen","percentage":"25.5","lapso":2,"date":"2024-11-20"}`)
	}
	newGrade := func(studentID, evaluationID, score string) []byte {
		return []byte(`{"student_id":"` + studentID + `","evaluation_id":"` + evaluationID + `","score":` + score + `}`)
	}
	notOwner := marshallObj(t, httpErr{Error: academic.ErrNotSubjectOwner.Error()})

	runHTTPTests(t, app, []httpTest{
		{
			name: "representatives cannot create evaluations", method: http.MethodPost, path: "/v1/evaluations",
			token: getToken(t, app, s.rep), body: newEvaluation(s.maths.ID), wantCode: http.StatusForbidden,
		},
		{
			name: "not the subject's teacher", method: http.MethodPost, path: "/v1/evaluations", token: teacherToken,
			body: newEvaluation(s.history.ID), wantCode: http.StatusForbidden, wantData: notOwner,
		},
		{
			name: "invalid lapso", method: http.MethodPost, path: "/v1/evaluations", token: teacherToken,
			body:     []byte(`{"subject_id":"` + s.maths.ID + `","name":"Examen","percentage":"20","lapso":4,"date":"2024-11-20"}`),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"lapso": "lapso must be 1, 2 or 3"}),
		},
		{
			name: "percentage above 100", method: http.MethodPost, path: "/v1/evaluations", token: teacherToken,
			body:     []byte(`{"subject_id":"` + s.maths.ID + `","name":"Examen","percentage":"100.5","lapso":1,"date":"2024-11-20"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "create evaluation", method: http.MethodPost, path: "/v1/evaluations", token: teacherToken,
			body: newEvaluation(s.maths.ID), wantCode: http.StatusCreated,
		},
		{
			name: "evaluations are listed by subject", path: "/v1/evaluations?subject_id=" + s.history.ID, token: teacherToken,
			wantCode: http.StatusOK, wantData: marshallList(t, historyTest),
		},
		{
			name: "cannot delete another teacher's evaluation", method: http.MethodDelete, path: "/v1/evaluations/" + historyTest.ID,
			token: teacherToken, wantCode: http.StatusForbidden, wantData: notOwner,
		},
		// grades
		{
			name: "grade another teacher's evaluation", method: http.MethodPost, path: "/v1/grades", token: teacherToken,
			body: newGrade(s.ana.ID, historyTest.ID, `"18"`), wantCode: http.StatusForbidden, wantData: notOwner,
		},
		{
			name: "score above 20", method: http.MethodPost, path: "/v1/grades", token: teacherToken,
			body: newGrade(s.ana.ID, mathsTest.ID, `"20.5"`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create grade", method: http.MethodPost, path: "/v1/grades", token: teacherToken,
			body: newGrade(s.ana.ID, mathsTest.ID, `"18.5"`), wantCode: http.StatusCreated,
		},
		{
			name: "duplicate grade", method: http.MethodPost, path: "/v1/grades", token: teacherToken,
			body: newGrade(s.ana.ID, mathsTest.ID, `"10"`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"evaluation_id": academic.ErrGradeExists.Error()}),
		},
		{
			name: "representative sees own child's grades", path: "/v1/grades?subject_id=" + s.history.ID,
			token: getToken(t, app, s.rep), wantCode: http.StatusOK, wantData: marshallList(t, anaHistory),
		},
		{
			name: "teacher only sees own subjects' grades", path: "/v1/grades?subject_id=" + s.history.ID,
			token: teacherToken, wantCode: http.StatusOK, wantData: marshallList(t),
		},
		{
			name: "other teacher grades", path: "/v1/grades?subject_id=" + s.history.ID, token: getToken(t, app, s.otherTchUsr),
			wantCode: http.StatusOK, wantData: marshallList(t, historyGrades[0], historyGrades[1]),
		},
		{
			name: "hidden grade", path: "/v1/grades/" + luisHistory.ID, token: getToken(t, app, s.rep),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "grade not found"}),
		},
		{
			name: "re-grade", method: http.MethodPut, path: "/v1/grades/" + luisHistory.ID, token: getToken(t, app, s.otherTchUsr),
			body: []byte(`{"score":"14.25"}`), wantCode: http.StatusOK,
		},
	})

	g, err := app.acadRepo.GetGrade(context.Background(), user.Scope{Kind: user.ScopeStaff}, luisHistory.ID)
	require.NoError(t, err)
	assert.Equal(t, "14.25", g.Score.String())

	evs, err := app.acadRepo.QueryEvaluations(context.Background(), academic.EvaluationFilter{SubjectID: s.maths.ID, Term: 2})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "25.5", evs[0].Percentage.String())
}

func Test_academicApi_reportCard(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	mathsTerm2 := testutil.CreateEvaluation(t, app.acadRepo, s.maths, "Examen", "20", 2)
	testutil.CreateGrade(t, app.acadRepo, s.ana, mathsTerm2, "20")
	historyTerm1 := testutil.CreateEvaluation(t, app.acadRepo, s.history, "Exposición", "20.00", 1)
	testutil.CreateGrade(t, app.acadRepo, s.ana, historyTerm1, "18.5")

	repToken := getToken(t, app, s.rep)

	t.Run("computed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+s.ana.ID+"/report-card", repToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Student academic.Student             `json:"student"`
			Rows    []academic.ReportRow         `json:"rows"`
			Grades  map[string]map[string]string `json:"grades"`
		}
		decodeBody(t, rec, &res)
		assert.Equal(t, s.ana.ID, res.Student.ID)
		assert.Equal(t, []academic.ReportRow{
			{Subject: "Historia", Term1: "3.70", Term2: "0.00", Term3: "0.00", Final: "1.23"},
			{Subject: "Matemáticas", Term1: "0.00", Term2: "4.00", Term3: "0.00", Final: "1.33"},
		}, res.Rows)
		assert.Equal(t, map[string]string{"1": "0", "2": "4", "3": "0", "final": "1.33"}, res.Grades["Matemáticas"])
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "someone else's child", path: "/v1/students/" + s.luis.ID + "/report-card", token: repToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "no grades yet", path: "/v1/students/" + s.luis.ID + "/report-card", token: getToken(t, app, s.otherRep),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, ReportCardResponse{Student: s.luis, Rows: []academic.ReportRow{}, Grades: map[string]map[string]decimal.Decimal{}}),
		},
		{
			name: "representatives cannot email", method: http.MethodPost, path: "/v1/students/" + s.ana.ID + "/report-card/email",
			token: repToken, wantCode: http.StatusForbidden,
		},
	})
}

func Test_academicApi_emailReportCard(t *testing.T) {
	app := setup(t)
	s := seedSchool(t, app)
	ev := testutil.CreateEvaluation(t, app.acadRepo, s.maths, "Examen", "20", 2)
	testutil.CreateGrade(t, app.acadRepo, s.ana, ev, "20")

	req, rec := newAuthRequest(http.MethodPost, "/v1/students/"+s.ana.ID+"/report-card/email", getToken(t, app, s.teacherUsr))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sent := app.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, s.rep.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Matemáticas: L1 0.00 | L2 4.00 | L3 0.00 | Final 1.33")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "text/csv", msg.Attachments[0].ContentType)
	assert.True(t, strings.HasPrefix(msg.Attachments[0].Filename, "boletin-"))
}
