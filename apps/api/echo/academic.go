package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/academic"
)

type academicApi struct {
	svc      academic.Service
	validate *validator.Validate
}

func registerAcademicAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	scope echo.MiddlewareFunc,
	svc academic.Service,
	validate *validator.Validate,
) {
	api := academicApi{svc: svc, validate: validate}

	// teachers: office staff only
	tg := g.Group("/teachers", jwt, scope, staffMiddleware())
	tg.POST("", api.createTeacher)
	tg.GET("", api.queryTeachers)
	tdg := tg.Group("/:id", objectMiddleware(api.getTeacher))
	tdg.GET("", api.retrieve)
	tdg.PUT("", api.updateTeacher)
	tdg.DELETE("", api.destroyTeacher)

	// students: representatives only see their own
	sg := g.Group("/students", jwt, scope)
	sg.POST("", api.createStudent, staffMiddleware())
	sg.GET("", api.queryStudents)
	sdg := sg.Group("/:id", objectMiddleware(api.getStudent))
	sdg.GET("", api.retrieve)
	sdg.PUT("", api.updateStudent, staffMiddleware())
	sdg.DELETE("", api.destroyStudent, staffMiddleware())
	sg.GET("/:id/report-card", api.reportCard)
	sg.POST("/:id/report-card/email", api.emailReportCard, teacherOrStaffMiddleware())

	// subjects: teachers only see those they teach
	subg := g.Group("/subjects", jwt, scope)
	subg.POST("", api.createSubject, staffMiddleware())
	subg.GET("", api.querySubjects)
	subdg := subg.Group("/:id", objectMiddleware(api.getSubject))
	subdg.GET("", api.retrieve)
	subdg.PUT("", api.updateSubject, staffMiddleware())
	subdg.DELETE("", api.destroySubject, staffMiddleware())

	// evaluations: teachers manage those of their own subjects
	eg := g.Group("/evaluations", jwt, scope)
	eg.POST("", api.createEvaluation, teacherOrStaffMiddleware())
	eg.GET("", api.queryEvaluations)
	edg := eg.Group("/:id", objectMiddleware(api.getEvaluation))
	edg.GET("", api.retrieve)
	edg.PUT("", api.updateEvaluation, teacherOrStaffMiddleware())
	edg.DELETE("", api.destroyEvaluation, teacherOrStaffMiddleware())

	// grades: scoped to the representative's students / the teacher's subjects
	gg := g.Group("/grades", jwt, scope)
	gg.POST("", api.createGrade, teacherOrStaffMiddleware())
	gg.GET("", api.queryGrades)
	gdg := gg.Group("/:id", objectMiddleware(api.getGrade))
	gdg.GET("", api.retrieve)
	gdg.PUT("", api.updateGrade, teacherOrStaffMiddleware())
	gdg.DELETE("", api.destroyGrade, teacherOrStaffMiddleware())
}

// object loaders

func (api *academicApi) getTeacher(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.GetTeacher(ctx.Request().Context(), id)
}

func (api *academicApi) getStudent(ctx echo.Context, id string) (interface{}, error) {
	scope, err := getContextScope(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.GetStudent(ctx.Request().Context(), scope, id)
}

func (api *academicApi) getSubject(ctx echo.Context, id string) (interface{}, error) {
	scope, err := getContextScope(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.GetSubject(ctx.Request().Context(), scope, id)
}

func (api *academicApi) getEvaluation(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.GetEvaluation(ctx.Request().Context(), id)
}

func (api *academicApi) getGrade(ctx echo.Context, id string) (interface{}, error) {
	scope, err := getContextScope(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.GetGrade(ctx.Request().Context(), scope, id)
}

func (api *academicApi) retrieve(ctx echo.Context) error {
	obj := ctx.Get(contextObjectKey)
	if obj == nil {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, obj)
}

// Teachers

func (api *academicApi) createTeacher(ctx echo.Context) error {
	var data academic.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.CreateTeacher(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *academicApi) queryTeachers(ctx echo.Context) error {
	teachers, err := api.svc.QueryTeachers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []academic.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *academicApi) updateTeacher(ctx echo.Context) error {
	t, ok := ctx.Get(contextObjectKey).(academic.Teacher)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving teacher from context")
	}

	var data academic.UpdateTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateTeacher(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *academicApi) destroyTeacher(ctx echo.Context) error {
	if err := api.svc.DeleteTeacher(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *academicApi) createStudent(ctx echo.Context) error {
	var data academic.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, st)
}

func (api *academicApi) queryStudents(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var filter academic.StudentFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Student{})
	}

	students, err := api.svc.QueryStudents(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []academic.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *academicApi) updateStudent(ctx echo.Context) error {
	st, ok := ctx.Get(contextObjectKey).(academic.Student)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving student from context")
	}

	var data academic.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	st, err := api.svc.UpdateStudent(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *academicApi) destroyStudent(ctx echo.Context) error {
	if err := api.svc.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subjects

func (api *academicApi) createSubject(ctx echo.Context) error {
	var data academic.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	subj, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, subj)
}

func (api *academicApi) querySubjects(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var filter academic.SubjectFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Subject{})
	}

	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []academic.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *academicApi) updateSubject(ctx echo.Context) error {
	subj, ok := ctx.Get(contextObjectKey).(academic.Subject)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving subject from context")
	}

	var data academic.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	subj, err := api.svc.UpdateSubject(ctx.Request().Context(), subj, data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, subj)
}

func (api *academicApi) destroySubject(ctx echo.Context) error {
	if err := api.svc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Evaluations

func (api *academicApi) createEvaluation(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var data academic.NewEvaluation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ev, err := api.svc.CreateEvaluation(ctx.Request().Context(), scope, data)
	if err != nil {
		return errors.Wrap(err, "creating evaluation")
	}
	return ctx.JSON(http.StatusCreated, ev)
}

func (api *academicApi) queryEvaluations(ctx echo.Context) error {
	var filter academic.EvaluationFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Evaluation{})
	}

	evaluations, err := api.svc.QueryEvaluations(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying evaluations")
	}
	if evaluations == nil {
		evaluations = []academic.Evaluation{}
	}
	return ctx.JSON(http.StatusOK, evaluations)
}

func (api *academicApi) updateEvaluation(ctx echo.Context) error {
	ev, ok := ctx.Get(contextObjectKey).(academic.Evaluation)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving evaluation from context")
	}
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}

	var data academic.UpdateEvaluation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvaluation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	ev, err = api.svc.UpdateEvaluation(ctx.Request().Context(), scope, ev, data)
	if err != nil {
		return errors.Wrap(err, "updating evaluation")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *academicApi) destroyEvaluation(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteEvaluation(ctx.Request().Context(), scope, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting evaluation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Grades

func (api *academicApi) createGrade(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var data academic.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.CreateGrade(ctx.Request().Context(), scope, data)
	if err != nil {
		return errors.Wrap(err, "creating grade")
	}
	return ctx.JSON(http.StatusCreated, g)
}

func (api *academicApi) queryGrades(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var filter academic.GradeFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Grade{})
	}

	grades, err := api.svc.QueryGrades(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	if grades == nil {
		grades = []academic.Grade{}
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *academicApi) updateGrade(ctx echo.Context) error {
	g, ok := ctx.Get(contextObjectKey).(academic.Grade)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving grade from context")
	}
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}

	var data academic.UpdateGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGrade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	g, err = api.svc.UpdateGrade(ctx.Request().Context(), scope, g, data)
	if err != nil {
		return errors.Wrap(err, "updating grade")
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *academicApi) destroyGrade(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteGrade(ctx.Request().Context(), scope, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return ctx.NoContent(http.StatusNoContent)
}
