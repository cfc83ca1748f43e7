package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/academic"
)

type scheduleApi struct {
	svc      academic.Service
	validate *validator.Validate
}

func registerScheduleAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	scope echo.MiddlewareFunc,
	svc academic.Service,
	validate *validator.Validate,
) {
	api := scheduleApi{svc: svc, validate: validate}

	sg := g.Group("/schedules", jwt, scope)
	sg.POST("", api.create, staffMiddleware())
	sg.GET("", api.query)

	dg := sg.Group("/:id", objectMiddleware(api.get))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staffMiddleware())
	dg.DELETE("", api.destroy, staffMiddleware())
}

func (api *scheduleApi) get(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.GetSchedule(ctx.Request().Context(), id)
}

func (api *scheduleApi) create(ctx echo.Context) error {
	var data academic.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, err := api.svc.CreateSchedule(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *scheduleApi) query(ctx echo.Context) error {
	var filter academic.ScheduleFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []academic.Schedule{})
	}

	schedules, err := api.svc.QuerySchedules(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	if schedules == nil {
		schedules = []academic.Schedule{}
	}
	return ctx.JSON(http.StatusOK, schedules)
}

func (api *scheduleApi) retrieve(ctx echo.Context) error {
	sch, ok := ctx.Get(contextObjectKey).(academic.Schedule)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving schedule from context")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scheduleApi) update(ctx echo.Context) error {
	sch, ok := ctx.Get(contextObjectKey).(academic.Schedule)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving schedule from context")
	}

	var data academic.UpdateSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, err := api.svc.UpdateSchedule(ctx.Request().Context(), sch, data)
	if err != nil {
		return errors.Wrap(err, "updating schedule")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *scheduleApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteSchedule(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	return ctx.NoContent(http.StatusNoContent)
}
