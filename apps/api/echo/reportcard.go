package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core/academic"
)

// ReportCardResponse carries the same scores twice: as rendered rows & keyed by subject then term.
type ReportCardResponse struct {
	Student academic.Student                      `json:"student"`
	Rows    []academic.ReportRow                  `json:"rows"`
	Grades  map[string]map[string]decimal.Decimal `json:"grades"`
}

func (api *academicApi) reportCard(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}

	st, card, err := api.svc.ReportCard(ctx.Request().Context(), scope, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "computing report card")
	}
	return ctx.JSON(http.StatusOK, ReportCardResponse{Student: st, Rows: card.Rows(), Grades: card.Map()})
}

func (api *academicApi) emailReportCard(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.EmailReportCard(ctx.Request().Context(), scope, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "emailing report card")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "The report card has been sent to the representative."})
}
