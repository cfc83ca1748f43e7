package echoapi

import (
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/billing"
)

const (
	defaultRatesLimit = 30
	proofFormField    = "proof_image"
)

var errInvalidAmount = errors.New("must be a decimal number")

type billingApi struct {
	svc       billing.Service
	validate  *validator.Validate
	mediaRoot string
}

func registerBillingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	scope echo.MiddlewareFunc,
	svc billing.Service,
	validate *validator.Validate,
	mediaRoot string,
) {
	api := billingApi{svc: svc, validate: validate, mediaRoot: mediaRoot}

	// exchange rates
	rg := g.Group("/rates")
	rg.GET("/current", api.currentRate)
	rg.GET("", api.queryRates, jwt, scope, staffMiddleware())

	// payment concepts
	cg := g.Group("/payment-concepts", jwt, scope)
	cg.GET("", api.queryConcepts)
	cg.POST("", api.createConcept, staffMiddleware())
	cdg := cg.Group("/:id", objectMiddleware(api.getConcept))
	cdg.GET("", api.retrieveConcept)
	cdg.PUT("", api.updateConcept, staffMiddleware())
	cdg.DELETE("", api.destroyConcept, staffMiddleware())

	// payments: representatives only see those of their students
	pg := g.Group("/payments", jwt, scope)
	pg.POST("", api.reportPayment, representativeOrStaffMiddleware())
	pg.GET("", api.queryPayments)
	pdg := pg.Group("/:id", objectMiddleware(api.getPayment))
	pdg.GET("", api.retrievePayment)
	pdg.GET("/proof", api.paymentProof)
	pdg.POST("/review", api.reviewPayment, staffMiddleware())
}

// Rates

func (api *billingApi) currentRate(ctx echo.Context) error {
	quote, err := api.svc.CurrentRate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "quoting current rate")
	}
	return ctx.JSON(http.StatusOK, quote)
}

func (api *billingApi) queryRates(ctx echo.Context) error {
	limit := defaultRatesLimit
	if l, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}

	rates, err := api.svc.QueryRates(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "querying rates")
	}
	if rates == nil {
		rates = []billing.ExchangeRate{}
	}
	return ctx.JSON(http.StatusOK, rates)
}

// Concepts

func (api *billingApi) getConcept(ctx echo.Context, id string) (interface{}, error) {
	return api.svc.GetConcept(ctx.Request().Context(), id)
}

func (api *billingApi) createConcept(ctx echo.Context) error {
	var data billing.NewPaymentConcept
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPaymentConcept")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pc, err := api.svc.CreateConcept(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment concept")
	}
	return ctx.JSON(http.StatusCreated, pc)
}

func (api *billingApi) queryConcepts(ctx echo.Context) error {
	concepts, err := api.svc.QueryConcepts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying payment concepts")
	}
	if concepts == nil {
		concepts = []billing.PaymentConcept{}
	}
	return ctx.JSON(http.StatusOK, concepts)
}

func (api *billingApi) retrieveConcept(ctx echo.Context) error {
	pc, ok := ctx.Get(contextObjectKey).(billing.PaymentConcept)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving payment concept from context")
	}
	return ctx.JSON(http.StatusOK, pc)
}

func (api *billingApi) updateConcept(ctx echo.Context) error {
	pc, ok := ctx.Get(contextObjectKey).(billing.PaymentConcept)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving payment concept from context")
	}

	var data billing.UpdatePaymentConcept
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePaymentConcept")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pc, err := api.svc.UpdateConcept(ctx.Request().Context(), pc, data)
	if err != nil {
		return errors.Wrap(err, "updating payment concept")
	}
	return ctx.JSON(http.StatusOK, pc)
}

func (api *billingApi) destroyConcept(ctx echo.Context) error {
	if err := api.svc.DeleteConcept(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting payment concept")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Payments

func (api *billingApi) getPayment(ctx echo.Context, id string) (interface{}, error) {
	scope, err := getContextScope(ctx)
	if err != nil {
		return nil, err
	}
	return api.svc.GetPayment(ctx.Request().Context(), scope, id)
}

// reportPayment reads a multipart form: the payment fields plus the `proof_image` file.
func (api *billingApi) reportPayment(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}

	data := billing.NewPayment{
		StudentID:        ctx.FormValue("student_id"),
		PaymentConceptID: ctx.FormValue("payment_concept_id"),
		Concept:          ctx.FormValue("concept"),
		ReferenceNumber:  ctx.FormValue("reference_number"),
		BillingName:      ctx.FormValue("billing_name"),
		BillingID:        ctx.FormValue("billing_id"),
		BillingAddress:   ctx.FormValue("billing_address"),
	}
	if amount := ctx.FormValue("amount_usd"); amount != "" {
		if data.AmountUSD, err = decimal.NewFromString(amount); err != nil {
			return core.NewFieldValidationError("amount_usd", errInvalidAmount)
		}
	}

	if fh, err := ctx.FormFile(proofFormField); err == nil {
		file, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening proof image")
		}
		defer file.Close()
		data.Proof, data.ProofFilename = file, fh.Filename
	} else if err != http.ErrMissingFile && err != http.ErrNotMultipart {
		return errors.Wrap(err, "reading proof image")
	}

	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.ReportPayment(ctx.Request().Context(), scope, data)
	if err != nil {
		return errors.Wrap(err, "reporting payment")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *billingApi) queryPayments(ctx echo.Context) error {
	scope, err := getContextScope(ctx)
	if err != nil {
		return err
	}
	var filter billing.PaymentFilter
	if err = ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []billing.Payment{})
	}

	payments, err := api.svc.QueryPayments(ctx.Request().Context(), scope, filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []billing.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *billingApi) retrievePayment(ctx echo.Context) error {
	p, ok := ctx.Get(contextObjectKey).(billing.Payment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving payment from context")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *billingApi) paymentProof(ctx echo.Context) error {
	p, ok := ctx.Get(contextObjectKey).(billing.Payment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving payment from context")
	}
	if p.ProofImage == "" {
		return errHttpNotFound
	}
	return ctx.File(filepath.Join(api.mediaRoot, filepath.FromSlash(path.Clean("/"+p.ProofImage))))
}

func (api *billingApi) reviewPayment(ctx echo.Context) error {
	p, ok := ctx.Get(contextObjectKey).(billing.Payment)
	if !ok {
		return errors.Wrap(errObjNotFoundInCtx, "retrieving payment from context")
	}

	var data billing.ReviewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReviewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.ReviewPayment(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "reviewing payment")
	}
	return ctx.JSON(http.StatusOK, p)
}
