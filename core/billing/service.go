package billing

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/user"
)

const proofsDir = "payments"

var (
	ErrRateNotFound    = core.NewNotFoundError("exchange rate")
	ErrConceptNotFound = core.NewNotFoundError("payment concept")
	ErrPaymentNotFound = core.NewNotFoundError("payment")

	ErrAlreadyReviewed = errors.New("this payment has already been reviewed")
	errProofRequired   = errors.New("the transfer proof image is required")
	errAmountRequired  = errors.New("the amount must be greater than 0")
)

type (
	// RateProvider fetches the live official exchange rate (Bs per USD).
	RateProvider interface {
		CurrentRate(ctx context.Context) (decimal.Decimal, error)
	}

	// FileStore keeps uploaded proof images.
	FileStore interface {
		SaveImage(ctx context.Context, dir string, r io.Reader, filename string) (string, error)
		Delete(path string) error
	}

	Repository interface {
		LatestRate(ctx context.Context) (ExchangeRate, error)
		CreateRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
		QueryRates(ctx context.Context, limit int) ([]ExchangeRate, error)

		CreateConcept(ctx context.Context, pc PaymentConcept) (PaymentConcept, error)
		QueryConcepts(ctx context.Context) ([]PaymentConcept, error)
		GetConcept(ctx context.Context, id string) (PaymentConcept, error)
		UpdateConcept(ctx context.Context, pc PaymentConcept) (PaymentConcept, error)
		DeleteConcept(ctx context.Context, id string) error

		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		// QueryPayments & GetPayment restrict representatives to the payments of their students.
		QueryPayments(ctx context.Context, scope user.Scope, filter PaymentFilter) ([]Payment, error)
		GetPayment(ctx context.Context, scope user.Scope, id string) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)
	}

	Service interface {
		CurrentRate(ctx context.Context) (RateQuote, error)
		QueryRates(ctx context.Context, limit int) ([]ExchangeRate, error)

		CreateConcept(ctx context.Context, nc NewPaymentConcept) (PaymentConcept, error)
		QueryConcepts(ctx context.Context) ([]PaymentConcept, error)
		GetConcept(ctx context.Context, id string) (PaymentConcept, error)
		UpdateConcept(ctx context.Context, pc PaymentConcept, uc UpdatePaymentConcept) (PaymentConcept, error)
		DeleteConcept(ctx context.Context, id string) error

		ReportPayment(ctx context.Context, scope user.Scope, np NewPayment) (Payment, error)
		QueryPayments(ctx context.Context, scope user.Scope, filter PaymentFilter) ([]Payment, error)
		GetPayment(ctx context.Context, scope user.Scope, id string) (Payment, error)
		ReviewPayment(ctx context.Context, p Payment, rp ReviewPayment) (Payment, error)
	}

	service struct {
		repo        Repository
		rates       RateProvider
		files       FileStore
		academicSvc academic.Service
		mailSvc     core.EmailService
		logger      core.Logger
		conf        *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	rates RateProvider,
	files FileStore,
	academicSvc academic.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:        repo,
		rates:       rates,
		files:       files,
		academicSvc: academicSvc,
		mailSvc:     mailSvc,
		logger:      logger,
		conf:        conf,
	}
}

// CurrentRate quotes the live rate, storing it when it differs from the latest stored one.
// When the provider is down it falls back to the latest stored rate, then to the configured one.
func (svc *service) CurrentRate(ctx context.Context) (RateQuote, error) {
	live, err := svc.rates.CurrentRate(ctx)
	if err == nil {
		live = live.Round(2)
		if err = svc.storeRate(ctx, live); err != nil {
			svc.logger.Error(fmt.Sprintf("billing.CurrentRate: %v", err), err)
		}
		return RateQuote{Rate: live, Source: SourceLive}, nil
	}
	svc.logger.Warn(fmt.Sprintf("billing.CurrentRate: live rate unavailable: %v", err))

	latest, err := svc.repo.LatestRate(ctx)
	switch {
	case err == nil:
		return RateQuote{Rate: latest.Rate, Source: SourceStored}, nil
	case core.IsNotFound(err):
		return RateQuote{Rate: svc.conf.Billing.FallbackRate, Source: SourceFallback}, nil
	default:
		return RateQuote{}, errors.Wrap(err, "reading latest rate")
	}
}

func (svc *service) storeRate(ctx context.Context, rate decimal.Decimal) error {
	latest, err := svc.repo.LatestRate(ctx)
	if err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "reading latest rate")
	}
	if err == nil && latest.Rate.Equal(rate) {
		return nil
	}
	now := time.Now().UTC()
	_, err = svc.repo.CreateRate(ctx, ExchangeRate{
		ID:   uuid.NewString(),
		Date: academic.NewDate(now.Year(), now.Month(), now.Day()),
		Rate: rate,
	})
	return errors.Wrap(err, "storing rate")
}

func (svc *service) QueryRates(ctx context.Context, limit int) ([]ExchangeRate, error) {
	return svc.repo.QueryRates(ctx, limit)
}

// Concepts

func (svc *service) CreateConcept(ctx context.Context, nc NewPaymentConcept) (PaymentConcept, error) {
	return svc.repo.CreateConcept(ctx, PaymentConcept{
		ID:        uuid.NewString(),
		Name:      nc.Name,
		AmountUSD: nc.AmountUSD,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) QueryConcepts(ctx context.Context) ([]PaymentConcept, error) {
	return svc.repo.QueryConcepts(ctx)
}

func (svc *service) GetConcept(ctx context.Context, id string) (PaymentConcept, error) {
	return svc.repo.GetConcept(ctx, id)
}

func (svc *service) UpdateConcept(ctx context.Context, pc PaymentConcept, uc UpdatePaymentConcept) (PaymentConcept, error) {
	if uc.Name != nil {
		if name := core.CleanString(*uc.Name); name != "" {
			pc.Name = name
		}
	}
	if uc.AmountUSD != nil {
		pc.AmountUSD = *uc.AmountUSD
	}
	return svc.repo.UpdateConcept(ctx, pc)
}

func (svc *service) DeleteConcept(ctx context.Context, id string) error {
	return svc.repo.DeleteConcept(ctx, id)
}

// Payments

// ReportPayment records a PENDING payment converted at the current rate.
func (svc *service) ReportPayment(ctx context.Context, scope user.Scope, np NewPayment) (Payment, error) {
	student, err := svc.academicSvc.GetStudent(ctx, scope, np.StudentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Payment{}, core.NewFieldValidationError("student_id", err)
		}
		return Payment{}, errors.Wrap(err, "finding student")
	}

	p := Payment{
		ID:              uuid.NewString(),
		StudentID:       student.ID,
		AmountUSD:       np.AmountUSD,
		Concept:         np.Concept,
		ReferenceNumber: np.ReferenceNumber,
		Status:          StatusPending,
		BillingName:     np.BillingName,
		BillingID:       np.BillingID,
		BillingAddress:  np.BillingAddress,
	}
	if np.PaymentConceptID != "" {
		concept, err := svc.repo.GetConcept(ctx, np.PaymentConceptID)
		if err != nil {
			if core.IsNotFound(err) {
				return Payment{}, core.NewFieldValidationError("payment_concept_id", err)
			}
			return Payment{}, errors.Wrap(err, "finding payment concept")
		}
		p.PaymentConceptID = null.StringFrom(concept.ID)
		if p.AmountUSD.IsZero() {
			p.AmountUSD = concept.AmountUSD
		}
		if p.Concept == "" {
			p.Concept = concept.Name
		}
	}
	if !p.AmountUSD.IsPositive() {
		return Payment{}, core.NewFieldValidationError("amount_usd", errAmountRequired)
	}

	quote, err := svc.CurrentRate(ctx)
	if err != nil {
		return Payment{}, err
	}
	p.RateApplied = quote.Rate
	p.AmountBs = AmountInBs(p.AmountUSD, quote.Rate)

	if p.ProofImage, err = svc.files.SaveImage(ctx, proofsDir, np.Proof, np.ProofFilename); err != nil {
		return Payment{}, err
	}
	p.DateReported = time.Now().UTC()

	created, err := svc.repo.CreatePayment(ctx, p)
	if err != nil {
		if delErr := svc.files.Delete(p.ProofImage); delErr != nil {
			svc.logger.Error(fmt.Sprintf("billing.ReportPayment: deleting %s: %v", p.ProofImage, delErr), delErr)
		}
		return Payment{}, err
	}
	return created, nil
}

func (svc *service) QueryPayments(ctx context.Context, scope user.Scope, filter PaymentFilter) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, scope, filter)
}

func (svc *service) GetPayment(ctx context.Context, scope user.Scope, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, scope, id)
}

// ReviewPayment verifies or rejects a PENDING payment and notifies the representative.
func (svc *service) ReviewPayment(ctx context.Context, p Payment, rp ReviewPayment) (Payment, error) {
	if p.Status != StatusPending {
		return Payment{}, core.NewFieldValidationError("status", ErrAlreadyReviewed)
	}
	p.Status = rp.Status
	p.AdminNote = null.NewString(rp.AdminNote, rp.AdminNote != "")

	updated, err := svc.repo.UpdatePayment(ctx, p)
	if err != nil {
		return Payment{}, err
	}
	if updated.RepresentativeEmail != "" {
		svc.mailSvc.SendMessages(svc.reviewMessage(updated))
	}
	return updated, nil
}

func (svc *service) reviewMessage(p Payment) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: p.RepresentativeName, Address: p.RepresentativeEmail}},
		Subject:      fmt.Sprintf("Pago %s: %s", p.ReferenceNumber, p.Status.Label()),
		TemplateName: "payment_reviewed",
		TemplateData: map[string]string{
			"RepresentativeName": p.RepresentativeName,
			"ReferenceNumber":    p.ReferenceNumber,
			"Concept":            p.Concept,
			"StudentName":        p.StudentName,
			"AmountUSD":          p.AmountUSD.StringFixed(2),
			"AmountBs":           p.AmountBs.StringFixed(2),
			"StatusText":         p.Status.Label(),
			"AdminNote":          p.AdminNote.String,
		},
	}
}
