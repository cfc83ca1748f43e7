package billing

import (
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/core/academic"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
)

var statusLabels = map[Status]string{
	StatusPending:  "En Revisión",
	StatusVerified: "Aprobado",
	StatusRejected: "Rechazado",
}

func (s Status) Label() string {
	return statusLabels[s]
}

// RateSource tells where a quoted exchange rate comes from.
type RateSource string

const (
	SourceLive     RateSource = "bcv"
	SourceStored   RateSource = "stored"
	SourceFallback RateSource = "fallback"
)

// ExchangeRate is the official Bs per USD rate of a day.
type ExchangeRate struct {
	ID   string          `json:"id" db:"id"`
	Date academic.Date   `json:"date" db:"date"`
	Rate decimal.Decimal `json:"rate" db:"rate"`
}

type RateQuote struct {
	Rate   decimal.Decimal `json:"rate"`
	Source RateSource      `json:"source"`
}

type PaymentConcept struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"` // e.g. "Mensualidad Noviembre"
	AmountUSD decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"` // UTC
}

type Payment struct {
	ID               string          `json:"id" db:"id"`
	StudentID        string          `json:"student_id" db:"student_id"`
	PaymentConceptID null.String     `json:"payment_concept_id" db:"payment_concept_id"`
	AmountUSD        decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	AmountBs         decimal.Decimal `json:"amount_bs" db:"amount_bs"`
	RateApplied      decimal.Decimal `json:"rate_applied" db:"rate_applied"`
	DateReported     time.Time       `json:"date_reported" db:"date_reported"` // UTC
	Concept          string          `json:"concept" db:"concept"`
	ReferenceNumber  string          `json:"reference_number" db:"reference_number"`
	ProofImage       string          `json:"proof_image" db:"proof_image"` // path under the media root
	Status           Status          `json:"status" db:"status"`
	AdminNote        null.String     `json:"admin_note" db:"admin_note"`
	BillingName      string          `json:"billing_name" db:"billing_name"`
	BillingID        string          `json:"billing_id" db:"billing_id"` // RIF
	BillingAddress   string          `json:"billing_address" db:"billing_address"`

	// from student, representative & concept
	StudentName         string      `json:"student_name" db:"student_name"`
	StudentIDNumber     string      `json:"student_id_number" db:"student_id_number"`
	StudentGrade        string      `json:"student_grade" db:"student_grade"`
	StudentSection      string      `json:"student_section" db:"student_section"`
	RepresentativeID    string      `json:"representative_id" db:"representative_id"`
	RepresentativeName  string      `json:"representative_name" db:"representative_name"`
	RepresentativeEmail string      `json:"representative_email" db:"representative_email"`
	PaymentConceptName  null.String `json:"payment_concept_name" db:"payment_concept_name"`
}

// AmountInBs converts usd at rate, rounded to cents.
func AmountInBs(usd, rate decimal.Decimal) decimal.Decimal {
	return usd.Mul(rate).Round(2)
}

// Inputs

type NewPaymentConcept struct {
	Name      string          `json:"name" validate:"required,max=200"`
	AmountUSD decimal.Decimal `json:"amount_usd" validate:"gt=0"`
}

func (nc *NewPaymentConcept) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type UpdatePaymentConcept struct {
	Name      *string          `json:"name" validate:"omitempty,max=200"`
	AmountUSD *decimal.Decimal `json:"amount_usd" validate:"omitempty,gt=0"`
}

func (uc UpdatePaymentConcept) Validate(validate *validator.Validate) error {
	return validate.Struct(uc)
}

// NewPayment is reported by a representative (or office staff) along with the transfer proof.
// When a payment concept is given, a zero amount & empty concept text default to the concept's.
type NewPayment struct {
	StudentID        string          `json:"student_id" validate:"required,uuid"`
	PaymentConceptID string          `json:"payment_concept_id" validate:"omitempty,uuid"`
	AmountUSD        decimal.Decimal `json:"amount_usd" validate:"gte=0"`
	Concept          string          `json:"concept" validate:"max=200"`
	ReferenceNumber  string          `json:"reference_number" validate:"required,max=50"`
	BillingName      string          `json:"billing_name" validate:"max=200"`
	BillingID        string          `json:"billing_id" validate:"omitempty,max=50,rif"`
	BillingAddress   string          `json:"billing_address"`

	Proof         io.Reader `json:"-"`
	ProofFilename string    `json:"-"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Concept = core.CleanString(np.Concept)
	np.ReferenceNumber = core.CleanString(np.ReferenceNumber)
	np.BillingName = core.CleanString(np.BillingName)
	np.BillingID = strings.ToUpper(core.CleanString(np.BillingID))
	np.BillingAddress = core.CleanString(np.BillingAddress)
	if err := validate.Struct(np); err != nil {
		return err
	}
	if np.Proof == nil {
		return core.NewFieldValidationError("proof_image", errProofRequired)
	}
	return nil
}

type ReviewPayment struct {
	Status    Status `json:"status" validate:"required,oneof=VERIFIED REJECTED"`
	AdminNote string `json:"admin_note"`
}

func (rp *ReviewPayment) Validate(validate *validator.Validate) error {
	rp.AdminNote = core.CleanString(rp.AdminNote)
	return validate.Struct(rp)
}

type PaymentFilter struct {
	StudentID string `query:"student_id"`
	Status    Status `query:"status"`
}
