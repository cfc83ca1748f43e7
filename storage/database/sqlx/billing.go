package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
)

const (
	rateSelect = `SELECT id, date, rate FROM exchange_rate ORDER BY date DESC, created_at DESC`

	conceptSelect = `SELECT id, name, amount_usd, created_at FROM payment_concept`

	paymentSelect = `SELECT p.id, p.student_id, p.payment_concept_id, p.amount_usd, p.amount_bs, p.rate_applied,
		p.date_reported, p.concept, p.reference_number, p.proof_image, p.status, p.admin_note,
		p.billing_name, p.billing_id, p.billing_address,
		st.first_name || ' ' || st.last_name AS student_name, st.id_number AS student_id_number,
		st.current_grade AS student_grade, st.section AS student_section, st.representative_id,
		u.name AS representative_name, COALESCE(u.email, '') AS representative_email,
		pc.name AS payment_concept_name
		FROM payment p
		JOIN student st ON st.id = p.student_id
		JOIN "user" u ON u.id = st.representative_id
		LEFT JOIN payment_concept pc ON pc.id = p.payment_concept_id`
)

type billingRepository struct {
	exec sqlx.ExtContext
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(exec sqlx.ExtContext) billing.Repository {
	return &billingRepository{exec: exec}
}

// Rates

func (repo *billingRepository) LatestRate(ctx context.Context) (billing.ExchangeRate, error) {
	var rate billing.ExchangeRate
	if err := sqlx.GetContext(ctx, repo.exec, &rate, rateSelect+` LIMIT 1`); err != nil {
		return billing.ExchangeRate{}, trapNoRows(err, billing.ErrRateNotFound, "reading latest rate")
	}
	return rate, nil
}

func (repo *billingRepository) CreateRate(ctx context.Context, rate billing.ExchangeRate) (billing.ExchangeRate, error) {
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, `INSERT INTO exchange_rate (id, date, rate) VALUES (:id, :date, :rate)`, rate); err != nil {
		return billing.ExchangeRate{}, errors.Wrap(err, "inserting exchange rate")
	}
	return rate, nil
}

func (repo *billingRepository) QueryRates(ctx context.Context, limit int) ([]billing.ExchangeRate, error) {
	q, args := rateSelect, []interface{}{}
	if limit > 0 {
		q, args = q+` LIMIT $1`, append(args, limit)
	}
	rates := make([]billing.ExchangeRate, 0)
	err := sqlx.SelectContext(ctx, repo.exec, &rates, q, args...)
	return rates, errors.Wrap(err, "querying exchange rates")
}

// Concepts

func (repo *billingRepository) CreateConcept(ctx context.Context, pc billing.PaymentConcept) (billing.PaymentConcept, error) {
	q := `INSERT INTO payment_concept (id, name, amount_usd, created_at) VALUES (:id, :name, :amount_usd, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, pc); err != nil {
		return billing.PaymentConcept{}, errors.Wrap(err, "inserting payment concept")
	}
	return pc, nil
}

func (repo *billingRepository) QueryConcepts(ctx context.Context) ([]billing.PaymentConcept, error) {
	concepts := make([]billing.PaymentConcept, 0)
	err := sqlx.SelectContext(ctx, repo.exec, &concepts, conceptSelect+` ORDER BY created_at DESC, id`)
	return concepts, errors.Wrap(err, "querying payment concepts")
}

func (repo *billingRepository) GetConcept(ctx context.Context, id string) (billing.PaymentConcept, error) {
	var pc billing.PaymentConcept
	if err := sqlx.GetContext(ctx, repo.exec, &pc, conceptSelect+` WHERE id = $1`, id); err != nil {
		return billing.PaymentConcept{}, trapNoRows(err, billing.ErrConceptNotFound, "finding payment concept")
	}
	return pc, nil
}

func (repo *billingRepository) UpdateConcept(ctx context.Context, pc billing.PaymentConcept) (billing.PaymentConcept, error) {
	err := execAffecting(ctx, repo.exec, billing.ErrConceptNotFound, "updating payment concept",
		`UPDATE payment_concept SET name = ?, amount_usd = ? WHERE id = ?`, pc.Name, pc.AmountUSD, pc.ID)
	if err != nil {
		return billing.PaymentConcept{}, err
	}
	return pc, nil
}

func (repo *billingRepository) DeleteConcept(ctx context.Context, id string) error {
	return execAffecting(ctx, repo.exec, billing.ErrConceptNotFound, "deleting payment concept",
		`DELETE FROM payment_concept WHERE id = ?`, id)
}

// Payments

func paymentScope(w *where, scope user.Scope) {
	if scope.IsRepresentative() {
		w.add("st.representative_id = ?", scope.UserID)
	}
}

func (repo *billingRepository) CreatePayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	q := `INSERT INTO payment (id, student_id, payment_concept_id, amount_usd, amount_bs, rate_applied, date_reported,
			concept, reference_number, proof_image, status, admin_note, billing_name, billing_id, billing_address)
		VALUES (:id, :student_id, :payment_concept_id, :amount_usd, :amount_bs, :rate_applied, :date_reported,
			:concept, :reference_number, :proof_image, :status, :admin_note, :billing_name, :billing_id, :billing_address)`
	if _, err := sqlx.NamedExecContext(ctx, repo.exec, q, p); err != nil {
		return billing.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.GetPayment(ctx, unrestricted, p.ID)
}

func (repo *billingRepository) QueryPayments(ctx context.Context, scope user.Scope, filter billing.PaymentFilter) ([]billing.Payment, error) {
	var w where
	paymentScope(&w, scope)
	if filter.StudentID != "" {
		w.add("p.student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		w.add("p.status = ?", filter.Status)
	}

	payments := make([]billing.Payment, 0)
	q := repo.exec.Rebind(paymentSelect + w.String() + ` ORDER BY p.date_reported DESC, p.id`)
	err := sqlx.SelectContext(ctx, repo.exec, &payments, q, w.args...)
	return payments, errors.Wrap(err, "querying payments")
}

func (repo *billingRepository) GetPayment(ctx context.Context, scope user.Scope, id string) (billing.Payment, error) {
	var w where
	w.add("p.id = ?", id)
	paymentScope(&w, scope)

	var p billing.Payment
	if err := sqlx.GetContext(ctx, repo.exec, &p, repo.exec.Rebind(paymentSelect+w.String()), w.args...); err != nil {
		return billing.Payment{}, trapNoRows(err, billing.ErrPaymentNotFound, "finding payment")
	}
	return p, nil
}

// UpdatePayment saves the review outcome.
func (repo *billingRepository) UpdatePayment(ctx context.Context, p billing.Payment) (billing.Payment, error) {
	err := execAffecting(ctx, repo.exec, billing.ErrPaymentNotFound, "updating payment",
		`UPDATE payment SET status = ?, admin_note = ? WHERE id = ?`, p.Status, p.AdminNote, p.ID)
	if err != nil {
		return billing.Payment{}, err
	}
	return repo.GetPayment(ctx, unrestricted, p.ID)
}
