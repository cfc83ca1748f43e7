package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

// Rates

func (repo *billingRepository) LatestRate(context.Context) (billing.ExchangeRate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rates := repo.db.sortedRates()
	if len(rates) == 0 {
		return billing.ExchangeRate{}, billing.ErrRateNotFound
	}
	return rates[0], nil
}

// sortedRates returns the rates by date, newest first; later insertions win ties.
func (db *DB) sortedRates() []billing.ExchangeRate {
	rates := make([]billing.ExchangeRate, len(db.rates))
	for i := range db.rates {
		rates[len(rates)-1-i] = db.rates[i]
	}
	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Date.After(rates[j].Date.Time) })
	return rates
}

func (repo *billingRepository) CreateRate(_ context.Context, rate billing.ExchangeRate) (billing.ExchangeRate, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.rates = append(repo.db.rates, rate)
	return rate, nil
}

func (repo *billingRepository) QueryRates(_ context.Context, limit int) ([]billing.ExchangeRate, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	rates := repo.db.sortedRates()
	if limit > 0 && len(rates) > limit {
		rates = rates[:limit]
	}
	return rates, nil
}

// Concepts

func (repo *billingRepository) CreateConcept(_ context.Context, pc billing.PaymentConcept) (billing.PaymentConcept, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.concepts[pc.ID] = pc
	return pc, nil
}

func (repo *billingRepository) QueryConcepts(context.Context) ([]billing.PaymentConcept, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	concepts := make([]billing.PaymentConcept, 0, len(repo.db.concepts))
	for _, pc := range repo.db.concepts {
		concepts = append(concepts, pc)
	}
	sort.Slice(concepts, func(i, j int) bool {
		if !concepts[i].CreatedAt.Equal(concepts[j].CreatedAt) {
			return concepts[i].CreatedAt.After(concepts[j].CreatedAt)
		}
		return concepts[i].ID < concepts[j].ID
	})
	return concepts, nil
}

func (repo *billingRepository) GetConcept(_ context.Context, id string) (billing.PaymentConcept, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	pc, ok := repo.db.concepts[id]
	if !ok {
		return billing.PaymentConcept{}, billing.ErrConceptNotFound
	}
	return pc, nil
}

func (repo *billingRepository) UpdateConcept(_ context.Context, pc billing.PaymentConcept) (billing.PaymentConcept, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.concepts[pc.ID]; !ok {
		return billing.PaymentConcept{}, billing.ErrConceptNotFound
	}
	repo.db.concepts[pc.ID] = pc
	return pc, nil
}

func (repo *billingRepository) DeleteConcept(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.concepts[id]; !ok {
		return billing.ErrConceptNotFound
	}
	delete(repo.db.concepts, id)
	for pid, p := range repo.db.payments {
		if p.PaymentConceptID.String == id {
			p.PaymentConceptID = null.String{}
			repo.db.payments[pid] = p
		}
	}
	return nil
}

// Payments

func (db *DB) joinPayment(p billing.Payment) billing.Payment {
	if st, ok := db.students[p.StudentID]; ok {
		p.StudentName, p.StudentIDNumber = st.FullName(), st.IDNumber
		p.StudentGrade, p.StudentSection = st.CurrentGrade, st.Section
		p.RepresentativeID = st.RepresentativeID
		if rep, ok := db.users[st.RepresentativeID]; ok {
			p.RepresentativeName, p.RepresentativeEmail = rep.Name, rep.Email
		}
	}
	p.PaymentConceptName = null.String{}
	if p.PaymentConceptID.Valid {
		if pc, ok := db.concepts[p.PaymentConceptID.String]; ok {
			p.PaymentConceptName = null.StringFrom(pc.Name)
		}
	}
	return p
}

func (repo *billingRepository) CreatePayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.payments[p.ID] = p
	return repo.db.joinPayment(p), nil
}

func (repo *billingRepository) QueryPayments(_ context.Context, scope user.Scope, filter billing.PaymentFilter) ([]billing.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	payments := make([]billing.Payment, 0)
	for _, p := range repo.db.payments {
		p = repo.db.joinPayment(p)
		switch {
		case scope.IsRepresentative() && p.RepresentativeID != scope.UserID,
			filter.StudentID != "" && p.StudentID != filter.StudentID,
			filter.Status != "" && p.Status != filter.Status:
			continue
		}
		payments = append(payments, p)
	}
	sort.Slice(payments, func(i, j int) bool {
		if !payments[i].DateReported.Equal(payments[j].DateReported) {
			return payments[i].DateReported.After(payments[j].DateReported)
		}
		return payments[i].ID < payments[j].ID
	})
	return payments, nil
}

func (repo *billingRepository) GetPayment(_ context.Context, scope user.Scope, id string) (billing.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	if p = repo.db.joinPayment(p); scope.IsRepresentative() && p.RepresentativeID != scope.UserID {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

func (repo *billingRepository) UpdatePayment(_ context.Context, p billing.Payment) (billing.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.payments[p.ID]; !ok {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	repo.db.payments[p.ID] = p
	return repo.db.joinPayment(p), nil
}
