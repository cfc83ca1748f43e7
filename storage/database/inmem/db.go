// Package inmemdb is a map-backed store implementing every repository; used by tests & the demo mode.
package inmemdb

import (
	"sync"

	"github.com/trezcool/colegio/core/academic"
	"github.com/trezcool/colegio/core/billing"
	"github.com/trezcool/colegio/core/user"
)

type DB struct {
	mu   sync.RWMutex // guards the tables
	txMu sync.Mutex   // serializes RunInTx

	users       map[string]user.User
	teachers    map[string]academic.Teacher
	students    map[string]academic.Student
	subjects    map[string]academic.Subject
	evaluations map[string]academic.Evaluation
	grades      map[string]academic.Grade
	schedules   map[string]academic.Schedule
	rates       []billing.ExchangeRate // by insertion
	concepts    map[string]billing.PaymentConcept
	payments    map[string]billing.Payment
}

func Open() *DB {
	db := new(DB)
	db.reset()
	return db
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

func (db *DB) reset() {
	db.users = make(map[string]user.User)
	db.teachers = make(map[string]academic.Teacher)
	db.students = make(map[string]academic.Student)
	db.subjects = make(map[string]academic.Subject)
	db.evaluations = make(map[string]academic.Evaluation)
	db.grades = make(map[string]academic.Grade)
	db.schedules = make(map[string]academic.Schedule)
	db.rates = nil
	db.concepts = make(map[string]billing.PaymentConcept)
	db.payments = make(map[string]billing.Payment)
}
