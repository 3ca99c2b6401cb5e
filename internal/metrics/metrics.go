// Package metrics exposes Prometheus instruments for the ledger, the
// projection path and checkout. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiffinbox/backend/internal/ledger"
)

const namespace = "tiffinbox"

// Outcome labels.
const (
	OutcomeOK                = "ok"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeCreditsExhausted  = "credits_exhausted"
	OutcomeInvalid           = "invalid"
	OutcomeDuplicate         = "duplicate"
	OutcomeNotFound          = "not_found"
	OutcomeLockTimeout       = "db_lock_timeout"
	OutcomeError             = "error"
)

type Metrics struct {
	ledgerMutations *prometheus.CounterVec
	ledgerAmount    *prometheus.CounterVec
	projections     *prometheus.CounterVec
	projectionTime  prometheus.Histogram
	checkouts       *prometheus.CounterVec
	autoOrders      *prometheus.CounterVec
	reconciliations prometheus.Counter
}

// New registers the instruments on reg. Passing nil uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Committed ledger mutations by journal entry type.",
		}, []string{"entry_type"}),
		ledgerAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_total",
			Help:      "Absolute amount moved per pool and entry type.",
		}, []string{"pool", "entry_type"}),
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "projections_total",
			Help:      "Projection requests by cache result.",
		}, []string{"cache"}),
		projectionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "projection_duration_seconds",
			Help:      "Time spent computing a projection on a cache miss.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		autoOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "auto_orders_total",
			Help:      "Daily automatic orders by outcome.",
		}, []string{"outcome"}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "reconciliations_enqueued_total",
			Help:      "Checkouts whose follow-up steps were handed to the reconciliation job.",
		}),
	}
	reg.MustRegister(m.ledgerMutations, m.ledgerAmount, m.projections, m.projectionTime,
		m.checkouts, m.autoOrders, m.reconciliations)
	return m
}

// LedgerHook counts committed ledger changes.
func (m *Metrics) LedgerHook() ledger.Hook {
	return func(_ context.Context, c ledger.Change) {
		if m == nil || c.Entry == nil {
			return
		}
		m.ledgerMutations.WithLabelValues(c.Entry.EntryType).Inc()
		amt := c.Entry.Amount
		if amt < 0 {
			amt = -amt
		}
		m.ledgerAmount.WithLabelValues(c.Entry.Pool, c.Entry.EntryType).Add(float64(amt))
	}
}

func (m *Metrics) ObserveProjection(cacheHit bool, d time.Duration) {
	if m == nil {
		return
	}
	if cacheHit {
		m.projections.WithLabelValues("hit").Inc()
		return
	}
	m.projections.WithLabelValues("miss").Inc()
	m.projectionTime.Observe(d.Seconds())
}

func (m *Metrics) ObserveCheckout(err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(Classify(err)).Inc()
}

func (m *Metrics) ObserveAutoOrder(err error) {
	if m == nil {
		return
	}
	m.autoOrders.WithLabelValues(Classify(err)).Inc()
}

func (m *Metrics) ReconciliationEnqueued() {
	if m == nil {
		return
	}
	m.reconciliations.Inc()
}

// Classify maps an error to an outcome label.
func Classify(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, ledger.ErrCreditsExhausted):
		return OutcomeCreditsExhausted
	case errors.Is(err, ledger.ErrInvalidAmount):
		return OutcomeInvalid
	case errors.Is(err, ledger.ErrDuplicateReference):
		return OutcomeDuplicate
	case errors.Is(err, ledger.ErrAccountNotFound):
		return OutcomeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeLockTimeout
	case errors.As(err, &pgErr) && pgErr.Code == "55P03":
		return OutcomeLockTimeout
	}
	return OutcomeError
}
