package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/models"
)

// Change describes a committed ledger mutation. Hooks receive it after the
// store has released the account.
type Change struct {
	Record models.LedgerRecord
	Entry  *models.CreditEntry
}

// Hook observes committed changes. Hooks must not call back into the
// ledger for the same account synchronously.
type Hook func(ctx context.Context, c Change)

// PlanGrant adds credits for a purchased plan and records which plan is
// active along with its per-day cost.
type PlanGrant struct {
	Credits   int64
	Expiry    time.Time
	PlanName  string
	DailyCost int
}

type Service interface {
	GetLedger(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	// Snapshot returns a consistent copy of the record. It never observes a
	// half-applied mutation.
	Snapshot(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	EnsureAccount(ctx context.Context, accountID uuid.UUID) error

	GrantCredits(ctx context.Context, accountID uuid.UUID, amount int64, newExpiry time.Time, opts ...MutationOption) (models.LedgerRecord, error)
	GrantPlanCredits(ctx context.Context, accountID uuid.UUID, g PlanGrant, opts ...MutationOption) (models.LedgerRecord, error)
	ConsumeCredits(ctx context.Context, accountID uuid.UUID, count int64, asOf time.Time, opts ...MutationOption) (models.LedgerRecord, error)
	CreditWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...MutationOption) (int64, error)
	DebitWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...MutationOption) (int64, error)
	SetAutoOrder(ctx context.Context, accountID uuid.UUID, enabled bool) (models.LedgerRecord, error)
	// Touch bumps the record version without changing balances. Callers use
	// it when state outside the record that feeds projections changes.
	Touch(ctx context.Context, accountID uuid.UUID) error

	Entries(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditEntry, error)
	// FindEntry looks up the mutation applied under a reference id.
	FindEntry(ctx context.Context, accountID uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error)
	ListAutoOrderAccounts(ctx context.Context) ([]uuid.UUID, error)
}

// MutationOption tunes a single ledger mutation.
type MutationOption func(*mutation)

type mutation struct {
	ref *uuid.UUID
}

// WithReference tags the journal entry with an idempotency key. A second
// mutation of the same kind with the same key fails with
// ErrDuplicateReference and changes nothing.
func WithReference(ref uuid.UUID) MutationOption {
	return func(m *mutation) { m.ref = &ref }
}

func applyOptions(opts []MutationOption) mutation {
	var m mutation
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Option configures the service.
type Option func(*service)

func WithClock(c clock.Clock) Option {
	return func(s *service) { s.clock = c }
}

func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.loc = loc }
}

func WithHook(h Hook) Option {
	return func(s *service) { s.hooks = append(s.hooks, h) }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *service) { s.log = l }
}

type service struct {
	store Store
	clock clock.Clock
	loc   *time.Location
	hooks []Hook
	log   *slog.Logger
}

func NewService(store Store, opts ...Option) Service {
	s := &service{
		store: store,
		clock: clock.Real(),
		loc:   time.UTC,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Service = (*service)(nil)

func (s *service) today() time.Time {
	return calendar.Today(s.clock.Now(), s.loc)
}

func (s *service) GetLedger(ctx context.Context, id uuid.UUID) (models.LedgerRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *service) Snapshot(ctx context.Context, id uuid.UUID) (models.LedgerRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *service) EnsureAccount(ctx context.Context, id uuid.UUID) error {
	return s.store.EnsureAccount(ctx, id)
}

func (s *service) GrantCredits(ctx context.Context, id uuid.UUID, amount int64, newExpiry time.Time, opts ...MutationOption) (models.LedgerRecord, error) {
	return s.grant(ctx, id, amount, newExpiry, "", 0, applyOptions(opts))
}

func (s *service) GrantPlanCredits(ctx context.Context, id uuid.UUID, g PlanGrant, opts ...MutationOption) (models.LedgerRecord, error) {
	return s.grant(ctx, id, g.Credits, g.Expiry, g.PlanName, g.DailyCost, applyOptions(opts))
}

func (s *service) grant(ctx context.Context, id uuid.UUID, amount int64, newExpiry time.Time, plan string, dailyCost int, m mutation) (models.LedgerRecord, error) {
	if amount <= 0 {
		return models.LedgerRecord{}, ErrInvalidAmount
	}
	expiry := calendar.Day(newExpiry)
	today := s.today()
	rec, err := s.mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		// Expired credits are forfeited before the new grant lands, so
		// extending the expiry cannot revive them.
		if rec.CreditsExpired(today) {
			rec.Credits = 0
		}
		rec.Credits += amount
		if rec.CreditExpiry == nil || expiry.After(*rec.CreditExpiry) {
			rec.CreditExpiry = &expiry
		}
		if plan != "" {
			rec.ActivePlan = plan
		}
		if dailyCost > 0 {
			rec.DailyCost = dailyCost
		}
		return &models.CreditEntry{
			EntryType:    models.CreditEntryGrant,
			Pool:         models.PoolCredits,
			Amount:       amount,
			BalanceAfter: rec.Credits,
			ReferenceID:  m.ref,
		}, nil
	})
	if err != nil {
		return models.LedgerRecord{}, err
	}
	s.log.Info("credits granted", "account_id", id, "amount", amount, "credits", rec.Credits, "expiry", calendar.Format(*rec.CreditExpiry))
	return rec, nil
}

func (s *service) ConsumeCredits(ctx context.Context, id uuid.UUID, count int64, asOf time.Time, opts ...MutationOption) (models.LedgerRecord, error) {
	if count <= 0 {
		return models.LedgerRecord{}, ErrInvalidAmount
	}
	m := applyOptions(opts)
	return s.mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		if rec.AvailableCredits(asOf) < count {
			return nil, ErrCreditsExhausted
		}
		rec.Credits -= count
		return &models.CreditEntry{
			EntryType:    models.CreditEntryConsume,
			Pool:         models.PoolCredits,
			Amount:       -count,
			BalanceAfter: rec.Credits,
			ReferenceID:  m.ref,
		}, nil
	})
}

func (s *service) CreditWallet(ctx context.Context, id uuid.UUID, amount int64, opts ...MutationOption) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m := applyOptions(opts)
	rec, err := s.mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		rec.WalletBalance += amount
		return &models.CreditEntry{
			EntryType:    models.CreditEntryWalletTopUp,
			Pool:         models.PoolWallet,
			Amount:       amount,
			BalanceAfter: rec.WalletBalance,
			ReferenceID:  m.ref,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return rec.WalletBalance, nil
}

// DebitWallet removes amount from the wallet only if the balance covers it.
// The check and the decrement happen under the same account lock.
func (s *service) DebitWallet(ctx context.Context, id uuid.UUID, amount int64, opts ...MutationOption) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	m := applyOptions(opts)
	rec, err := s.mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		if rec.WalletBalance < amount {
			return nil, ErrInsufficientFunds
		}
		rec.WalletBalance -= amount
		return &models.CreditEntry{
			EntryType:    models.CreditEntryWalletDebit,
			Pool:         models.PoolWallet,
			Amount:       -amount,
			BalanceAfter: rec.WalletBalance,
			ReferenceID:  m.ref,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return rec.WalletBalance, nil
}

func (s *service) SetAutoOrder(ctx context.Context, id uuid.UUID, enabled bool) (models.LedgerRecord, error) {
	return s.mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		rec.AutoOrderEnabled = enabled
		return nil, nil
	})
}

func (s *service) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := s.mutate(ctx, id, func(*models.LedgerRecord) (*models.CreditEntry, error) {
		return nil, nil
	})
	return err
}

func (s *service) Entries(ctx context.Context, id uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	return s.store.Entries(ctx, id, limit)
}

func (s *service) FindEntry(ctx context.Context, id uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error) {
	return s.store.FindEntry(ctx, id, entryType, ref)
}

func (s *service) ListAutoOrderAccounts(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListAutoOrderAccounts(ctx)
}

func (s *service) mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (models.LedgerRecord, error) {
	var entry *models.CreditEntry
	rec, err := s.store.Mutate(ctx, id, func(rec *models.LedgerRecord) (*models.CreditEntry, error) {
		e, err := fn(rec)
		entry = e
		return e, err
	})
	if err != nil {
		return models.LedgerRecord{}, err
	}
	for _, h := range s.hooks {
		h(ctx, Change{Record: rec.Clone(), Entry: entry})
	}
	return rec, nil
}
