package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/pause"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeOrderLog struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (f *fakeOrderLog) add(acct uuid.UUID, date time.Time, status models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, &models.Order{ID: uuid.New(), AccountID: acct, DeliveryDate: date, Status: status})
}

func (f *fakeOrderLog) ListBetween(_ context.Context, acct uuid.UUID, from, to time.Time) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Order
	for _, o := range f.orders {
		if o.AccountID == acct && !o.DeliveryDate.Before(from) && !o.DeliveryDate.After(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fixture struct {
	clk       *clock.FakeClock
	ledger    ledger.Service
	pauses    *pause.Service
	orders    *fakeOrderLog
	projector *Projector
	account   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:     clock.NewFakeClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)),
		orders:  &fakeOrderLog{},
		account: uuid.New(),
	}
	cache := NewMemoryCache(time.Hour, f.clk)
	var p *Projector
	f.ledger = ledger.NewService(ledger.NewMemoryStore(),
		ledger.WithClock(f.clk),
		ledger.WithHook(func(ctx context.Context, c ledger.Change) { p.InvalidateHook()(ctx, c) }),
	)
	f.pauses = pause.NewService(pause.NewMemoryStore(), f.ledger, f.clk, time.UTC, nil)
	p = NewProjector(f.ledger, f.pauses, f.orders, cache, WithClock(f.clk))
	f.projector = p
	require.NoError(t, f.ledger.EnsureAccount(context.Background(), f.account))
	return f
}

func date(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// ComputeProjection
// ---------------------------------------------------------------------------

func TestComputeProjectionDefaultsToPlanCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.GrantPlanCredits(ctx, f.account, ledger.PlanGrant{
		Credits: 60, Expiry: date(11, 14), PlanName: "Red Plan (Lunch + Dinner)", DailyCost: 2,
	})
	require.NoError(t, err)

	entries, err := f.projector.ComputeProjection(ctx, f.account, f.projector.Today(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultHorizonDays)
	assert.Equal(t, 30, ScheduledCount(entries))
}

func TestComputeProjectionRejectsNegativeArguments(t *testing.T) {
	f := newFixture(t)
	_, err := f.projector.ComputeProjection(context.Background(), f.account, f.projector.Today(), -1, 1)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
	_, err = f.projector.ComputeProjection(context.Background(), f.account, f.projector.Today(), 10, -1)
	assert.ErrorIs(t, err, ErrInvalidCost)
}

func TestComputeProjectionUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.projector.ComputeProjection(context.Background(), uuid.New(), f.projector.Today(), 0, 0)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestProjectionCacheInvalidatedByMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.GrantCredits(ctx, f.account, 5, date(11, 14))
	require.NoError(t, err)

	first, err := f.projector.ComputeProjection(ctx, f.account, f.projector.Today(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, ScheduledCount(first))

	again, err := f.projector.ComputeProjection(ctx, f.account, f.projector.Today(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = f.ledger.GrantCredits(ctx, f.account, 5, date(11, 14))
	require.NoError(t, err)
	after, err := f.projector.ComputeProjection(ctx, f.account, f.projector.Today(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, ScheduledCount(after))

	paused, err := f.pauses.Toggle(ctx, f.account, date(10, 16))
	require.NoError(t, err)
	require.True(t, paused)
	afterPause, err := f.projector.ComputeProjection(ctx, f.account, f.projector.Today(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectionSkippedPaused, afterPause[0].Status)
}

func TestCacheHitSkipsRecomputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pausesCalls := &countingPauses{PauseReader: f.pauses}
	p := NewProjector(f.ledger, pausesCalls, f.orders, NewMemoryCache(time.Hour, f.clk), WithClock(f.clk))

	for i := 0; i < 3; i++ {
		_, err := p.ComputeProjection(ctx, f.account, p.Today(), 0, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, pausesCalls.calls)
}

type countingPauses struct {
	PauseReader
	calls int
}

func (c *countingPauses) PausedBetween(ctx context.Context, id uuid.UUID, from, to time.Time) (pause.Set, error) {
	c.calls++
	return c.PauseReader.PausedBetween(ctx, id, from, to)
}

func TestStatusOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.GrantCredits(ctx, f.account, 1, date(11, 14))
	require.NoError(t, err)

	status, cost, err := f.projector.StatusOn(ctx, f.account, date(10, 16))
	require.NoError(t, err)
	assert.Equal(t, models.ProjectionScheduled, status)
	assert.Equal(t, 1, cost)

	status, _, err = f.projector.StatusOn(ctx, f.account, date(10, 17))
	require.NoError(t, err)
	assert.Equal(t, models.ProjectionSkippedWeekend, status)
}

// ---------------------------------------------------------------------------
// MonthView
// ---------------------------------------------------------------------------

func TestMonthView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ledger.GrantCredits(ctx, f.account, 2, date(11, 14))
	require.NoError(t, err)
	_, err = f.pauses.Toggle(ctx, f.account, date(10, 19))
	require.NoError(t, err)

	f.orders.add(f.account, date(10, 13), models.OrderStatusCompleted)
	f.orders.add(f.account, date(10, 14), models.OrderStatusPlaced)
	f.orders.add(uuid.New(), date(10, 12), models.OrderStatusCompleted)

	days, err := f.projector.MonthView(ctx, f.account, 2026, time.October)
	require.NoError(t, err)
	require.Len(t, days, 31)

	byDate := map[string]models.DayView{}
	for _, d := range days {
		byDate[calendar.Format(d.Date)] = d
	}
	assert.Equal(t, models.DayNoOrder, byDate["2026-10-12"].Status)
	assert.Equal(t, models.DayDelivered, byDate["2026-10-13"].Status)
	assert.Equal(t, models.DayOrdered, byDate["2026-10-14"].Status)
	assert.Equal(t, models.DayToday, byDate["2026-10-15"].Status)
	assert.Equal(t, string(models.ProjectionScheduled), byDate["2026-10-16"].Status)
	assert.Equal(t, string(models.ProjectionSkippedWeekend), byDate["2026-10-17"].Status)
	assert.Equal(t, string(models.ProjectionSkippedPaused), byDate["2026-10-19"].Status)
	assert.True(t, byDate["2026-10-19"].Paused)
	assert.Equal(t, string(models.ProjectionScheduled), byDate["2026-10-20"].Status)
	assert.Equal(t, string(models.ProjectionSkippedNoCredit), byDate["2026-10-21"].Status)
}

func TestMonthViewRejectsBadMonth(t *testing.T) {
	f := newFixture(t)
	_, err := f.projector.MonthView(context.Background(), f.account, 2026, 13)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}

func TestMonthViewRejectsFarFuture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, year := range []int{2028, 2100, 1 << 40} {
		_, err := f.projector.MonthView(ctx, f.account, year, time.January)
		assert.ErrorIs(t, err, ErrInvalidMonth, "year %d", year)
	}

	days, err := f.projector.MonthView(ctx, f.account, 2027, time.September)
	require.NoError(t, err)
	assert.Len(t, days, 30)
}

func TestComputeProjectionRejectsOversizedHorizon(t *testing.T) {
	f := newFixture(t)
	_, err := f.projector.ComputeProjection(context.Background(), f.account, f.projector.Today(), MaxHorizonDays+1, 1)
	assert.ErrorIs(t, err, ErrInvalidHorizon)
}
