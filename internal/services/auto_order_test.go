package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/pause"
	"github.com/tiffinbox/backend/internal/scheduler"
)

// ---------------------------------------------------------------------------
// Auto-order fixture: the production projector decides what is due.
// ---------------------------------------------------------------------------

type autoOrderFixture struct {
	*fixture
	pauses *pause.Service
	runner *AutoOrderService
}

func newAutoOrderFixture(t *testing.T) *autoOrderFixture {
	t.Helper()
	f := newFixture(t)
	pauses := pause.NewService(pause.NewMemoryStore(), f.ledger, f.clk, time.UTC, nil)
	projector := scheduler.NewProjector(f.ledger, pauses, f.orders, nil, scheduler.WithClock(f.clk))
	return &autoOrderFixture{
		fixture: f,
		pauses:  pauses,
		runner:  NewAutoOrderService(f.ledger, projector, f.orders, 4, nil, nil),
	}
}

func (f *autoOrderFixture) subscribe(t *testing.T, id uuid.UUID, planName string, timing models.Timing) {
	t.Helper()
	ctx := context.Background()
	plan, err := catalog.NewService(catalog.NewMemoryRepository()).Quote(ctx, planName, timing)
	require.NoError(t, err)
	require.NoError(t, f.ledger.EnsureAccount(ctx, id))
	_, err = f.activator.Activate(ctx, id, plan)
	require.NoError(t, err)
}

var friday = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

func TestRunAutoOrders_ConsumesAndRecords(t *testing.T) {
	f := newAutoOrderFixture(t)
	ctx := context.Background()
	f.subscribe(t, f.account, "Green Plan", models.TimingLunchOnly)

	sum, err := f.runner.RunAutoOrders(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Placed)
	assert.Zero(t, sum.Failed)

	rec, err := f.ledger.GetLedger(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(29), rec.Credits)

	o, err := f.orders.Get(ctx, AutoOrderID(f.account, friday))
	require.NoError(t, err)
	assert.Equal(t, models.OrderSourceAutoOrder, o.Source)
	assert.True(t, o.DeliveryDate.Equal(friday))
}

func TestRunAutoOrders_RerunIsIdempotent(t *testing.T) {
	f := newAutoOrderFixture(t)
	ctx := context.Background()
	f.subscribe(t, f.account, "Red Plan", models.TimingLunchAndDinner)

	for i := 0; i < 3; i++ {
		_, err := f.runner.RunAutoOrders(ctx, friday)
		require.NoError(t, err)
	}

	rec, err := f.ledger.GetLedger(ctx, f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(58), rec.Credits, "combo plan consumes two credits once")

	list, err := f.orders.ListForAccount(ctx, f.account, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunAutoOrders_WeekendIsNoOp(t *testing.T) {
	f := newAutoOrderFixture(t)
	ctx := context.Background()
	f.subscribe(t, f.account, "Green Plan", models.TimingLunchOnly)

	sum, err := f.runner.RunAutoOrders(ctx, friday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Placed+sum.Skipped+sum.Failed)

	rec, _ := f.ledger.GetLedger(ctx, f.account)
	assert.Equal(t, int64(30), rec.Credits)
}

func TestRunAutoOrders_SkipsPausedAndDisabled(t *testing.T) {
	f := newAutoOrderFixture(t)
	ctx := context.Background()
	paused, disabled := uuid.New(), uuid.New()
	f.subscribe(t, f.account, "Green Plan", models.TimingLunchOnly)
	f.subscribe(t, paused, "Smart Mix", models.TimingDinnerOnly)
	f.subscribe(t, disabled, "Green Plan", models.TimingLunchOnly)

	_, err := f.pauses.Toggle(ctx, paused, friday)
	require.NoError(t, err)
	_, err = f.ledger.SetAutoOrder(ctx, disabled, false)
	require.NoError(t, err)

	sum, err := f.runner.RunAutoOrders(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Placed)
	assert.Equal(t, 1, sum.Skipped)

	rec, _ := f.ledger.GetLedger(ctx, paused)
	assert.Equal(t, int64(30), rec.Credits)
	rec, _ = f.ledger.GetLedger(ctx, disabled)
	assert.Equal(t, int64(30), rec.Credits)
}

func TestRunAutoOrders_RetryRecordsOrderForLastCredit(t *testing.T) {
	f := newAutoOrderFixture(t)
	ctx := context.Background()
	_, err := f.ledger.GrantCredits(ctx, f.account, 1, friday.AddDate(0, 0, 30))
	require.NoError(t, err)

	f.recorder.failures = 1
	projector := scheduler.NewProjector(f.ledger, f.pauses, f.orders, nil, scheduler.WithClock(f.clk))
	runner := NewAutoOrderService(f.ledger, projector, f.recorder, 1, nil, nil)

	sum, err := runner.RunAutoOrders(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	rec, err := f.ledger.GetLedger(ctx, f.account)
	require.NoError(t, err)
	assert.Zero(t, rec.Credits, "credit taken before the order write failed")

	sum, err = runner.RunAutoOrders(ctx, friday)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Placed)
	assert.Zero(t, sum.Failed)

	o, err := f.orders.Get(ctx, AutoOrderID(f.account, friday))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPlaced, o.Status)

	rec, err = f.ledger.GetLedger(ctx, f.account)
	require.NoError(t, err)
	assert.Zero(t, rec.Credits, "retry does not consume again")
}

func TestAutoOrderID_StablePerAccountAndDay(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, AutoOrderID(a, friday), AutoOrderID(a, friday.Add(5*time.Hour)))
	assert.NotEqual(t, AutoOrderID(a, friday), AutoOrderID(b, friday))
	assert.NotEqual(t, AutoOrderID(a, friday), AutoOrderID(a, friday.AddDate(0, 0, 3)))
}
