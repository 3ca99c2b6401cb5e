package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	got []ReconcileCheckoutArgs
	err error
}

func (s *stubReconciler) Reconcile(_ context.Context, args ReconcileCheckoutArgs) error {
	s.got = append(s.got, args)
	return s.err
}

type stubRunner struct {
	today time.Time
	dates []time.Time
	sum   AutoOrderSummary
}

func (s *stubRunner) Today() time.Time { return s.today }

func (s *stubRunner) RunAutoOrders(_ context.Context, d time.Time) (AutoOrderSummary, error) {
	s.dates = append(s.dates, d)
	return s.sum, nil
}

func TestReconcileWorkerPropagatesFailure(t *testing.T) {
	rec := &stubReconciler{err: errors.New("db down")}
	w := NewReconcileCheckoutWorker(rec)
	job := &river.Job[ReconcileCheckoutArgs]{Args: ReconcileCheckoutArgs{OrderID: uuid.New()}}

	err := w.Work(context.Background(), job)
	require.Error(t, err)
	assert.Len(t, rec.got, 1)

	rec.err = nil
	assert.NoError(t, w.Work(context.Background(), job))
}

func TestAutoOrderWorkerDefaultsToToday(t *testing.T) {
	runner := &stubRunner{today: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)}
	w := NewAutoOrderWorker(runner)

	require.NoError(t, w.Work(context.Background(), &river.Job[AutoOrderArgs]{}))
	require.NoError(t, w.Work(context.Background(), &river.Job[AutoOrderArgs]{Args: AutoOrderArgs{Date: "2026-10-19"}}))
	require.Len(t, runner.dates, 2)
	assert.Equal(t, runner.today, runner.dates[0])
	assert.Equal(t, 19, runner.dates[1].Day())
}

func TestAutoOrderWorkerRetriesOnFailures(t *testing.T) {
	runner := &stubRunner{sum: AutoOrderSummary{Placed: 3, Failed: 1}}
	err := NewAutoOrderWorker(runner).Work(context.Background(), &river.Job[AutoOrderArgs]{})
	assert.Error(t, err)
}

func TestNewAutoOrderPeriodicJob(t *testing.T) {
	today := func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	_, err := NewAutoOrderPeriodicJob("0 6 * * 1-5", today)
	assert.NoError(t, err)
	_, err = NewAutoOrderPeriodicJob("every morning", today)
	assert.Error(t, err)
}

func TestAutoOrderJobPinnedToScheduledDay(t *testing.T) {
	now := time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)
	construct := autoOrderJobArgs(func() time.Time { return now })

	args, opts := construct()
	require.NotNil(t, opts)
	assert.Equal(t, AutoOrderArgs{Date: "2026-10-16"}, args)

	// A retry after midnight still processes the scheduled day.
	runner := &stubRunner{today: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, NewAutoOrderWorker(runner).Work(context.Background(), &river.Job[AutoOrderArgs]{Args: args.(AutoOrderArgs)}))
	require.Len(t, runner.dates, 1)
	assert.Equal(t, 16, runner.dates[0].Day())
}
