package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"

	"github.com/tiffinbox/backend/internal/calendar"
)

// AutoOrderArgs places the automatic deliveries of one day. An empty Date
// means the day the job first runs. Scheduled jobs always carry a Date so
// retries stay on that day.
type AutoOrderArgs struct {
	Date string `json:"date,omitempty"`
}

func (AutoOrderArgs) Kind() string { return "daily_auto_order" }

// AutoOrderSummary reports what one run did.
type AutoOrderSummary struct {
	Placed  int
	Skipped int
	Failed  int
}

type AutoOrderRunner interface {
	RunAutoOrders(ctx context.Context, date time.Time) (AutoOrderSummary, error)
	Today() time.Time
}

type AutoOrderWorker struct {
	river.WorkerDefaults[AutoOrderArgs]
	runner AutoOrderRunner
}

func NewAutoOrderWorker(r AutoOrderRunner) *AutoOrderWorker {
	return &AutoOrderWorker{runner: r}
}

func (w *AutoOrderWorker) Work(ctx context.Context, job *river.Job[AutoOrderArgs]) error {
	date := w.runner.Today()
	if job.Args.Date != "" {
		d, err := calendar.Parse(job.Args.Date)
		if err != nil {
			return river.JobCancel(err)
		}
		date = d
	}
	sum, err := w.runner.RunAutoOrders(ctx, date)
	if err != nil {
		return fmt.Errorf("auto orders for %s: %w", calendar.Format(date), err)
	}
	if sum.Failed > 0 {
		// Placed accounts are idempotent on retry.
		return fmt.Errorf("auto orders for %s: %d accounts failed", calendar.Format(date), sum.Failed)
	}
	return nil
}

// NewAutoOrderPeriodicJob schedules AutoOrderArgs on a standard five-field
// cron expression. Each insert is pinned to today() at insert time.
func NewAutoOrderPeriodicJob(spec string, today func() time.Time) (*river.PeriodicJob, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse auto order schedule %q: %w", spec, err)
	}
	return river.NewPeriodicJob(
		schedule,
		autoOrderJobArgs(today),
		&river.PeriodicJobOpts{RunOnStart: false},
	), nil
}

func autoOrderJobArgs(today func() time.Time) river.PeriodicJobConstructor {
	return func() (river.JobArgs, *river.InsertOpts) {
		return AutoOrderArgs{Date: calendar.Format(today())}, &river.InsertOpts{
			MaxAttempts: 5,
			UniqueOpts:  river.UniqueOpts{ByArgs: true},
		}
	}
}
