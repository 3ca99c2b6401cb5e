// Package scheduler forecasts which future business days will consume a
// credit, and renders the subscriber's month calendar.
package scheduler

import (
	"errors"
	"time"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/pause"
)

const (
	// DefaultHorizonDays is the forecast length used when callers pass 0.
	DefaultHorizonDays = 60
	MaxHorizonDays     = 366
)

var (
	ErrInvalidHorizon = errors.New("horizon must be between 1 and 366 days")
	ErrInvalidCost    = errors.New("daily cost must be positive")
)

// Input is everything a projection depends on. Equal inputs give equal
// outputs.
type Input struct {
	Today            time.Time
	HorizonDays      int
	DailyCost        int
	Snapshot         models.LedgerRecord
	Paused           pause.Set
	AutoOrderEnabled bool
}

// Project walks Today+1 .. Today+HorizonDays in order and assigns each
// date a status. Credits expire relative to Today only: a date past the
// expiry can still be scheduled when Today itself is within it.
func Project(in Input) ([]models.ProjectionEntry, error) {
	if in.HorizonDays <= 0 || in.HorizonDays > MaxHorizonDays {
		return nil, ErrInvalidHorizon
	}
	if in.DailyCost <= 0 {
		return nil, ErrInvalidCost
	}
	today := calendar.Day(in.Today)
	remaining := in.Snapshot.AvailableCredits(today)
	cost := int64(in.DailyCost)

	out := make([]models.ProjectionEntry, 0, in.HorizonDays)
	for _, d := range calendar.Range(calendar.AddDays(today, 1), in.HorizonDays) {
		var status models.ProjectionStatus
		switch {
		case calendar.IsWeekend(d):
			status = models.ProjectionSkippedWeekend
		case in.Paused.Contains(d):
			status = models.ProjectionSkippedPaused
		case !in.AutoOrderEnabled:
			status = models.ProjectionSkippedInactive
		case remaining < cost:
			status = models.ProjectionSkippedNoCredit
		default:
			status = models.ProjectionScheduled
			remaining -= cost
		}
		out = append(out, models.ProjectionEntry{Date: d, Status: status})
	}
	return out, nil
}

// ScheduledCount returns how many entries are Scheduled.
func ScheduledCount(entries []models.ProjectionEntry) int {
	n := 0
	for _, e := range entries {
		if e.Status == models.ProjectionScheduled {
			n++
		}
	}
	return n
}
