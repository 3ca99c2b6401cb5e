package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/metrics"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/pause"
)

var ErrInvalidMonth = errors.New("invalid month")

type LedgerReader interface {
	Snapshot(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
}

type PauseReader interface {
	PausedBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) (pause.Set, error)
}

// OrderLog lists orders by delivery date, inclusive on both ends.
type OrderLog interface {
	ListBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error)
}

// Projector serves projections for accounts, caching results per ledger
// version. It only reads the ledger.
type Projector struct {
	ledger  LedgerReader
	pauses  PauseReader
	orders  OrderLog
	cache   Cache
	clock   clock.Clock
	loc     *time.Location
	horizon int
	metrics *metrics.Metrics
	log     *slog.Logger
}

type ProjectorOption func(*Projector)

func WithClock(c clock.Clock) ProjectorOption {
	return func(p *Projector) { p.clock = c }
}

func WithLocation(loc *time.Location) ProjectorOption {
	return func(p *Projector) { p.loc = loc }
}

func WithHorizon(days int) ProjectorOption {
	return func(p *Projector) {
		if days > 0 && days <= MaxHorizonDays {
			p.horizon = days
		}
	}
}

func WithMetrics(m *metrics.Metrics) ProjectorOption {
	return func(p *Projector) { p.metrics = m }
}

func WithLogger(l *slog.Logger) ProjectorOption {
	return func(p *Projector) { p.log = l }
}

func NewProjector(l LedgerReader, pauses PauseReader, orders OrderLog, cache Cache, opts ...ProjectorOption) *Projector {
	if cache == nil {
		cache = NopCache{}
	}
	p := &Projector{
		ledger:  l,
		pauses:  pauses,
		orders:  orders,
		cache:   cache,
		clock:   clock.Real(),
		loc:     time.UTC,
		horizon: DefaultHorizonDays,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Today is the current calendar date in the configured location.
func (p *Projector) Today() time.Time {
	return calendar.Today(p.clock.Now(), p.loc)
}

// ComputeProjection forecasts deliveries after today. A zero horizonDays
// uses the configured horizon; a zero dailyCost uses the cost of the
// account's active plan.
func (p *Projector) ComputeProjection(ctx context.Context, accountID uuid.UUID, today time.Time, horizonDays, dailyCost int) ([]models.ProjectionEntry, error) {
	if horizonDays == 0 {
		horizonDays = p.horizon
	}
	if horizonDays < 0 || horizonDays > MaxHorizonDays {
		return nil, ErrInvalidHorizon
	}
	if dailyCost < 0 {
		return nil, ErrInvalidCost
	}
	today = calendar.Day(today)

	snap, err := p.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if dailyCost == 0 {
		dailyCost = snap.DailyCost
		if dailyCost <= 0 {
			dailyCost = models.DailyCostForPlan(snap.ActivePlan)
		}
	}

	key := CacheKey(snap.Version, today, horizonDays, dailyCost)
	if entries, ok := p.cache.Get(ctx, accountID, key); ok {
		p.metrics.ObserveProjection(true, 0)
		return entries, nil
	}

	start := time.Now()
	paused, err := p.pauses.PausedBetween(ctx, accountID, calendar.AddDays(today, 1), calendar.AddDays(today, horizonDays))
	if err != nil {
		return nil, fmt.Errorf("load pauses: %w", err)
	}
	entries, err := Project(Input{
		Today:            today,
		HorizonDays:      horizonDays,
		DailyCost:        dailyCost,
		Snapshot:         snap,
		Paused:           paused,
		AutoOrderEnabled: snap.AutoOrderEnabled,
	})
	if err != nil {
		return nil, err
	}
	p.cache.Set(ctx, accountID, key, entries)
	p.metrics.ObserveProjection(false, time.Since(start))
	return entries, nil
}

// StatusOn returns the forecast for date as seen from the previous day,
// together with the daily cost that forecast used.
func (p *Projector) StatusOn(ctx context.Context, accountID uuid.UUID, date time.Time) (models.ProjectionStatus, int, error) {
	snap, err := p.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return "", 0, err
	}
	cost := snap.DailyCost
	if cost <= 0 {
		cost = models.DailyCostForPlan(snap.ActivePlan)
	}
	entries, err := p.ComputeProjection(ctx, accountID, calendar.AddDays(date, -1), 1, cost)
	if err != nil {
		return "", 0, err
	}
	return entries[0].Status, cost, nil
}

// InvalidateHook drops cached projections when the ledger changes.
func (p *Projector) InvalidateHook() ledger.Hook {
	return func(ctx context.Context, c ledger.Change) {
		p.cache.Invalidate(ctx, c.Record.AccountID)
	}
}

// MonthView renders every date of a month. Dates before today are
// reconciled against the order log, today is marked as such, and later
// dates carry their projection status.
func (p *Projector) MonthView(ctx context.Context, accountID uuid.UUID, year int, month time.Month) ([]models.DayView, error) {
	if month < time.January || month > time.December || year < 1 {
		return nil, ErrInvalidMonth
	}
	today := p.Today()
	if year > today.Year()+2 {
		return nil, ErrInvalidMonth
	}
	days := calendar.MonthRange(year, month)
	first, last := days[0], days[len(days)-1]
	if first.After(calendar.AddDays(today, MaxHorizonDays-31)) {
		return nil, ErrInvalidMonth
	}

	paused, err := p.pauses.PausedBetween(ctx, accountID, first, last)
	if err != nil {
		return nil, fmt.Errorf("load pauses: %w", err)
	}

	projected := map[string]models.ProjectionStatus{}
	if last.After(today) {
		horizon := int(last.Sub(today).Hours() / 24)
		if horizon > MaxHorizonDays {
			horizon = MaxHorizonDays
		}
		if horizon < p.horizon {
			horizon = p.horizon
		}
		entries, err := p.ComputeProjection(ctx, accountID, today, horizon, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			projected[calendar.Format(e.Date)] = e.Status
		}
	}

	history := map[string]string{}
	if first.Before(today) {
		to := calendar.AddDays(today, -1)
		if last.Before(to) {
			to = last
		}
		orders, err := p.orders.ListBetween(ctx, accountID, first, to)
		if err != nil {
			return nil, fmt.Errorf("load orders: %w", err)
		}
		for _, o := range orders {
			key := calendar.Format(o.DeliveryDate)
			if o.Status == models.OrderStatusCompleted {
				history[key] = models.DayDelivered
			} else if history[key] != models.DayDelivered {
				history[key] = models.DayOrdered
			}
		}
	}

	out := make([]models.DayView, 0, len(days))
	for _, d := range days {
		key := calendar.Format(d)
		view := models.DayView{Date: d, Paused: paused.Contains(d)}
		switch {
		case d.Before(today):
			view.Status = models.DayNoOrder
			if s, ok := history[key]; ok {
				view.Status = s
			}
		case d.Equal(today):
			view.Status = models.DayToday
		default:
			view.Status = string(projected[key])
		}
		out = append(out, view)
	}
	return out, nil
}
