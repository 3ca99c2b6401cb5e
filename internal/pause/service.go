// Package pause keeps the per-account set of business days on which
// automatic delivery is skipped.
package pause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
)

// ErrInvalidPauseDate is returned for weekends and for dates that are not
// after today.
var ErrInvalidPauseDate = errors.New("invalid pause date")

// Toucher bumps the ledger version so cached projections go stale. It
// fails for unknown accounts. ledger.Service satisfies it.
type Toucher interface {
	Touch(ctx context.Context, accountID uuid.UUID) error
}

type Service struct {
	store   Store
	toucher Toucher
	clock   clock.Clock
	loc     *time.Location
	log     *slog.Logger
}

func NewService(store Store, toucher Toucher, clk clock.Clock, loc *time.Location, log *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, toucher: toucher, clock: clk, loc: loc, log: log}
}

// Toggle flips the pause state of date and returns the state after the
// flip. Toggling twice restores the original state.
func (s *Service) Toggle(ctx context.Context, accountID uuid.UUID, date time.Time) (bool, error) {
	date = calendar.Day(date)
	if calendar.IsWeekend(date) {
		return false, fmt.Errorf("%w: %s is a weekend", ErrInvalidPauseDate, calendar.Format(date))
	}
	today := calendar.Today(s.clock.Now(), s.loc)
	if !date.After(today) {
		return false, fmt.Errorf("%w: %s is not after today", ErrInvalidPauseDate, calendar.Format(date))
	}

	// The first bump rejects unknown accounts before anything is written;
	// the second retires projections cached between the two.
	if s.toucher != nil {
		if err := s.toucher.Touch(ctx, accountID); err != nil {
			return false, err
		}
	}
	paused, err := s.store.Toggle(ctx, accountID, date)
	if err != nil {
		return false, err
	}
	if s.toucher != nil {
		if err := s.toucher.Touch(ctx, accountID); err != nil {
			// The toggle is committed; a stale cache entry expires on its TTL.
			s.log.Error("pause: version bump failed", "account_id", accountID, "error", err)
		}
	}
	s.log.Info("pause toggled", "account_id", accountID, "date", calendar.Format(date), "paused", paused)
	return paused, nil
}

// PausedBetween returns the paused dates in [from, to] as a Set.
func (s *Service) PausedBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) (Set, error) {
	dates, err := s.store.Between(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}
	return NewSet(dates...), nil
}
