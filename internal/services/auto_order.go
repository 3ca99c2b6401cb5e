package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/execution"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/metrics"
	"github.com/tiffinbox/backend/internal/models"
)

// autoOrderNamespace derives stable order ids so a re-run of the same day
// neither double-consumes nor double-records.
var autoOrderNamespace = uuid.MustParse("6f1c2b0e-3a47-4d8e-9a51-0c9e7d4b2f10")

// AutoOrderID is the order id of account's automatic delivery on date.
func AutoOrderID(accountID uuid.UUID, date time.Time) uuid.UUID {
	return uuid.NewSHA1(autoOrderNamespace, []byte(accountID.String()+"/"+calendar.Format(date)))
}

type AutoOrderLedger interface {
	ListAutoOrderAccounts(ctx context.Context) ([]uuid.UUID, error)
	Snapshot(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	ConsumeCredits(ctx context.Context, accountID uuid.UUID, count int64, asOf time.Time, opts ...ledger.MutationOption) (models.LedgerRecord, error)
	FindEntry(ctx context.Context, accountID uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error)
}

// DeliveryForecaster reports the scheduled status of a date.
type DeliveryForecaster interface {
	StatusOn(ctx context.Context, accountID uuid.UUID, date time.Time) (models.ProjectionStatus, int, error)
	Today() time.Time
}

// AutoOrderService consumes credits for every delivery the forecast
// scheduled on a day and records the matching orders.
type AutoOrderService struct {
	ledger      AutoOrderLedger
	forecast    DeliveryForecaster
	orders      OrderRecorder
	concurrency int
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewAutoOrderService(l AutoOrderLedger, f DeliveryForecaster, orders OrderRecorder, concurrency int, m *metrics.Metrics, log *slog.Logger) *AutoOrderService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &AutoOrderService{ledger: l, forecast: f, orders: orders, concurrency: concurrency, metrics: m, log: log}
}

var _ execution.AutoOrderRunner = (*AutoOrderService)(nil)

func (s *AutoOrderService) Today() time.Time { return s.forecast.Today() }

func (s *AutoOrderService) RunAutoOrders(ctx context.Context, date time.Time) (execution.AutoOrderSummary, error) {
	date = calendar.Day(date)
	var sum execution.AutoOrderSummary
	if calendar.IsWeekend(date) {
		return sum, nil
	}
	ids, err := s.ledger.ListAutoOrderAccounts(ctx)
	if err != nil {
		return sum, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			placed, err := s.placeOne(gctx, id, date)
			s.metrics.ObserveAutoOrder(err)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				sum.Failed++
				s.log.Error("auto order failed", "account_id", id, "date", calendar.Format(date), "error", err)
			case placed:
				sum.Placed++
			default:
				sum.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("auto orders run", "date", calendar.Format(date), "placed", sum.Placed, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

func (s *AutoOrderService) placeOne(ctx context.Context, accountID uuid.UUID, date time.Time) (bool, error) {
	orderID := AutoOrderID(accountID, date)

	// An earlier attempt may have taken the credits and failed before the
	// order was stored. The forecast no longer sees that delivery, so the
	// journal decides.
	prior, err := s.ledger.FindEntry(ctx, accountID, models.CreditEntryConsume, orderID)
	switch {
	case err == nil:
		return true, s.record(ctx, accountID, orderID, date, -prior.Amount)
	case !errors.Is(err, ledger.ErrEntryNotFound):
		return false, err
	}

	status, cost, err := s.forecast.StatusOn(ctx, accountID, date)
	if err != nil {
		return false, err
	}
	if status != models.ProjectionScheduled {
		return false, nil
	}

	_, err = s.ledger.ConsumeCredits(ctx, accountID, int64(cost), date, ledger.WithReference(orderID))
	switch {
	case errors.Is(err, ledger.ErrCreditsExhausted):
		return false, nil
	case errors.Is(err, ledger.ErrDuplicateReference):
		// A concurrent attempt took the credits; make sure the order exists.
	case err != nil:
		return false, err
	}
	if err := s.record(ctx, accountID, orderID, date, int64(cost)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AutoOrderService) record(ctx context.Context, accountID, orderID uuid.UUID, date time.Time, credits int64) error {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return err
	}
	items, _ := json.Marshal([]map[string]any{{"plan": snap.ActivePlan, "credits": credits}})
	_, err = s.orders.Record(ctx, &models.Order{
		ID:           orderID,
		AccountID:    accountID,
		Source:       models.OrderSourceAutoOrder,
		Items:        items,
		DeliveryDate: date,
	})
	return err
}
