// Package orders keeps the delivery order log. Orders are written by
// checkout and by the daily auto-order job, and moved along their
// lifecycle by riders and back office.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/events"
	"github.com/tiffinbox/backend/internal/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// StatusChanged is published after every committed transition.
type StatusChanged struct {
	OrderID   uuid.UUID          `json:"order_id"`
	AccountID uuid.UUID          `json:"account_id"`
	From      models.OrderStatus `json:"from"`
	To        models.OrderStatus `json:"to"`
	At        time.Time          `json:"at"`
}

type Service interface {
	// Record stores a new order in the Placed status. Recording the same
	// order id twice is a no-op that returns the stored order.
	Record(ctx context.Context, o *models.Order) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Order, error)
	ListBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error)
	Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, riderPhone *string) (*models.Order, error)
}

type service struct {
	store Store
	pub   events.Publisher
	log   *slog.Logger
}

func NewService(store Store, pub events.Publisher, log *slog.Logger) Service {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, pub: pub, log: log}
}

var _ Service = (*service)(nil)

func (s *service) Record(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if len(o.Items) == 0 {
		o.Items = json.RawMessage(`[]`)
	}
	o.Status = models.OrderStatusPlaced
	created, err := s.store.Create(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}
	if !created {
		return s.store.GetByID(ctx, o.ID)
	}
	if err := s.pub.Publish(ctx, events.KeyOrderPlaced, o); err != nil {
		s.log.Warn("order event publish failed", "order_id", o.ID, "error", err)
	}
	return o, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.store.GetByID(ctx, id)
}

func (s *service) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Order, error) {
	return s.store.ListByAccount(ctx, accountID, limit)
}

func (s *service) ListBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error) {
	return s.store.ListBetween(ctx, accountID, from, to)
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, to models.OrderStatus, riderPhone *string) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	cur, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}
	updated, err := s.store.UpdateStatus(ctx, id, cur.Status, to, riderPhone)
	if err != nil {
		return nil, err
	}
	ev := StatusChanged{OrderID: id, AccountID: updated.AccountID, From: cur.Status, To: to, At: updated.UpdatedAt}
	if err := s.pub.Publish(ctx, events.KeyOrderStatusChanged, ev); err != nil {
		s.log.Warn("order event publish failed", "order_id", id, "error", err)
	}
	s.log.Info("order status changed", "order_id", id, "from", cur.Status, "to", to)
	return updated, nil
}
