package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/execution"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/orders"
)

// ---------------------------------------------------------------------------
// Shared fixture: in-memory ledger, order log and catalog behind the real
// services, so tests exercise the same code paths as production.
// ---------------------------------------------------------------------------

type flakyRecorder struct {
	mu       sync.Mutex
	inner    OrderRecorder
	failures int
}

func (f *flakyRecorder) Record(ctx context.Context, o *models.Order) (*models.Order, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("orders table unavailable")
	}
	f.mu.Unlock()
	return f.inner.Record(ctx, o)
}

type capturedEnqueue struct {
	mu   sync.Mutex
	jobs []execution.ReconcileCheckoutArgs
}

func (c *capturedEnqueue) fn(_ context.Context, args execution.ReconcileCheckoutArgs) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, args)
	return nil
}

type fixture struct {
	clk       *clock.FakeClock
	ledger    ledger.Service
	orders    orders.Service
	recorder  *flakyRecorder
	activator *ActivationService
	wallet    *WalletService
	decoder   *CartDecoder
	enqueued  *capturedEnqueue
	account   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:      clock.NewFakeClock(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)),
		enqueued: &capturedEnqueue{},
		account:  uuid.New(),
	}
	f.ledger = ledger.NewService(ledger.NewMemoryStore(), ledger.WithClock(f.clk))
	f.orders = orders.NewService(orders.NewMemoryStore(), nil, nil)
	f.recorder = &flakyRecorder{inner: f.orders}
	f.activator = NewActivationService(f.ledger, f.clk, time.UTC, 30, nil)
	f.wallet = NewWalletService(f.ledger, f.recorder, f.activator, f.enqueued.fn, f.clk, time.UTC, nil, nil)

	dec, err := NewCartDecoder(catalog.NewService(catalog.NewMemoryRepository()))
	if err != nil {
		t.Fatalf("NewCartDecoder: %v", err)
	}
	f.decoder = dec
	if err := f.ledger.EnsureAccount(context.Background(), f.account); err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	return f
}

func dishCart(unitPrice int64, qty int) models.Cart {
	return models.Cart{Items: []models.CartItem{{
		Kind: models.CartItemDish,
		Dish: &models.StandaloneDish{MenuItemID: "m1", Name: "Paneer Thali", UnitPrice: unitPrice, Quantity: qty},
	}}}
}
