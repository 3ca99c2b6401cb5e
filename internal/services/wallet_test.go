package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/execution"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
)

func TestCheckout_DeficitTopUpRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart := dishCart(250, 2)

	_, err := f.wallet.Checkout(ctx, f.account, cart)
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if insufficient.Deficit != 500 {
		t.Errorf("expected deficit 500, got %d", insufficient.Deficit)
	}
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Error("InsufficientFundsError must match ledger.ErrInsufficientFunds")
	}

	if _, err := f.wallet.TopUp(ctx, f.account, 500); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	receipt, err := f.wallet.Checkout(ctx, f.account, cart)
	if err != nil {
		t.Fatalf("Checkout after top-up: %v", err)
	}
	if receipt.WalletBalance != 0 {
		t.Errorf("expected balance 0, got %d", receipt.WalletBalance)
	}
	if receipt.Pending {
		t.Error("receipt should not be pending")
	}

	o, err := f.orders.Get(ctx, receipt.OrderID)
	if err != nil {
		t.Fatalf("order not recorded: %v", err)
	}
	if o.TotalAmount != 500 || o.Status != models.OrderStatusPlaced {
		t.Errorf("unexpected order %+v", o)
	}
}

func TestCheckout_PartialDeficit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.wallet.TopUp(ctx, f.account, 120); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	_, err := f.wallet.Checkout(ctx, f.account, dishCart(100, 2))
	var insufficient *InsufficientFundsError
	if !errors.As(err, &insufficient) || insufficient.Deficit != 80 {
		t.Fatalf("expected deficit 80, got %v", err)
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	if rec.WalletBalance != 120 {
		t.Errorf("rejected checkout must not debit, balance %d", rec.WalletBalance)
	}
}

func TestCheckout_SubscriptionActivatesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.decoder.Decode(ctx, []byte(`{"items":[{"kind":"subscription","plan_name":"Green Plan","timing":"lunch_and_dinner"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := f.wallet.TopUp(ctx, f.account, 6000); err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	receipt, err := f.wallet.Checkout(ctx, f.account, cart)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if receipt.Total != 5098 {
		t.Errorf("expected combo price 5098, got %d", receipt.Total)
	}
	if receipt.Credits == nil || *receipt.Credits != 60 {
		t.Errorf("expected 60 credits on receipt, got %v", receipt.Credits)
	}
	if receipt.WalletBalance != 902 {
		t.Errorf("expected balance 902, got %d", receipt.WalletBalance)
	}
}

func TestCheckout_FollowUpFailureIsReconciled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recorder.failures = 1
	if _, err := f.wallet.TopUp(ctx, f.account, 300); err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	receipt, err := f.wallet.Checkout(ctx, f.account, dishCart(300, 1))
	if err != nil {
		t.Fatalf("debit committed, checkout must succeed: %v", err)
	}
	if !receipt.Pending {
		t.Error("expected pending receipt")
	}
	if len(f.enqueued.jobs) != 1 {
		t.Fatalf("expected one reconciliation job, got %d", len(f.enqueued.jobs))
	}
	if _, err := f.orders.Get(ctx, receipt.OrderID); err == nil {
		t.Fatal("order should not exist before reconciliation")
	}

	// The worker replays twice; the second run must be a no-op.
	for i := 0; i < 2; i++ {
		if err := f.wallet.Reconcile(ctx, f.enqueued.jobs[0]); err != nil {
			t.Fatalf("Reconcile #%d: %v", i+1, err)
		}
	}
	list, _ := f.orders.ListForAccount(ctx, f.account, 0)
	if len(list) != 1 {
		t.Errorf("expected exactly one order, got %d", len(list))
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	if rec.WalletBalance != 0 {
		t.Errorf("debit must stand, balance %d", rec.WalletBalance)
	}
}

func TestReconcile_ActivationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cart, err := f.decoder.Decode(ctx, []byte(`{"items":[{"kind":"subscription","plan_name":"Red Plan","timing":"lunch_only"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := f.wallet.TopUp(ctx, f.account, 3999); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	receipt, err := f.wallet.Checkout(ctx, f.account, cart)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	args := f.enqueued.jobs
	if len(args) != 0 {
		t.Fatalf("no reconciliation expected, got %d", len(args))
	}
	// A stray replay of the same order must not grant twice.
	replay := reconcileArgsFor(receipt.OrderID, f, cart, receipt.Total)
	if err := f.wallet.Reconcile(ctx, replay); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	if rec.Credits != 30 {
		t.Errorf("expected 30 credits, got %d", rec.Credits)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.wallet.Checkout(context.Background(), f.account, models.Cart{})
	if !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
}

func TestCheckout_OverflowingTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.wallet.TopUp(ctx, f.account, 100); err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	// 6148914691236517206 * 3 wraps to 2 in int64 arithmetic.
	_, err := f.wallet.Checkout(ctx, f.account, dishCart(6148914691236517206, 3))
	if !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	if rec.WalletBalance != 100 {
		t.Errorf("expected untouched balance 100, got %d", rec.WalletBalance)
	}
	if len(f.enqueued.jobs) != 0 {
		t.Errorf("expected no reconciliation jobs, got %d", len(f.enqueued.jobs))
	}
}

func TestCheckout_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	f.account[0] ^= 0xff
	_, err := f.wallet.Checkout(context.Background(), f.account, dishCart(1, 1))
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCheckout_ConcurrentNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.wallet.TopUp(ctx, f.account, 1000); err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.wallet.Checkout(ctx, f.account, dishCart(150, 1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, ledger.ErrInsufficientFunds) {
				fail++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 6 || fail != 14 {
		t.Errorf("expected 6 successes and 14 rejections, got %d/%d", ok, fail)
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	if rec.WalletBalance != 100 {
		t.Errorf("expected balance 100, got %d", rec.WalletBalance)
	}
}

func reconcileArgsFor(orderID uuid.UUID, f *fixture, cart models.Cart, total int64) execution.ReconcileCheckoutArgs {
	return execution.ReconcileCheckoutArgs{
		OrderID:      orderID,
		AccountID:    f.account,
		Cart:         cart,
		Total:        total,
		DeliveryDate: "2026-10-15",
	}
}
