package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/execution"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/metrics"
	"github.com/tiffinbox/backend/internal/models"
)

// InsufficientFundsError reports how much more the wallet needs.
// errors.Is(err, ledger.ErrInsufficientFunds) holds.
type InsufficientFundsError struct {
	Deficit int64
	Balance int64
	Total   int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d more", e.Deficit)
}

func (e *InsufficientFundsError) Unwrap() error { return ledger.ErrInsufficientFunds }

// WalletLedger is the ledger surface checkout needs.
type WalletLedger interface {
	Snapshot(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	DebitWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...ledger.MutationOption) (int64, error)
	CreditWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...ledger.MutationOption) (int64, error)
}

type OrderRecorder interface {
	Record(ctx context.Context, o *models.Order) (*models.Order, error)
}

type Activator interface {
	Activate(ctx context.Context, accountID uuid.UUID, plan models.SubscriptionPlan, opts ...ledger.MutationOption) (int64, error)
}

// EnqueueReconcileFunc hands an unfinished checkout to the reconciliation
// job. Provided by main using river.Client.Insert.
type EnqueueReconcileFunc func(ctx context.Context, args execution.ReconcileCheckoutArgs) error

// Receipt is the result of a successful checkout. Pending is set when the
// debit committed but the order or plan activation was handed to the
// reconciliation job.
type Receipt struct {
	OrderID       uuid.UUID `json:"order_id"`
	Total         int64     `json:"total"`
	WalletBalance int64     `json:"wallet_balance"`
	Credits       *int64    `json:"credits,omitempty"`
	Pending       bool      `json:"pending"`
}

type WalletService struct {
	ledger    WalletLedger
	orders    OrderRecorder
	activator Activator
	enqueue   EnqueueReconcileFunc
	clock     clock.Clock
	loc       *time.Location
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewWalletService(l WalletLedger, orders OrderRecorder, activator Activator, enqueue EnqueueReconcileFunc,
	clk clock.Clock, loc *time.Location, m *metrics.Metrics, log *slog.Logger) *WalletService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &WalletService{ledger: l, orders: orders, activator: activator, enqueue: enqueue,
		clock: clk, loc: loc, metrics: m, log: log}
}

var _ execution.CheckoutReconciler = (*WalletService)(nil)

// TopUp adds amount to the wallet and returns the new balance.
func (s *WalletService) TopUp(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	return s.ledger.CreditWallet(ctx, accountID, amount)
}

// Checkout pays for cart from the wallet. Nothing is debited when the
// balance is short; the error carries the deficit. Once the debit commits
// the checkout succeeds: later failures are reconciled in the background.
func (s *WalletService) Checkout(ctx context.Context, accountID uuid.UUID, cart models.Cart) (*Receipt, error) {
	receipt, err := s.checkout(ctx, accountID, cart)
	s.metrics.ObserveCheckout(err)
	return receipt, err
}

func (s *WalletService) checkout(ctx context.Context, accountID uuid.UUID, cart models.Cart) (*Receipt, error) {
	if len(cart.Items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrInvalidCart)
	}
	total, ok := cart.Total()
	if !ok {
		return nil, fmt.Errorf("%w: total out of range", ErrInvalidCart)
	}
	if total <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if deficit := total - snap.WalletBalance; deficit > 0 {
		return nil, &InsufficientFundsError{Deficit: deficit, Balance: snap.WalletBalance, Total: total}
	}

	orderID := uuid.New()
	balance, err := s.ledger.DebitWallet(ctx, accountID, total, ledger.WithReference(orderID))
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		// A concurrent debit won the race after the snapshot.
		return nil, s.deficitError(ctx, accountID, total)
	}
	if err != nil {
		return nil, err
	}

	args := execution.ReconcileCheckoutArgs{
		OrderID:      orderID,
		AccountID:    accountID,
		Cart:         cart,
		Total:        total,
		DeliveryDate: calendar.Format(calendar.Today(s.clock.Now(), s.loc)),
	}
	receipt := &Receipt{OrderID: orderID, Total: total, WalletBalance: balance}
	credits, err := s.complete(ctx, args)
	if err != nil {
		s.log.Error("checkout follow-up failed; scheduling reconciliation",
			"account_id", accountID, "order_id", orderID, "error", err)
		receipt.Pending = true
		s.scheduleReconcile(ctx, args)
		return receipt, nil
	}
	receipt.Credits = credits
	return receipt, nil
}

func (s *WalletService) deficitError(ctx context.Context, accountID uuid.UUID, total int64) error {
	snap, err := s.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return &InsufficientFundsError{Deficit: total, Total: total}
	}
	deficit := total - snap.WalletBalance
	if deficit <= 0 {
		deficit = total
	}
	return &InsufficientFundsError{Deficit: deficit, Balance: snap.WalletBalance, Total: total}
}

func (s *WalletService) scheduleReconcile(ctx context.Context, args execution.ReconcileCheckoutArgs) {
	if s.enqueue == nil {
		s.log.Error("reconciliation unavailable; manual follow-up needed", "order_id", args.OrderID, "account_id", args.AccountID)
		return
	}
	// The request context may already be cancelled.
	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.enqueue(enqCtx, args); err != nil {
		s.log.Error("reconciliation enqueue failed; manual follow-up needed",
			"order_id", args.OrderID, "account_id", args.AccountID, "error", err)
		return
	}
	s.metrics.ReconciliationEnqueued()
}

// Reconcile replays the steps after the debit. Each step is idempotent on
// the order id.
func (s *WalletService) Reconcile(ctx context.Context, args execution.ReconcileCheckoutArgs) error {
	_, err := s.complete(ctx, args)
	return err
}

func (s *WalletService) complete(ctx context.Context, args execution.ReconcileCheckoutArgs) (*int64, error) {
	items, err := json.Marshal(args.Cart.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	day, err := calendar.Parse(args.DeliveryDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.orders.Record(ctx, &models.Order{
		ID:           args.OrderID,
		AccountID:    args.AccountID,
		Source:       models.OrderSourceCheckout,
		Items:        items,
		TotalAmount:  args.Total,
		DeliveryDate: day,
	}); err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}

	plan := args.Cart.Subscription()
	if plan == nil {
		return nil, nil
	}
	credits, err := s.activator.Activate(ctx, args.AccountID, *plan, ledger.WithReference(args.OrderID))
	if errors.Is(err, ledger.ErrDuplicateReference) {
		s.log.Info("plan already activated for order", "order_id", args.OrderID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("activate plan: %w", err)
	}
	return &credits, nil
}
