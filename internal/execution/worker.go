// Package execution holds the background jobs processed by River.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/tiffinbox/backend/internal/models"
)

// ReconcileCheckoutArgs finishes a checkout whose wallet debit committed
// but whose order record or plan activation did not.
type ReconcileCheckoutArgs struct {
	OrderID      uuid.UUID   `json:"order_id"`
	AccountID    uuid.UUID   `json:"account_id"`
	Cart         models.Cart `json:"cart"`
	Total        int64       `json:"total"`
	DeliveryDate string      `json:"delivery_date"`
}

func (ReconcileCheckoutArgs) Kind() string { return "reconcile_checkout" }

// CheckoutReconciler defines the contract the worker needs to replay the
// follow-up steps of a checkout. Replays must be idempotent.
type CheckoutReconciler interface {
	Reconcile(ctx context.Context, args ReconcileCheckoutArgs) error
}

type ReconcileCheckoutWorker struct {
	river.WorkerDefaults[ReconcileCheckoutArgs]
	reconciler CheckoutReconciler
}

func NewReconcileCheckoutWorker(r CheckoutReconciler) *ReconcileCheckoutWorker {
	return &ReconcileCheckoutWorker{reconciler: r}
}

func (w *ReconcileCheckoutWorker) Timeout(*river.Job[ReconcileCheckoutArgs]) time.Duration {
	return 30 * time.Second
}

func (w *ReconcileCheckoutWorker) Work(ctx context.Context, job *river.Job[ReconcileCheckoutArgs]) error {
	if err := w.reconciler.Reconcile(ctx, job.Args); err != nil {
		return fmt.Errorf("reconcile checkout %s: %w", job.Args.OrderID, err)
	}
	return nil
}
