package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/models"
)

// MutateFunc edits rec in place and optionally returns the journal entry
// describing the change. Returning an error aborts the mutation; nothing
// is persisted.
type MutateFunc func(rec *models.LedgerRecord) (*models.CreditEntry, error)

// Store persists ledger records. Mutate is the only write path and must be
// an atomic read-modify-write serialized per account; different accounts
// must not contend.
type Store interface {
	EnsureAccount(ctx context.Context, accountID uuid.UUID) error
	Get(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	Mutate(ctx context.Context, accountID uuid.UUID, fn MutateFunc) (models.LedgerRecord, error)
	Entries(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditEntry, error)
	// FindEntry returns the journal entry of entryType tagged with ref, or
	// ErrEntryNotFound.
	FindEntry(ctx context.Context, accountID uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error)
	ListAutoOrderAccounts(ctx context.Context) ([]uuid.UUID, error)
}
