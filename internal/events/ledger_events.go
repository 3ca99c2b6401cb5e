package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/ledger"
)

// LedgerChanged is published after every committed ledger mutation.
type LedgerChanged struct {
	AccountID     uuid.UUID  `json:"account_id"`
	EntryType     string     `json:"entry_type,omitempty"`
	Amount        int64      `json:"amount"`
	Credits       int64      `json:"credits"`
	CreditExpiry  *time.Time `json:"credit_expiry,omitempty"`
	WalletBalance int64      `json:"wallet_balance"`
	Version       int64      `json:"version"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// LedgerHook publishes LedgerChanged. Publish failures are logged; the
// ledger change is already committed.
func LedgerHook(pub Publisher, log *slog.Logger) ledger.Hook {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, c ledger.Change) {
		ev := LedgerChanged{
			AccountID:     c.Record.AccountID,
			Credits:       c.Record.Credits,
			CreditExpiry:  c.Record.CreditExpiry,
			WalletBalance: c.Record.WalletBalance,
			Version:       c.Record.Version,
			OccurredAt:    c.Record.UpdatedAt,
		}
		if c.Entry != nil {
			ev.EntryType = c.Entry.EntryType
			ev.Amount = c.Entry.Amount
		}
		if err := pub.Publish(ctx, KeyLedgerChanged, ev); err != nil {
			log.Warn("ledger event publish failed", "account_id", ev.AccountID, "version", ev.Version, "error", err)
		}
	}
}
