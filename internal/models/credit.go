package models

import (
	"time"

	"github.com/google/uuid"
)

// Journal entry_type values.
const (
	CreditEntryGrant       = "credit_grant"
	CreditEntryConsume     = "credit_consume"
	CreditEntryWalletTopUp = "wallet_topup"
	CreditEntryWalletDebit = "wallet_debit"
)

// Resource pools an entry can move.
const (
	PoolCredits = "credits"
	PoolWallet  = "wallet"
)

// CreditEntry is one append-only journal line. Amount is signed: grants and
// top-ups are positive, consumption and debits negative.
type CreditEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	EntryType    string     `json:"entry_type"`
	Pool         string     `json:"pool"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balance_after"`
	ReferenceID  *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
