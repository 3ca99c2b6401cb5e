package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is the identity key a ledger record and a pause calendar hang
// off. Accounts are created on first authentication and never deleted.
type Account struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultDailyCost is the credit cost of one delivery day on a
// single-timing plan.
const DefaultDailyCost = 1

// LedgerRecord holds the two resource pools of an account. Values of this
// type are copies; mutate only through the ledger store.
type LedgerRecord struct {
	AccountID        uuid.UUID  `json:"account_id"`
	Credits          int64      `json:"credits"`
	CreditExpiry     *time.Time `json:"credit_expiry,omitempty"`
	WalletBalance    int64      `json:"wallet_balance"`
	AutoOrderEnabled bool       `json:"auto_order_enabled"`
	ActivePlan       string     `json:"active_plan,omitempty"`
	DailyCost        int        `json:"daily_cost"`
	Version          int64      `json:"version"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewLedgerRecord returns the record a freshly created account starts with.
func NewLedgerRecord(accountID uuid.UUID) LedgerRecord {
	return LedgerRecord{
		AccountID:        accountID,
		AutoOrderEnabled: true,
		DailyCost:        DefaultDailyCost,
	}
}

// CreditsExpired reports whether the credit pool is inert as of asOf.
// The expiry date itself is still usable.
func (r LedgerRecord) CreditsExpired(asOf time.Time) bool {
	if r.CreditExpiry == nil {
		return false
	}
	y, m, d := asOf.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ey, em, ed := r.CreditExpiry.Date()
	return day.After(time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC))
}

// AvailableCredits is the spendable credit count as of asOf.
func (r LedgerRecord) AvailableCredits(asOf time.Time) int64 {
	if r.CreditsExpired(asOf) {
		return 0
	}
	return r.Credits
}

// Clone returns a copy that shares no memory with r.
func (r LedgerRecord) Clone() LedgerRecord {
	out := r
	if r.CreditExpiry != nil {
		exp := *r.CreditExpiry
		out.CreditExpiry = &exp
	}
	return out
}
