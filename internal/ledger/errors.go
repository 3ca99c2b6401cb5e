package ledger

import "errors"

var (
	// ErrInvalidAmount is returned for non-positive grant, top-up, debit or
	// consumption amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds is returned when the wallet balance is below the
	// requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCreditsExhausted is returned when non-expired credits cannot cover a
	// consumption.
	ErrCreditsExhausted = errors.New("credits exhausted")
	// ErrAccountNotFound means the caller referenced an account that was
	// never created. Authentication should have prevented it.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateReference is returned when a mutation carrying a reference
	// id was already applied. Callers replaying work treat it as success.
	ErrDuplicateReference = errors.New("mutation already applied")
	// ErrEntryNotFound means no journal entry carries the requested reference.
	ErrEntryNotFound = errors.New("journal entry not found")
)
