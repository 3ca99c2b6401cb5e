package models

import (
	"time"

	"github.com/google/uuid"
)

// PauseEntry marks one business day on which an account skips delivery.
type PauseEntry struct {
	AccountID uuid.UUID `json:"account_id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}
