package models

import (
	"github.com/google/uuid"
)

// API key scopes for internal callers.
const (
	APIKeyScopeFulfillment = "fulfillment"
	APIKeyScopeAdmin       = "admin"
)

// APIKey authenticates an internal collaborator (order fulfillment, rider
// app, back office) against the internal API.
type APIKey struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	Scope     string    `json:"scope"`
	IsActive  bool      `json:"is_active"`
}
