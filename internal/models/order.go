package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OrderStatus follows Placed -> OutForDelivery -> Completed.
type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusCompleted      OrderStatus = "completed"
)

// Order sources.
const (
	OrderSourceCheckout  = "checkout"
	OrderSourceAutoOrder = "auto_order"
)

// CanTransition reports whether an order may move from one status to the
// next. The lifecycle is linear and Completed is terminal.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusPlaced:
		return to == OrderStatusOutForDelivery
	case OrderStatusOutForDelivery:
		return to == OrderStatusCompleted
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPlaced, OrderStatusOutForDelivery, OrderStatusCompleted:
		return true
	}
	return false
}

type Order struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Source       string          `json:"source"`
	Items        json.RawMessage `json:"items,omitempty"`
	TotalAmount  int64           `json:"total_amount"`
	DeliveryDate time.Time       `json:"delivery_date"`
	Status       OrderStatus     `json:"status"`
	RiderPhone   *string         `json:"rider_phone,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
