package models

import "math"

// CartItemKind tags the variant a cart item carries.
type CartItemKind string

const (
	CartItemDish         CartItemKind = "dish"
	CartItemSubscription CartItemKind = "subscription"
)

// StandaloneDish is a pay-as-you-go menu item.
type StandaloneDish struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int    `json:"quantity"`
}

// SubscriptionPlan is a plan purchase. Price and credits are resolved
// from the catalog, never taken from the client.
type SubscriptionPlan struct {
	PlanName    string `json:"plan_name"`
	DisplayName string `json:"display_name"`
	Timing      Timing `json:"timing"`
	Price       int64  `json:"price"`
	BaseCredits int    `json:"base_credits"`
}

// CartItem is a tagged variant: exactly one of Dish and Subscription is
// set, matching Kind.
type CartItem struct {
	Kind         CartItemKind      `json:"kind"`
	Dish         *StandaloneDish   `json:"dish,omitempty"`
	Subscription *SubscriptionPlan `json:"subscription,omitempty"`
}

// Amount is the line total in minor units. ok is false when the line
// total does not fit in an int64.
func (c CartItem) Amount() (amount int64, ok bool) {
	switch c.Kind {
	case CartItemDish:
		if c.Dish != nil {
			qty := int64(c.Dish.Quantity)
			if qty > 0 && c.Dish.UnitPrice > math.MaxInt64/qty {
				return 0, false
			}
			return c.Dish.UnitPrice * qty, true
		}
	case CartItemSubscription:
		if c.Subscription != nil {
			return c.Subscription.Price, true
		}
	}
	return 0, true
}

type Cart struct {
	Items []CartItem `json:"items"`
}

// Total sums the line amounts. ok is false on overflow.
func (c Cart) Total() (total int64, ok bool) {
	for _, it := range c.Items {
		amount, ok := it.Amount()
		if !ok || (amount > 0 && total > math.MaxInt64-amount) {
			return 0, false
		}
		total += amount
	}
	return total, true
}

// Subscription returns the cart's plan purchase, if any.
func (c Cart) Subscription() *SubscriptionPlan {
	for _, it := range c.Items {
		if it.Kind == CartItemSubscription && it.Subscription != nil {
			return it.Subscription
		}
	}
	return nil
}
