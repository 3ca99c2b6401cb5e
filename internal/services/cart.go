package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tiffinbox/backend/internal/models"
)

//go:embed schemas/cart.schema.json
var cartSchemaJSON string

const cartSchemaID = "https://tiffinbox.dev/schemas/cart.json"

var (
	// ErrValidation can be used with errors.Is to detect payloads rejected
	// at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCart is returned for carts that are well-formed but cannot
	// be checked out, such as two plan purchases at once.
	ErrInvalidCart = errors.New("invalid cart")
)

// PlanQuoter resolves a plan purchase to server-side price and credits.
type PlanQuoter interface {
	Quote(ctx context.Context, planName string, timing models.Timing) (models.SubscriptionPlan, error)
}

// CartDecoder validates checkout payloads against the cart schema and
// resolves subscription items through the catalog.
type CartDecoder struct {
	schema *jsonschema.Schema
	plans  PlanQuoter
}

func NewCartDecoder(plans PlanQuoter) (*CartDecoder, error) {
	schema, err := jsonschema.CompileString(cartSchemaID, cartSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile cart schema: %w", err)
	}
	return &CartDecoder{schema: schema, plans: plans}, nil
}

type wireCartItem struct {
	Kind       models.CartItemKind `json:"kind"`
	MenuItemID string              `json:"menu_item_id"`
	Name       string              `json:"name"`
	UnitPrice  int64               `json:"unit_price"`
	Quantity   int                 `json:"quantity"`
	PlanName   string              `json:"plan_name"`
	Timing     models.Timing       `json:"timing"`
}

// Decode performs a hard reject on payloads that do not match the schema.
func (d *CartDecoder) Decode(ctx context.Context, raw json.RawMessage) (models.Cart, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.Cart{}, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return models.Cart{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var wire struct {
		Items []wireCartItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return models.Cart{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	cart := models.Cart{Items: make([]models.CartItem, 0, len(wire.Items))}
	subscriptions := 0
	for _, it := range wire.Items {
		switch it.Kind {
		case models.CartItemDish:
			cart.Items = append(cart.Items, models.CartItem{
				Kind: models.CartItemDish,
				Dish: &models.StandaloneDish{
					MenuItemID: it.MenuItemID,
					Name:       it.Name,
					UnitPrice:  it.UnitPrice,
					Quantity:   it.Quantity,
				},
			})
		case models.CartItemSubscription:
			subscriptions++
			if subscriptions > 1 {
				return models.Cart{}, fmt.Errorf("%w: at most one plan per checkout", ErrInvalidCart)
			}
			plan, err := d.plans.Quote(ctx, it.PlanName, it.Timing)
			if err != nil {
				return models.Cart{}, fmt.Errorf("%w: %v", ErrInvalidCart, err)
			}
			cart.Items = append(cart.Items, models.CartItem{Kind: models.CartItemSubscription, Subscription: &plan})
		}
	}
	return cart, nil
}
