package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tiffinbox/backend/internal/models"
)

func TestCartDecoder_DishAndPlan(t *testing.T) {
	f := newFixture(t)
	raw := `{"items":[
		{"kind":"dish","menu_item_id":"m7","name":"Dal Makhani","unit_price":180,"quantity":2},
		{"kind":"subscription","plan_name":"Smart Mix","timing":"dinner_only"}
	]}`
	cart, err := f.decoder.Decode(context.Background(), []byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(cart.Items))
	}
	plan := cart.Subscription()
	if plan == nil {
		t.Fatal("expected a subscription item")
	}
	if plan.Price != 3499 || plan.BaseCredits != 30 || plan.Timing != models.TimingDinnerOnly {
		t.Errorf("unexpected plan %+v", plan)
	}
	if total, ok := cart.Total(); !ok || total != 360+3499 {
		t.Errorf("expected total %d, got %d (ok=%t)", 360+3499, total, ok)
	}
}

func TestCartDecoder_SchemaRejects(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"not json":          `{"items":`,
		"no items":          `{"items":[]}`,
		"unknown kind":      `{"items":[{"kind":"gift_card","amount":100}]}`,
		"zero quantity":     `{"items":[{"kind":"dish","menu_item_id":"m1","name":"Thali","unit_price":100,"quantity":0}]}`,
		"negative price":    `{"items":[{"kind":"dish","menu_item_id":"m1","name":"Thali","unit_price":-5,"quantity":1}]}`,
		"price above limit": `{"items":[{"kind":"dish","menu_item_id":"m1","name":"Thali","unit_price":6148914691236517206,"quantity":3}]}`,
		"client plan price": `{"items":[{"kind":"subscription","plan_name":"Green Plan","timing":"lunch_only","price":1}]}`,
		"bad timing":        `{"items":[{"kind":"subscription","plan_name":"Green Plan","timing":"breakfast"}]}`,
		"extra field":       `{"items":[{"kind":"dish","menu_item_id":"m1","name":"Thali","unit_price":100,"quantity":1}],"coupon":"FREE"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.decoder.Decode(context.Background(), []byte(raw))
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCartDecoder_TwoPlansRejected(t *testing.T) {
	f := newFixture(t)
	raw := `{"items":[
		{"kind":"subscription","plan_name":"Green Plan","timing":"lunch_only"},
		{"kind":"subscription","plan_name":"Red Plan","timing":"dinner_only"}
	]}`
	_, err := f.decoder.Decode(context.Background(), []byte(raw))
	if !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
}

func TestCartDecoder_UnknownPlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.decoder.Decode(context.Background(),
		[]byte(`{"items":[{"kind":"subscription","plan_name":"Blue Plan","timing":"lunch_only"}]}`))
	if !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart, got %v", err)
	}
}
