package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
)

func TestActivate_SingleTiming(t *testing.T) {
	f := newFixture(t)
	total, err := f.activator.Activate(context.Background(), f.account, models.SubscriptionPlan{
		PlanName: "Green Plan", DisplayName: "Green Plan (Lunch Only)", Timing: models.TimingLunchOnly, BaseCredits: 30,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if total != 30 {
		t.Errorf("expected 30 credits, got %d", total)
	}
	rec, _ := f.ledger.GetLedger(context.Background(), f.account)
	if rec.DailyCost != 1 {
		t.Errorf("expected daily cost 1, got %d", rec.DailyCost)
	}
	want := time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC)
	if rec.CreditExpiry == nil || !rec.CreditExpiry.Equal(want) {
		t.Errorf("expected expiry %s, got %v", want.Format(time.DateOnly), rec.CreditExpiry)
	}
}

func TestActivate_ComboGrantsSixty(t *testing.T) {
	f := newFixture(t)
	total, err := f.activator.Activate(context.Background(), f.account, models.SubscriptionPlan{
		PlanName: "Smart Mix", Timing: models.TimingLunchAndDinner, BaseCredits: 30,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if total != 60 {
		t.Errorf("expected 60 credits, got %d", total)
	}
	rec, _ := f.ledger.GetLedger(context.Background(), f.account)
	if rec.ActivePlan != "Smart Mix (Lunch + Dinner)" {
		t.Errorf("unexpected active plan %q", rec.ActivePlan)
	}
	if rec.DailyCost != 2 {
		t.Errorf("expected daily cost 2, got %d", rec.DailyCost)
	}
}

func TestActivate_RenewalAddsAndExtends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := models.SubscriptionPlan{PlanName: "Red Plan", Timing: models.TimingDinnerOnly, BaseCredits: 30}
	if _, err := f.activator.Activate(ctx, f.account, plan); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	f.clk.Advance(10 * 24 * time.Hour)
	total, err := f.activator.Activate(ctx, f.account, plan)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if total != 60 {
		t.Errorf("expected 60 credits after renewal, got %d", total)
	}
	rec, _ := f.ledger.GetLedger(ctx, f.account)
	want := time.Date(2026, 11, 24, 0, 0, 0, 0, time.UTC)
	if !rec.CreditExpiry.Equal(want) {
		t.Errorf("expected expiry %s, got %s", want.Format(time.DateOnly), rec.CreditExpiry.Format(time.DateOnly))
	}
}

func TestActivate_ZeroCreditPlanIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.activator.Activate(context.Background(), f.account, models.SubscriptionPlan{
		PlanName: "Broken", Timing: models.TimingLunchOnly, BaseCredits: 0,
	})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
