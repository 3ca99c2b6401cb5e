package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
)

// DefaultTermDays is how long purchased credits stay usable.
const DefaultTermDays = 30

// ActivationLedger is the ledger surface plan activation needs.
type ActivationLedger interface {
	GrantPlanCredits(ctx context.Context, accountID uuid.UUID, g ledger.PlanGrant, opts ...ledger.MutationOption) (models.LedgerRecord, error)
}

// ActivationService turns a plan purchase into a credit grant.
type ActivationService struct {
	ledger   ActivationLedger
	clock    clock.Clock
	loc      *time.Location
	termDays int
	log      *slog.Logger
}

func NewActivationService(l ActivationLedger, clk clock.Clock, loc *time.Location, termDays int, log *slog.Logger) *ActivationService {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	if termDays <= 0 {
		termDays = DefaultTermDays
	}
	if log == nil {
		log = slog.Default()
	}
	return &ActivationService{ledger: l, clock: clk, loc: loc, termDays: termDays, log: log}
}

// Activate grants the plan's credits, scaled by its timing, with an expiry
// of today plus the term. It returns the account's total credits after the
// grant.
func (s *ActivationService) Activate(ctx context.Context, accountID uuid.UUID, plan models.SubscriptionPlan, opts ...ledger.MutationOption) (int64, error) {
	credits := int64(plan.BaseCredits) * int64(plan.Timing.CreditMultiplier())
	name := plan.DisplayName
	if name == "" {
		name = plan.PlanName + " (" + plan.Timing.Label() + ")"
	}
	expiry := calendar.AddDays(calendar.Today(s.clock.Now(), s.loc), s.termDays)

	rec, err := s.ledger.GrantPlanCredits(ctx, accountID, ledger.PlanGrant{
		Credits:   credits,
		Expiry:    expiry,
		PlanName:  name,
		DailyCost: plan.Timing.DailyCost(),
	}, opts...)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) {
			// A plan without credits is a catalog error, not a user error.
			s.log.Error("plan activation with non-positive credits", "account_id", accountID, "plan", name, "credits", credits)
		}
		return 0, err
	}
	s.log.Info("plan activated", "account_id", accountID, "plan", name, "granted", credits, "credits", rec.Credits)
	return rec.Credits, nil
}
