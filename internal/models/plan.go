package models

import (
	"fmt"
	"math"
	"strings"
)

// Timing is the meal slot selection of a subscription purchase.
type Timing string

const (
	TimingLunchOnly      Timing = "lunch_only"
	TimingDinnerOnly     Timing = "dinner_only"
	TimingLunchAndDinner Timing = "lunch_and_dinner"
)

// ComboDiscount is the price reduction applied to a lunch+dinner plan.
const ComboDiscount = 0.15

// ComboSuffix marks plan display names that cover both meals.
const ComboSuffix = "Lunch + Dinner"

// ParseTiming accepts both the wire form and the display label.
func ParseTiming(s string) (Timing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TimingLunchOnly), "lunch only":
		return TimingLunchOnly, nil
	case string(TimingDinnerOnly), "dinner only":
		return TimingDinnerOnly, nil
	case string(TimingLunchAndDinner), "lunch + dinner":
		return TimingLunchAndDinner, nil
	}
	return "", fmt.Errorf("unknown timing %q", s)
}

// Label is the human form used in plan display names.
func (t Timing) Label() string {
	switch t {
	case TimingLunchOnly:
		return "Lunch Only"
	case TimingDinnerOnly:
		return "Dinner Only"
	case TimingLunchAndDinner:
		return ComboSuffix
	}
	return string(t)
}

// DailyCost is the number of credits one delivery day consumes.
func (t Timing) DailyCost() int {
	if t == TimingLunchAndDinner {
		return 2
	}
	return 1
}

// CreditMultiplier scales the plan's base credit grant.
func (t Timing) CreditMultiplier() int {
	if t == TimingLunchAndDinner {
		return 2
	}
	return 1
}

// DailyCostForPlan derives the daily credit cost from an active plan's
// display name. Unknown or empty names cost one credit per day.
func DailyCostForPlan(planName string) int {
	if strings.Contains(planName, ComboSuffix) {
		return TimingLunchAndDinner.DailyCost()
	}
	return DefaultDailyCost
}

// Plan is a static catalog entry supplied by the menu.
type Plan struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	BasePrice   int64  `json:"base_price"`
	BaseCredits int    `json:"base_credits"`
}

// PriceFor returns the checkout price of p for the given timing. The combo
// doubles the meals and takes ComboDiscount off the doubled price.
func (p Plan) PriceFor(t Timing) int64 {
	if t == TimingLunchAndDinner {
		return int64(math.Round(float64(p.BasePrice*2) * (1 - ComboDiscount)))
	}
	return p.BasePrice
}

// DisplayName is the name recorded as the account's active plan.
func (p Plan) DisplayName(t Timing) string {
	return fmt.Sprintf("%s (%s)", p.Name, t.Label())
}
