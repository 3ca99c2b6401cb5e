// Package catalog prices subscription plans.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tiffinbox/backend/internal/models"
)

var ErrPlanNotFound = errors.New("plan not found")

// PlanOffer is a plan with the price of every timing option.
type PlanOffer struct {
	models.Plan
	Prices map[models.Timing]int64 `json:"prices"`
}

type Service interface {
	ListPlans(ctx context.Context) ([]PlanOffer, error)
	// Quote resolves a plan purchase to the price, credits and display
	// name the server will honour.
	Quote(ctx context.Context, planName string, timing models.Timing) (models.SubscriptionPlan, error)
}

type service struct {
	repo Reader
}

func NewService(repo Reader) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

var timings = []models.Timing{models.TimingLunchOnly, models.TimingDinnerOnly, models.TimingLunchAndDinner}

func (s *service) ListPlans(ctx context.Context) ([]PlanOffer, error) {
	plans, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PlanOffer, 0, len(plans))
	for _, p := range plans {
		offer := PlanOffer{Plan: *p, Prices: make(map[models.Timing]int64, len(timings))}
		for _, t := range timings {
			offer.Prices[t] = p.PriceFor(t)
		}
		out = append(out, offer)
	}
	return out, nil
}

func (s *service) Quote(ctx context.Context, planName string, timing models.Timing) (models.SubscriptionPlan, error) {
	p, err := s.repo.GetByName(ctx, planName)
	if err != nil {
		return models.SubscriptionPlan{}, err
	}
	if _, err := models.ParseTiming(string(timing)); err != nil {
		return models.SubscriptionPlan{}, fmt.Errorf("quote %s: %w", planName, err)
	}
	return models.SubscriptionPlan{
		PlanName:    p.Name,
		DisplayName: p.DisplayName(timing),
		Timing:      timing,
		Price:       p.PriceFor(timing),
		BaseCredits: p.BaseCredits,
	}, nil
}
