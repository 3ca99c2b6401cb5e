package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/clock"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/models"
)

// LedgerOps is the subset of the ledger service the internal API drives.
type LedgerOps interface {
	GetLedger(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	GrantCredits(ctx context.Context, accountID uuid.UUID, amount int64, newExpiry time.Time, opts ...ledger.MutationOption) (models.LedgerRecord, error)
	ConsumeCredits(ctx context.Context, accountID uuid.UUID, count int64, asOf time.Time, opts ...ledger.MutationOption) (models.LedgerRecord, error)
	CreditWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...ledger.MutationOption) (int64, error)
	DebitWallet(ctx context.Context, accountID uuid.UUID, amount int64, opts ...ledger.MutationOption) (int64, error)
}

type PlanActivator interface {
	Activate(ctx context.Context, accountID uuid.UUID, plan models.SubscriptionPlan, opts ...ledger.MutationOption) (int64, error)
}

type PlanQuoter interface {
	Quote(ctx context.Context, planName string, timing models.Timing) (models.SubscriptionPlan, error)
}

// LedgerHandler serves /internal/v1/accounts endpoints for fulfillment and
// back office callers.
type LedgerHandler struct {
	Ledger    LedgerOps
	Activator PlanActivator
	Plans     PlanQuoter
	Clock     clock.Clock
	Location  *time.Location
	Logger    *slog.Logger
}

func (h *LedgerHandler) today() time.Time {
	clk, loc := h.Clock, h.Location
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.UTC
	}
	return calendar.Today(clk.Now(), loc)
}

func (h *LedgerHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func accountFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid account id"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// referenceOpts turns an optional reference id into a mutation option.
func referenceOpts(ref *uuid.UUID) []ledger.MutationOption {
	if ref == nil {
		return nil
	}
	return []ledger.MutationOption{ledger.WithReference(*ref)}
}

// --- GET /internal/v1/accounts/{id}/ledger ---

func (h *LedgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	rec, err := h.Ledger.GetLedger(r.Context(), id)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// --- POST /internal/v1/accounts/{id}/grant ---

type grantRequest struct {
	Amount      int64      `json:"amount"`
	Expiry      string     `json:"expiry"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
}

func (h *LedgerHandler) Grant(w http.ResponseWriter, r *http.Request) {
	id, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	expiry, err := calendar.Parse(req.Expiry)
	if err != nil {
		http.Error(w, `{"error":"expiry must be YYYY-MM-DD"}`, http.StatusBadRequest)
		return
	}
	rec, err := h.Ledger.GrantCredits(r.Context(), id, req.Amount, expiry, referenceOpts(req.ReferenceID)...)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// --- POST /internal/v1/accounts/{id}/consume ---

type consumeRequest struct {
	Count       int64      `json:"count"`
	AsOf        string     `json:"as_of,omitempty"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
}

func (h *LedgerHandler) Consume(w http.ResponseWriter, r *http.Request) {
	id, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	asOf := h.today()
	if req.AsOf != "" {
		d, err := calendar.Parse(req.AsOf)
		if err != nil {
			http.Error(w, `{"error":"as_of must be YYYY-MM-DD"}`, http.StatusBadRequest)
			return
		}
		asOf = d
	}
	rec, err := h.Ledger.ConsumeCredits(r.Context(), id, req.Count, asOf, referenceOpts(req.ReferenceID)...)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// --- POST /internal/v1/accounts/{id}/wallet/{debit,credit} ---

type walletRequest struct {
	Amount      int64      `json:"amount"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
}

type walletResponse struct {
	WalletBalance int64 `json:"wallet_balance"`
}

func (h *LedgerHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.wallet(w, r, h.Ledger.DebitWallet)
}

func (h *LedgerHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.wallet(w, r, h.Ledger.CreditWallet)
}

func (h *LedgerHandler) wallet(w http.ResponseWriter, r *http.Request,
	op func(context.Context, uuid.UUID, int64, ...ledger.MutationOption) (int64, error)) {
	id, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	balance, err := op(r.Context(), id, req.Amount, referenceOpts(req.ReferenceID)...)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	WriteJSON(w, http.StatusOK, walletResponse{WalletBalance: balance})
}

// --- POST /internal/v1/accounts/{id}/activate ---

type activateRequest struct {
	PlanName    string     `json:"plan_name"`
	Timing      string     `json:"timing"`
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`
}

type activateResponse struct {
	Plan    models.SubscriptionPlan `json:"plan"`
	Credits int64                   `json:"credits"`
}

// Activate grants a plan without charging the wallet, for back office
// corrections and promotions.
func (h *LedgerHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := accountFromPath(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	timing, err := models.ParseTiming(req.Timing)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	plan, err := h.Plans.Quote(r.Context(), req.PlanName, timing)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	credits, err := h.Activator.Activate(r.Context(), id, plan, referenceOpts(req.ReferenceID)...)
	if err != nil {
		WriteLedgerError(w, h.logger(), id, err)
		return
	}
	h.logger().Info("plan activated by operator", "account_id", id, "plan", plan.DisplayName)
	WriteJSON(w, http.StatusOK, activateResponse{Plan: plan, Credits: credits})
}
