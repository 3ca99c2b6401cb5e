// Package dashboard serves the subscriber API: balances, checkout,
// the delivery forecast and the pause calendar.
package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/handlers"
	"github.com/tiffinbox/backend/internal/middleware"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/scheduler"
	"github.com/tiffinbox/backend/internal/services"
)

type Ledger interface {
	GetLedger(ctx context.Context, accountID uuid.UUID) (models.LedgerRecord, error)
	Entries(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditEntry, error)
	SetAutoOrder(ctx context.Context, accountID uuid.UUID, enabled bool) (models.LedgerRecord, error)
}

type Wallet interface {
	TopUp(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error)
	Checkout(ctx context.Context, accountID uuid.UUID, cart models.Cart) (*services.Receipt, error)
}

type CartDecoder interface {
	Decode(ctx context.Context, raw json.RawMessage) (models.Cart, error)
}

type Forecaster interface {
	Today() time.Time
	ComputeProjection(ctx context.Context, accountID uuid.UUID, today time.Time, horizonDays, dailyCost int) ([]models.ProjectionEntry, error)
	MonthView(ctx context.Context, accountID uuid.UUID, year int, month time.Month) ([]models.DayView, error)
}

type PauseToggler interface {
	Toggle(ctx context.Context, accountID uuid.UUID, date time.Time) (bool, error)
}

type PlanLister interface {
	ListPlans(ctx context.Context) ([]catalog.PlanOffer, error)
}

type Handler struct {
	ledger   Ledger
	wallet   Wallet
	carts    CartDecoder
	forecast Forecaster
	pauses   PauseToggler
	plans    PlanLister
	log      *slog.Logger
}

func NewHandler(
	ledger Ledger,
	wallet Wallet,
	carts CartDecoder,
	forecast Forecaster,
	pauses PauseToggler,
	plans PlanLister,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ledger:   ledger,
		wallet:   wallet,
		carts:    carts,
		forecast: forecast,
		pauses:   pauses,
		plans:    plans,
		log:      log,
	}
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.AccountIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}
	return id, ok
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// GET /api/v1/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	rec, err := h.ledger.GetLedger(r.Context(), accountID)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	today := h.forecast.Today()
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"ledger":            rec,
		"available_credits": rec.AvailableCredits(today),
		"credits_expired":   rec.CreditsExpired(today),
	})
}

// GET /api/v1/ledger/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 || limit > 1000 {
		http.Error(w, `{"error":"limit must be between 1 and 1000"}`, http.StatusBadRequest)
		return
	}
	entries, err := h.ledger.Entries(r.Context(), accountID, limit)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// POST /api/v1/wallet/topup
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	balance, err := h.wallet.TopUp(r.Context(), accountID, body.Amount)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]int64{"wallet_balance": balance})
}

// POST /api/v1/checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, `{"error":"unreadable body"}`, http.StatusBadRequest)
		return
	}
	cart, err := h.carts.Decode(r.Context(), raw)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	receipt, err := h.wallet.Checkout(r.Context(), accountID, cart)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	status := http.StatusOK
	if receipt.Pending {
		status = http.StatusAccepted
	}
	handlers.WriteJSON(w, status, receipt)
}

// GET /api/v1/projection?horizon_days=&daily_cost=
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	horizon, err := queryInt(r, "horizon_days", 0)
	if err != nil {
		http.Error(w, `{"error":"horizon_days must be an integer"}`, http.StatusBadRequest)
		return
	}
	cost, err := queryInt(r, "daily_cost", 0)
	if err != nil {
		http.Error(w, `{"error":"daily_cost must be an integer"}`, http.StatusBadRequest)
		return
	}
	today := h.forecast.Today()
	entries, err := h.forecast.ComputeProjection(r.Context(), accountID, today, horizon, cost)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"today":     calendar.Format(today),
		"scheduled": scheduler.ScheduledCount(entries),
		"entries":   entries,
	})
}

// GET /api/v1/calendar?year=&month=
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	today := h.forecast.Today()
	year, err := queryInt(r, "year", today.Year())
	if err != nil {
		http.Error(w, `{"error":"year must be an integer"}`, http.StatusBadRequest)
		return
	}
	month, err := queryInt(r, "month", int(today.Month()))
	if err != nil {
		http.Error(w, `{"error":"month must be an integer"}`, http.StatusBadRequest)
		return
	}
	days, err := h.forecast.MonthView(r.Context(), accountID, year, time.Month(month))
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "days": days})
}

// POST /api/v1/pauses/{date}
func (h *Handler) TogglePause(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	date, err := calendar.Parse(r.PathValue("date"))
	if err != nil {
		http.Error(w, `{"error":"date must be YYYY-MM-DD"}`, http.StatusBadRequest)
		return
	}
	paused, err := h.pauses.Toggle(r.Context(), accountID, date)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"date": calendar.Format(date), "paused": paused})
}

// PUT /api/v1/auto-order
func (h *Handler) SetAutoOrder(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		http.Error(w, `{"error":"enabled is required"}`, http.StatusBadRequest)
		return
	}
	rec, err := h.ledger.SetAutoOrder(r.Context(), accountID, *body.Enabled)
	if err != nil {
		handlers.WriteLedgerError(w, h.log, accountID, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, rec)
}

// GET /api/v1/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context())
	if err != nil {
		h.log.Error("list plans failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []catalog.PlanOffer{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"plans": plans})
}
