package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/pause"
	"github.com/tiffinbox/backend/internal/scheduler"
	"github.com/tiffinbox/backend/internal/services"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteLedgerError maps ledger and checkout errors to HTTP responses. It is
// the only place those errors are translated to status codes.
func WriteLedgerError(w http.ResponseWriter, log *slog.Logger, accountID uuid.UUID, err error) {
	if log == nil {
		log = slog.Default()
	}
	var insufficient *services.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		WriteJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":   "insufficient funds",
			"deficit": insufficient.Deficit,
		})
	case errors.Is(err, ledger.ErrInsufficientFunds):
		WriteJSON(w, http.StatusPaymentRequired, map[string]string{"error": "insufficient funds"})
	case errors.Is(err, ledger.ErrCreditsExhausted):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": "credits exhausted"})
	case errors.Is(err, ledger.ErrDuplicateReference):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": "reference already applied"})
	case errors.Is(err, ledger.ErrAccountNotFound):
		log.Error("account not found", "account_id", accountID)
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, catalog.ErrPlanNotFound):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidCart):
		WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, scheduler.ErrInvalidHorizon),
		errors.Is(err, scheduler.ErrInvalidCost),
		errors.Is(err, scheduler.ErrInvalidMonth),
		errors.Is(err, pause.ErrInvalidPauseDate):
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Error("request failed", "account_id", accountID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
