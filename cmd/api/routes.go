package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tiffinbox/backend/internal/catalog"
	"github.com/tiffinbox/backend/internal/handlers"
	"github.com/tiffinbox/backend/internal/ledger"
	"github.com/tiffinbox/backend/internal/middleware"
	"github.com/tiffinbox/backend/internal/models"
	"github.com/tiffinbox/backend/internal/orders"
	"github.com/tiffinbox/backend/internal/repository"
	"github.com/tiffinbox/backend/internal/services"
)

// RegisterInternalRoutes adds the /internal/v1 endpoints used by kitchen,
// rider and back office systems. Middleware chain: APIKeyAuth(scope) -> handler.
func RegisterInternalRoutes(
	mux *http.ServeMux,
	apiKeyRepo *repository.APIKeyRepo,
	ledgerSvc ledger.Service,
	activator *services.ActivationService,
	plans catalog.Service,
	ordersHandler *orders.Handler,
	loc *time.Location,
	logger *slog.Logger,
) {
	lh := &handlers.LedgerHandler{
		Ledger:    ledgerSvc,
		Activator: activator,
		Plans:     plans,
		Location:  loc,
		Logger:    logger,
	}

	fulfillment := middleware.APIKeyAuth(apiKeyRepo, models.APIKeyScopeFulfillment)
	admin := middleware.APIKeyAuth(apiKeyRepo, models.APIKeyScopeAdmin)

	// Riders and the kitchen read balances, consume credits and move orders.
	mux.Handle("GET /internal/v1/accounts/{id}/ledger", fulfillment(http.HandlerFunc(lh.GetLedger)))
	mux.Handle("POST /internal/v1/accounts/{id}/consume", fulfillment(http.HandlerFunc(lh.Consume)))
	mux.Handle("PATCH /internal/v1/orders/{id}/status", fulfillment(http.HandlerFunc(ordersHandler.Transition)))

	// Money and plan corrections are back office only.
	mux.Handle("POST /internal/v1/accounts/{id}/grant", admin(http.HandlerFunc(lh.Grant)))
	mux.Handle("POST /internal/v1/accounts/{id}/activate", admin(http.HandlerFunc(lh.Activate)))
	mux.Handle("POST /internal/v1/accounts/{id}/wallet/debit", admin(http.HandlerFunc(lh.Debit)))
	mux.Handle("POST /internal/v1/accounts/{id}/wallet/credit", admin(http.HandlerFunc(lh.Credit)))
}
