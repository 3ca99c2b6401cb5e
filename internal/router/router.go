package router

import (
	"net/http"

	"github.com/tiffinbox/backend/internal/dashboard"
	"github.com/tiffinbox/backend/internal/orders"
)

// New returns an http.Handler that serves the subscriber API under /api/v1.
// Every route runs behind auth, which must leave the account id in the
// request context.
func New(auth func(http.Handler) http.Handler, dashHandler *dashboard.Handler, ordersHandler *orders.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("GET "+base+"/ledger", dashHandler.GetLedger)
	mux.HandleFunc("GET "+base+"/ledger/entries", dashHandler.ListEntries)
	mux.HandleFunc("POST "+base+"/wallet/topup", dashHandler.TopUp)
	mux.HandleFunc("POST "+base+"/checkout", dashHandler.Checkout)
	mux.HandleFunc("GET "+base+"/projection", dashHandler.GetProjection)
	mux.HandleFunc("GET "+base+"/calendar", dashHandler.GetCalendar)
	mux.HandleFunc("POST "+base+"/pauses/{date}", dashHandler.TogglePause)
	mux.HandleFunc("PUT "+base+"/auto-order", dashHandler.SetAutoOrder)
	mux.HandleFunc("GET "+base+"/plans", dashHandler.ListPlans)
	mux.HandleFunc("GET "+base+"/orders", ordersHandler.ListMine)

	return auth(mux)
}
