package main

import (
	"encoding/json"
	"net/http"

	"trading-agent-ledger/internal/dashboard"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log       *zap.Logger
	dashboard *dashboard.Service
	accountID string
}

// NewAPIHandler creates a new APIHandler serving accountID by default.
func NewAPIHandler(log *zap.Logger, svc *dashboard.Service, accountID string) *APIHandler {
	return &APIHandler{log: log.Named("ui"), dashboard: svc, accountID: accountID}
}

// Routes registers the dashboard endpoints.
func (h *APIHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dashboard", h.DashboardHandler)
	mux.HandleFunc("GET /api/trades", h.TradesHandler)
	mux.HandleFunc("GET /api/trades/{id}", h.TradeDetailHandler)
	mux.HandleFunc("GET /api/positions", h.PositionsHandler)
	mux.HandleFunc("GET /api/statistics", h.StatisticsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// account returns the account named in the query, or the configured one.
func (h *APIHandler) account(r *http.Request) string {
	if id := r.URL.Query().Get("accountId"); id != "" {
		return id
	}
	return h.accountID
}

// DashboardHandler returns the portfolio summary, chart and recent trades.
func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dashboard.BuildDashboard(r.Context(), h.account(r)))
}

// TradesHandler returns the most recent trades with live P&L.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dashboard.Trades(r.Context(), h.account(r)))
}

// TradeDetailHandler returns one trade and the reasoning recorded after it.
func (h *APIHandler) TradeDetailHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := h.dashboard.GetTradeDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "Trade not found"})
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// PositionsHandler returns the open positions valued at live prices.
func (h *APIHandler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dashboard.OpenPositions(r.Context(), h.account(r)))
}

// StatisticsHandler returns realized P&L statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dashboard.Stats(r.Context(), h.account(r)))
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
