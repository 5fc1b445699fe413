package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type readOnlyReporter interface {
	ReadOnly() bool
}

type HealthHandler struct {
	store  pinger
	ledger readOnlyReporter
}

func NewHealthHandler(store pinger, ledger readOnlyReporter) *HealthHandler {
	return &HealthHandler{store: store, ledger: ledger}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness fails only when the store is unreachable. A read-only ledger still
// serves reads, so it is reported but stays ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	ledgerStatus := "ok"
	if h.ledger.ReadOnly() {
		ledgerStatus = "read_only"
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
			"ledger":   ledgerStatus,
		},
	})
}
