package main

import (
	"net/http"

	"github.com/josh-kwaku/fund-ledger/api"
	"github.com/josh-kwaku/fund-ledger/internal/config"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
	"github.com/josh-kwaku/fund-ledger/internal/handler"
	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/middleware"
	"github.com/josh-kwaku/fund-ledger/internal/repository"
)

func routes(
	cfg *config.Config,
	store *repository.Store,
	svc *ledger.Service,
	projection *flow.Projection,
	idempotency *repository.IdempotencyRepository,
) http.Handler {
	accounts := handler.NewAccountHandler(svc)
	transfers := handler.NewTransferHandler(svc)
	flows := handler.NewFlowHandler(projection)
	recon := handler.NewReconcileHandler(svc)
	health := handler.NewHealthHandler(store, svc)

	authed := middleware.Auth(cfg.JWTSecret)
	once := middleware.Idempotency(idempotency, cfg.IdempotencyTTL())

	protect := func(h http.HandlerFunc) http.Handler {
		return authed(h)
	}
	protectOnce := func(h http.HandlerFunc) http.Handler {
		return authed(once(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.OpenAPI))

	mux.Handle("POST /accounts", protect(accounts.Create))
	mux.Handle("GET /accounts", protect(accounts.List))
	mux.Handle("GET /accounts/{role}", protect(accounts.Get))
	mux.Handle("GET /accounts/{role}/{subIdentity}", protect(accounts.Get))
	mux.Handle("DELETE /accounts/{role}", protect(accounts.Deactivate))
	mux.Handle("DELETE /accounts/{role}/{subIdentity}", protect(accounts.Deactivate))

	mux.Handle("POST /transfers", protectOnce(transfers.Create))
	mux.Handle("GET /transfers", protect(transfers.List))
	mux.Handle("GET /transfers/{id}", protect(transfers.Get))
	mux.Handle("POST /transfers/{id}/reversal", protectOnce(transfers.Reverse))

	mux.Handle("GET /flow-summary", protect(flows.Summary))
	mux.Handle("POST /reconcile", protect(recon.Reconcile))

	return middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))
}
