package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/fund-ledger/internal/config"
	"github.com/josh-kwaku/fund-ledger/internal/flow"
	"github.com/josh-kwaku/fund-ledger/internal/flowgraph"
	"github.com/josh-kwaku/fund-ledger/internal/ledger"
	"github.com/josh-kwaku/fund-ledger/internal/logging"
	"github.com/josh-kwaku/fund-ledger/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("fund-ledger", cfg.LogLevel, cfg.AppEnv, cfg.LogIncludeCaller)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}, 30)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repository.NewStore(db)
	svc := ledger.NewService(store, cfg.LockTimeout())

	// The process exits when the log cannot be replayed. A replay that finds
	// mismatched balances puts the ledger into read-only mode and startup
	// continues.
	if _, err := svc.Reconcile(ctx); err != nil {
		slog.Error("startup reconciliation failed", "error", err)
		os.Exit(1)
	}

	projection := flow.NewProjection(store)
	idempotency := repository.NewIdempotencyRepository(db)

	go cleanIdempotencyCache(ctx, idempotency, logger, time.Hour)

	if cfg.GraphURI != "" {
		graph, err := flowgraph.NewNeo4jClient(ctx, flowgraph.Options{
			URI:      cfg.GraphURI,
			Database: cfg.GraphDatabase,
			Username: cfg.GraphUsername,
			Password: cfg.GraphPassword,
		})
		if err != nil {
			slog.Error("failed to connect to flow graph", "error", err)
			os.Exit(1)
		}
		defer graph.Close(context.Background())

		publisher := flowgraph.NewPublisher(graph, projection, logger, cfg.GraphPublishInterval())
		go publisher.Start(ctx)
	}

	router := routes(cfg, store, svc, projection, idempotency)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "fund-ledger"),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

func cleanIdempotencyCache(ctx context.Context, repo expiredCleaner, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				logger.Error("failed to clean idempotency cache", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("idempotency cache cleaned", "removed", n)
			}
		}
	}
}
