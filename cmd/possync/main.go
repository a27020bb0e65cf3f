package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oybekdev/pos-sync/internal/api"
	"github.com/oybekdev/pos-sync/internal/config"
	"github.com/oybekdev/pos-sync/internal/db"
	"github.com/oybekdev/pos-sync/internal/service"
	"github.com/oybekdev/pos-sync/pkg/infra"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := connectStore(ctx, cfg, logger)
	if store == nil {
		return // canceled while waiting for the database
	}
	defer store.Close()

	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.HealthProbeInterval, logger)
	bundler := service.NewBundler(store, cfg.BatchSize, logger)
	reconciler := service.NewReconciler(store, logger)
	engine := service.NewEngine(store, client, bundler, reconciler, cfg.SyncInterval, logger)

	engine.OnCycle(func(ev service.CycleEvent) {
		// Hook point for a status indicator; the engine itself surfaces
		// only aggregate counts.
		if ev.Phase == service.PhaseFailed {
			slog.Warn("Sync cycle ended with failure", "error", ev.Err)
		}
	})

	go serveMetrics(cfg.MetricsAddr, logger)

	slog.Info("🚀 POS sync service started", "pid", os.Getpid(), "interval", cfg.SyncInterval)

	engine.Run(ctx)
	slog.Info("✅ Shutdown complete")
}

// connectStore retries the local database with jittered backoff. The terminal
// may boot faster than its bundled Postgres instance.
func connectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) *db.PostgresStore {
	backoff := infra.NewBackoff(1*time.Second, 30*time.Second, 2.0)

	for {
		store, err := db.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err == nil {
			return store
		}

		wait := backoff.Next()
		slog.Error("Local database unavailable, retrying", "wait", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics endpoint failed", "addr", addr, "error", err)
	}
}
