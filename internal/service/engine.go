package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oybekdev/pos-sync/internal/models"
	"github.com/oybekdev/pos-sync/pkg/metrics"
)

// Transport defines the remote-authority boundary. PushBundles blocks until a
// structured verdict or an error; retry/backoff policy lives behind this
// interface, not in the engine.
type Transport interface {
	PushBundles(ctx context.Context, bundles []models.BundlePayload) (*models.SyncResult, error)
	IsHealthy() bool
}

// Phase identifies where a sync cycle ended up.
type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseSkipped   Phase = "skipped"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// CycleEvent is emitted to the registered observer at cycle boundaries.
// Consumers (status indicators, dashboards) must not block in the callback.
type CycleEvent struct {
	Phase    Phase
	Bundles  int
	Accepted int
	Rejected int
	Err      error
}

// Engine owns the sync run-loop: a fixed-interval ticker with an immediate
// first run, a manual trigger, a connectivity gate, and a single-flight guard
// so overlapping triggers are dropped rather than queued.
type Engine struct {
	bundler    *Bundler
	reconciler *Reconciler
	store      Store
	transport  Transport
	interval   time.Duration
	logger     *slog.Logger

	syncing atomic.Bool
	trigger chan struct{}
	notify  func(CycleEvent)
}

func NewEngine(store Store, transport Transport, bundler *Bundler, reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		bundler:    bundler,
		reconciler: reconciler,
		store:      store,
		transport:  transport,
		interval:   interval,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
	}
}

// OnCycle registers the cycle observer. Call before Run.
func (e *Engine) OnCycle(fn func(CycleEvent)) {
	e.notify = fn
}

// Run starts the scheduler loop and blocks until ctx is canceled. A cycle
// already in flight completes cooperatively; no new cycle starts afterwards.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Sync engine started", "interval", e.interval)

	// Immediate first run so a terminal that was offline overnight drains
	// its backlog right after boot instead of waiting a full interval.
	e.SyncNow(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Sync engine shutting down...")
			return
		case <-ticker.C:
			e.SyncNow(ctx)
		case <-e.trigger:
			e.SyncNow(ctx)
		}
	}
}

// TriggerNow requests an out-of-band cycle from the run loop. Non-blocking;
// collapses with any trigger already pending.
func (e *Engine) TriggerNow() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SyncNow executes one cycle synchronously, guarded by the single-flight
// flag: a call arriving while another cycle is in progress returns
// immediately without doing anything.
func (e *Engine) SyncNow(ctx context.Context) {
	if !e.syncing.CompareAndSwap(false, true) {
		e.logger.Debug("Sync already in progress, dropping trigger")
		return
	}
	defer e.syncing.Store(false)

	if !e.transport.IsHealthy() {
		e.logger.Info("Offline: skipping sync cycle")
		metrics.ConnectivityStatus.Set(0)
		e.emit(CycleEvent{Phase: PhaseSkipped})
		return
	}
	metrics.ConnectivityStatus.Set(1)

	start := time.Now()
	e.emit(CycleEvent{Phase: PhaseStarted})

	sent, stats, err := e.runCycle(ctx)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	e.observeBacklog(ctx)

	if err != nil {
		e.logger.Error("Sync cycle failed", "error", err)
		e.emit(CycleEvent{Phase: PhaseFailed, Bundles: sent, Err: err})
		return
	}

	if sent > 0 {
		e.logger.Info("Sync cycle completed",
			"bundles", sent,
			"accepted", stats.Accepted,
			"rejected", stats.Rejected,
			"sales_synced", stats.SalesSynced,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	e.emit(CycleEvent{
		Phase:    PhaseCompleted,
		Bundles:  sent,
		Accepted: stats.Accepted,
		Rejected: stats.Rejected,
	})
}

// runCycle builds bundles, pushes them, and applies the verdict. Returns the
// number of bundles sent. A transport error leaves every row dirty; that is
// indistinguishable from the cycle never having run.
func (e *Engine) runCycle(ctx context.Context) (int, ReconcileStats, error) {
	var stats ReconcileStats

	bundles, err := e.bundler.BuildBundles(ctx)
	if err != nil {
		return 0, stats, fmt.Errorf("bundle build failed: %w", err)
	}
	if len(bundles) == 0 {
		e.logger.Debug("No pending changes, skipping network call")
		return 0, stats, nil
	}

	metrics.BundleBatchSize.Observe(float64(len(bundles)))

	payloads := make([]models.BundlePayload, len(bundles))
	for i, b := range bundles {
		payloads[i] = b.Payload
	}

	result, err := e.transport.PushBundles(ctx, payloads)
	if err != nil {
		e.reconciler.LogTransportFailure(ctx, err)
		return len(bundles), stats, fmt.Errorf("transport failure: %w", err)
	}

	stats = e.reconciler.Apply(ctx, bundles, result)
	return len(bundles), stats, nil
}

func (e *Engine) observeBacklog(ctx context.Context) {
	count, err := e.store.CountUnsyncedStocks(ctx)
	if err != nil {
		e.logger.Debug("Failed to read sync backlog", "error", err)
		return
	}
	metrics.SyncBacklog.Set(float64(count))
}

func (e *Engine) emit(event CycleEvent) {
	if e.notify != nil {
		e.notify(event)
	}
}
