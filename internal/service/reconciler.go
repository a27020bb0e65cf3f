package service

import (
	"context"
	"log/slog"

	"github.com/oybekdev/pos-sync/internal/models"
	"github.com/oybekdev/pos-sync/pkg/metrics"
)

// Reconciler applies the remote authority's per-bundle verdict back onto
// local rows: accepted bundles are flagged synced, rejected ones are logged
// and left dirty so the next cycle retries them with no extra bookkeeping.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// ReconcileStats summarizes one cycle's verdict application.
type ReconcileStats struct {
	Accepted    int
	Rejected    int
	SalesSynced int
}

// Apply walks the server verdict exactly once per bundle. All writes are
// idempotent single-row flips, so re-applying the same accepted set is a
// no-op. Individual write failures are logged and skipped: the affected rows
// simply stay dirty and retry on the next tick.
func (r *Reconciler) Apply(ctx context.Context, bundles []models.Bundle, result *models.SyncResult) ReconcileStats {
	var stats ReconcileStats

	accepted := make(map[string]bool, len(result.Success))
	for _, id := range result.Success {
		accepted[id] = true
	}

	// A sale may be split across several bundles (one per product with
	// pending movements). It is only safe to flag the sale synced once every
	// bundle referencing it this cycle was accepted; a partially-failed sale
	// stays dirty alongside its failed bundle.
	saleBundles := make(map[string]int)
	saleAccepted := make(map[string]int)
	for _, b := range bundles {
		if b.SaleID == "" {
			continue
		}
		saleBundles[b.SaleID]++
		if accepted[b.Payload.BundleID] {
			saleAccepted[b.SaleID]++
		}
	}

	saleDone := make(map[string]bool)
	for _, b := range bundles {
		if !accepted[b.Payload.BundleID] {
			continue
		}
		stats.Accepted++
		metrics.BundlesProcessed.WithLabelValues("accepted").Inc()

		if err := r.store.MarkStockSynced(ctx, b.StockID); err != nil {
			r.logger.Error("Failed to mark stock synced", "stock_id", b.StockID, "error", err)
		}
		if err := r.store.MarkMovementsSynced(ctx, b.MovementIDs); err != nil {
			r.logger.Error("Failed to mark movements synced", "stock_id", b.StockID, "error", err)
		}

		if b.SaleID == "" || saleDone[b.SaleID] {
			continue
		}
		if saleAccepted[b.SaleID] < saleBundles[b.SaleID] {
			r.logger.Warn("Sale partially accepted, leaving it dirty for retry",
				"sale_id", b.SaleID,
				"accepted", saleAccepted[b.SaleID],
				"bundles", saleBundles[b.SaleID],
			)
			continue
		}
		if err := r.store.MarkSaleSynced(ctx, b.SaleID); err != nil {
			r.logger.Error("Failed to mark sale synced", "sale_id", b.SaleID, "error", err)
			continue
		}
		saleDone[b.SaleID] = true
		stats.SalesSynced++
	}

	for _, failure := range result.Failed {
		stats.Rejected++
		metrics.BundlesProcessed.WithLabelValues("rejected").Inc()

		entityID := failure.BundleID
		if entityID == "" {
			entityID = failure.ProductID
		}
		r.logger.Warn("Bundle rejected by server", "bundle_id", failure.BundleID, "product_id", failure.ProductID, "error", failure.Error)

		err := r.store.InsertSyncLog(ctx, models.SyncLog{
			EntityType:   "product_stock_bundle",
			EntityID:     entityID,
			Action:       "sync",
			Status:       "failed",
			ErrorMessage: failure.Error,
		})
		if err != nil {
			r.logger.Error("Failed to record sync failure", "entity_id", entityID, "error", err)
		}
	}

	return stats
}

// LogTransportFailure records a whole-cycle transport error. No local state
// was mutated, so the next tick retries everything.
func (r *Reconciler) LogTransportFailure(ctx context.Context, cause error) {
	err := r.store.InsertSyncLog(ctx, models.SyncLog{
		EntityType:   "sync_all",
		EntityID:     "batch",
		Action:       "sync",
		Status:       "failed",
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		r.logger.Error("Failed to record transport failure", "error", err)
	}
}
