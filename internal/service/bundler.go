package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oybekdev/pos-sync/internal/models"
	"github.com/oybekdev/pos-sync/internal/units"
	"github.com/oybekdev/pos-sync/pkg/metrics"

	"github.com/google/uuid"
)

// DefaultStockBatchSize bounds how many dirty stock rows a single cycle picks
// up. Backlog beyond the ceiling drains on subsequent ticks.
const DefaultStockBatchSize = 50

// Store defines the local persistence contract consumed by the sync engine.
type Store interface {
	FindUnsyncedStocks(ctx context.Context, limit int) ([]models.ProductStock, error)
	FindUnsyncedMovements(ctx context.Context, productID string) ([]models.StockMovement, error)
	FindCompletedSales(ctx context.Context, ids []string) ([]models.Sale, error)
	FindSaleItems(ctx context.Context, saleID string) ([]models.SaleItem, error)
	MarkStockSynced(ctx context.Context, id string) error
	MarkMovementsSynced(ctx context.Context, ids []string) error
	MarkSaleSynced(ctx context.Context, saleID string) error
	InsertSyncLog(ctx context.Context, entry models.SyncLog) error
	CountUnsyncedStocks(ctx context.Context) (int64, error)
}

// Bundler assembles self-contained transfer bundles out of pending local
// changes: each dirty product_stocks row is grouped with its unsynced
// movements and, per completed sale referenced by those movements, the sale
// and its resolved lines.
type Bundler struct {
	store     Store
	batchSize int
	logger    *slog.Logger
}

func NewBundler(store Store, batchSize int, logger *slog.Logger) *Bundler {
	if batchSize <= 0 {
		batchSize = DefaultStockBatchSize
	}
	return &Bundler{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}
}

// BuildBundles scans up to batchSize dirty stock rows and emits one bundle
// per (stock, completed sale) pair, or a single sale-less bundle when no
// completed sale is linked. A stock row with no pending movements still gets
// bundled: the server decides whether a lone stock correction matters.
func (b *Bundler) BuildBundles(ctx context.Context) ([]models.Bundle, error) {
	stocks, err := b.store.FindUnsyncedStocks(ctx, b.batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsynced stocks: %w", err)
	}
	if len(stocks) == 0 {
		return nil, nil
	}

	var bundles []models.Bundle
	for _, stock := range stocks {
		movements, err := b.store.FindUnsyncedMovements(ctx, stock.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch movements for product %s: %w", stock.ProductID, err)
		}

		sales, err := b.store.FindCompletedSales(ctx, distinctSaleIDs(movements))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sales for product %s: %w", stock.ProductID, err)
		}

		if len(sales) == 0 {
			bundles = append(bundles, b.assemble(ctx, stock, movements, nil, nil))
			continue
		}

		for _, sale := range sales {
			items, err := b.store.FindSaleItems(ctx, sale.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch items for sale %s: %w", sale.ID, err)
			}
			saleMovements := movementsForSale(movements, sale.ID)
			bundles = append(bundles, b.assemble(ctx, stock, saleMovements, &sale, items))
		}
	}

	return bundles, nil
}

// assemble builds one transfer bundle. The stock snapshot is shared across
// all bundles of the same product within a cycle.
func (b *Bundler) assemble(ctx context.Context, stock models.ProductStock, movements []models.StockMovement, sale *models.Sale, items []models.SaleItem) models.Bundle {
	payload := models.BundlePayload{
		BundleID:       uuid.NewString(),
		ProductID:      stock.ProductID,
		ProductStock:   formatStock(stock),
		StockMovements: make([]models.MovementPayload, 0, len(movements)),
	}

	bundle := models.Bundle{
		StockID:     stock.ID,
		MovementIDs: make([]string, 0, len(movements)),
	}

	for _, m := range movements {
		payload.StockMovements = append(payload.StockMovements, formatMovement(m))
		bundle.MovementIDs = append(bundle.MovementIDs, m.ID)
	}

	if sale != nil {
		payload.Sale = b.formatSale(ctx, *sale, items)
		bundle.SaleID = sale.ID
	}

	bundle.Payload = payload
	return bundle
}

// formatSale resolves every line from the pack domain to base units. A line
// with corrupt packaging metadata is skipped and logged; the rest of the
// bundle proceeds.
func (b *Bundler) formatSale(ctx context.Context, sale models.Sale, items []models.SaleItem) *models.SalePayload {
	payload := &models.SalePayload{
		ID:             sale.ID,
		StoreID:        sale.StoreID,
		CashierID:      sale.CashierID,
		ClientID:       sale.ClientID,
		SaleCode:       sale.SaleCode,
		TotalAmount:    sale.TotalAmount.InexactFloat64(),
		FinalAmount:    sale.FinalAmount.InexactFloat64(),
		DiscountAmount: sale.DiscountAmount.InexactFloat64(),
		TaxAmount:      sale.TaxAmount.InexactFloat64(),
		Status:         sale.Status,
		EventType:      "sale",
		Notes:          sale.Notes,
		Metadata:       sale.Metadata,
		CreatedAt:      sale.CreatedAt.UTC().Format(time.RFC3339),
		CompletedAt:    formatTimePtr(sale.CompletedAt),
		Items:          make([]models.ItemPayload, 0, len(items)),
	}

	for _, item := range items {
		baseQty, basePrice, err := units.Resolve(item.Quantity, item.UnitPrice, item.CanSplit, item.UnitsPerPack)
		if err != nil {
			if errors.Is(err, units.ErrInvalidPackaging) {
				b.logger.Error("Skipping sale item with invalid packaging metadata",
					"sale_id", sale.ID,
					"item_id", item.ID,
					"product_id", item.ProductID,
					"units_per_pack", item.UnitsPerPack,
				)
				metrics.ConversionErrors.Inc()
				_ = b.store.InsertSyncLog(ctx, models.SyncLog{
					EntityType:   "sale_item",
					EntityID:     item.ID,
					Action:       "convert",
					Status:       "failed",
					ErrorMessage: err.Error(),
				})
				continue
			}
			// Resolve only fails on packaging defects today; anything else
			// would be a programming error worth surfacing loudly.
			b.logger.Error("Unexpected conversion failure", "item_id", item.ID, "error", err)
			continue
		}

		payload.Items = append(payload.Items, models.ItemPayload{
			ID:              item.ID,
			ProductID:       item.ProductID,
			VariantID:       item.VariantID,
			Quantity:        baseQty.IntPart(),
			UnitPrice:       basePrice.InexactFloat64(),
			TotalPrice:      item.TotalPrice.InexactFloat64(),
			DiscountAmount:  item.DiscountAmount.InexactFloat64(),
			DiscountPercent: item.DiscountPercent.InexactFloat64(),
			BatchID:         item.BatchID,
			WarehouseID:     item.WarehouseID,
		})
	}

	return payload
}

func formatStock(stock models.ProductStock) models.StockPayload {
	return models.StockPayload{
		ID:           stock.ID,
		ProductID:    stock.ProductID,
		LocationType: stock.LocationType,
		LocationID:   stock.LocationID,
		Quantity:     stock.Quantity,
		SupplyPrice:  stock.SupplyPrice.InexactFloat64(),
		RetailPrice:  stock.RetailPrice.InexactFloat64(),
		BatchID:      stock.BatchID,
		ExpiresAt:    formatTimePtr(stock.ExpiresAt),
	}
}

func formatMovement(m models.StockMovement) models.MovementPayload {
	return models.MovementPayload{
		ID:             m.ID,
		MovementID:     m.MovementID,
		ProductID:      m.ProductID,
		BatchID:        m.BatchID,
		LocationType:   m.LocationType,
		LocationID:     m.LocationID,
		Event:          m.Event,
		Direction:      m.Direction,
		QuantityBefore: m.QuantityBefore,
		QuantityChange: m.QuantityChange,
		QuantityAfter:  m.QuantityAfter,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// distinctSaleIDs derives the candidate sale identities from the movements'
// causing-event references, preserving first-seen order.
func distinctSaleIDs(movements []models.StockMovement) []string {
	seen := make(map[string]struct{}, len(movements))
	var ids []string
	for _, m := range movements {
		if m.MovementID == "" {
			continue
		}
		if _, ok := seen[m.MovementID]; ok {
			continue
		}
		seen[m.MovementID] = struct{}{}
		ids = append(ids, m.MovementID)
	}
	return ids
}

func movementsForSale(movements []models.StockMovement, saleID string) []models.StockMovement {
	var out []models.StockMovement
	for _, m := range movements {
		if m.MovementID == saleID {
			out = append(out, m)
		}
	}
	return out
}
