package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oybekdev/pos-sync/internal/models"

	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dirtyStock(id, productID string, quantity int64) models.ProductStock {
	return models.ProductStock{
		ID:           id,
		ProductID:    productID,
		LocationType: "store",
		LocationID:   "STORE-1",
		Quantity:     quantity,
		SupplyPrice:  decimal.NewFromInt(800),
		RetailPrice:  decimal.NewFromInt(1000),
		BatchID:      "default",
	}
}

func saleMovement(id, productID, saleID string, before, change int64) models.StockMovement {
	return models.StockMovement{
		ID:             id,
		ProductID:      productID,
		BatchID:        "default",
		MovementID:     saleID,
		LocationType:   "store",
		LocationID:     "STORE-1",
		Event:          "sale",
		Direction:      "out",
		QuantityBefore: before,
		QuantityChange: change,
		QuantityAfter:  before + change,
		Status:         "completed",
		CreatedAt:      time.Now(),
	}
}

func completedSale(id string) models.Sale {
	now := time.Now()
	return models.Sale{
		ID:          id,
		StoreID:     "STORE-1",
		CashierID:   "CASHIER-1",
		SaleCode:    "S-" + id,
		TotalAmount: decimal.NewFromInt(15000),
		FinalAmount: decimal.NewFromInt(15000),
		Status:      models.SaleStatusCompleted,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

// One bundle per completed sale, and the union of their movements must cover
// every pending movement exactly once.
func TestBundler_OneBundlePerSale(t *testing.T) {
	store := newFakeStore()
	store.stocks = []models.ProductStock{dirtyStock("STK-1", "PRD-1", 80)}
	store.movements = []models.StockMovement{
		saleMovement("MOV-1", "PRD-1", "SALE-A", 100, -5),
		saleMovement("MOV-2", "PRD-1", "SALE-A", 95, -5),
		saleMovement("MOV-3", "PRD-1", "SALE-B", 90, -6),
		saleMovement("MOV-4", "PRD-1", "SALE-B", 84, -4),
	}
	store.sales["SALE-A"] = completedSale("SALE-A")
	store.sales["SALE-B"] = completedSale("SALE-B")

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}

	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles (one per sale), got %d", len(bundles))
	}

	seen := make(map[string]int)
	for _, b := range bundles {
		if b.SaleID == "" || b.Payload.Sale == nil {
			t.Fatalf("bundle %s is missing its sale", b.Payload.BundleID)
		}
		if b.StockID != "STK-1" {
			t.Errorf("bundle %s references wrong stock %s", b.Payload.BundleID, b.StockID)
		}
		for _, mov := range b.Payload.StockMovements {
			if mov.MovementID != b.SaleID {
				t.Errorf("bundle for sale %s contains foreign movement %s", b.SaleID, mov.ID)
			}
			seen[mov.ID]++
		}
	}

	for _, id := range []string{"MOV-1", "MOV-2", "MOV-3", "MOV-4"} {
		if seen[id] != 1 {
			t.Errorf("movement %s appeared %d times across bundles, expected exactly once", id, seen[id])
		}
	}
}

// A dirty stock row with pending movements but no matching completed sale
// yields a single sale-less bundle carrying all movements.
func TestBundler_ZeroSaleFallback(t *testing.T) {
	store := newFakeStore()
	store.stocks = []models.ProductStock{dirtyStock("STK-1", "PRD-1", 120)}
	restock := saleMovement("MOV-1", "PRD-1", "", 100, 20)
	restock.Event = "restock"
	restock.Direction = "in"
	draftLinked := saleMovement("MOV-2", "PRD-1", "SALE-DRAFT", 120, -2)
	store.movements = []models.StockMovement{restock, draftLinked}

	draft := completedSale("SALE-DRAFT")
	draft.Status = models.SaleStatusDraft
	store.sales["SALE-DRAFT"] = draft

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}

	if len(bundles) != 1 {
		t.Fatalf("expected 1 fallback bundle, got %d", len(bundles))
	}
	b := bundles[0]
	if b.Payload.Sale != nil || b.SaleID != "" {
		t.Error("fallback bundle must not carry a sale")
	}
	if len(b.Payload.StockMovements) != 2 {
		t.Errorf("expected all 2 pending movements attached, got %d", len(b.Payload.StockMovements))
	}
}

// A lone dirty stock row with nothing else pending still gets bundled; the
// server is the source of truth for whether the correction matters.
func TestBundler_EmptyMovementsStillBundled(t *testing.T) {
	store := newFakeStore()
	store.stocks = []models.ProductStock{dirtyStock("STK-1", "PRD-1", 42)}

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}

	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	if len(bundles[0].Payload.StockMovements) != 0 || bundles[0].Payload.Sale != nil {
		t.Error("expected an empty-movements, sale-less bundle")
	}
	if bundles[0].Payload.ProductStock.Quantity != 42 {
		t.Errorf("stock snapshot quantity: expected 42, got %d", bundles[0].Payload.ProductStock.Quantity)
	}
}

func TestBundler_ResolvesItemsToBaseUnits(t *testing.T) {
	store := newFakeStore()
	store.stocks = []models.ProductStock{dirtyStock("STK-1", "PRD-1", 85)}
	store.movements = []models.StockMovement{saleMovement("MOV-1", "PRD-1", "SALE-1", 100, -15)}
	store.sales["SALE-1"] = completedSale("SALE-1")
	store.items["SALE-1"] = []models.SaleItem{
		{
			ID:           "ITEM-1",
			SaleID:       "SALE-1",
			ProductID:    "PRD-1",
			Quantity:     decimal.RequireFromString("1.5"),
			UnitPrice:    decimal.NewFromInt(10000),
			TotalPrice:   decimal.NewFromInt(15000),
			CanSplit:     true,
			UnitsPerPack: 10,
		},
		{
			ID:           "ITEM-2",
			SaleID:       "SALE-1",
			ProductID:    "PRD-2",
			Quantity:     decimal.NewFromInt(2),
			UnitPrice:    decimal.NewFromInt(3000),
			TotalPrice:   decimal.NewFromInt(6000),
			CanSplit:     false,
			UnitsPerPack: 12,
		},
	}

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}

	items := bundles[0].Payload.Sale.Items
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if items[0].Quantity != 15 {
		t.Errorf("splittable item quantity: expected 15 base units, got %d", items[0].Quantity)
	}
	if items[0].UnitPrice != 1000 {
		t.Errorf("splittable item price: expected 1000 per unit, got %v", items[0].UnitPrice)
	}

	if items[1].Quantity != 2 || items[1].UnitPrice != 3000 {
		t.Errorf("non-splittable item must pass through, got qty=%d price=%v", items[1].Quantity, items[1].UnitPrice)
	}
}

// Corrupt packaging metadata is a data-integrity defect: the line is skipped
// and logged, the rest of the bundle survives.
func TestBundler_InvalidPackagingSkipsLine(t *testing.T) {
	store := newFakeStore()
	store.stocks = []models.ProductStock{dirtyStock("STK-1", "PRD-1", 10)}
	store.movements = []models.StockMovement{saleMovement("MOV-1", "PRD-1", "SALE-1", 12, -2)}
	store.sales["SALE-1"] = completedSale("SALE-1")
	store.items["SALE-1"] = []models.SaleItem{
		{ID: "BAD", SaleID: "SALE-1", ProductID: "PRD-1", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100), CanSplit: true, UnitsPerPack: 0},
		{ID: "GOOD", SaleID: "SALE-1", ProductID: "PRD-2", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(200), CanSplit: false, UnitsPerPack: 1},
	}

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}

	items := bundles[0].Payload.Sale.Items
	if len(items) != 1 || items[0].ID != "GOOD" {
		t.Fatalf("expected only the valid item to survive, got %+v", items)
	}

	if store.logCount() != 1 {
		t.Fatalf("expected 1 sync log entry, got %d", store.logCount())
	}
	entry := store.logs[0]
	if entry.EntityType != "sale_item" || entry.EntityID != "BAD" || entry.Status != "failed" {
		t.Errorf("unexpected log entry: %+v", entry)
	}
}

func TestBundler_RespectsBatchCeiling(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 60; i++ {
		store.stocks = append(store.stocks, dirtyStock(
			fmt.Sprintf("STK-%02d", i),
			fmt.Sprintf("PRD-%02d", i),
			int64(i),
		))
	}

	bundler := NewBundler(store, 50, testLogger())
	bundles, err := bundler.BuildBundles(context.Background())
	if err != nil {
		t.Fatalf("BuildBundles error: %v", err)
	}

	if len(bundles) != 50 {
		t.Fatalf("expected the 50-stock ceiling to hold, got %d bundles", len(bundles))
	}
}
