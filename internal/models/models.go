package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale lifecycle states as stored in the local sales table.
// Only completed sales participate in synchronization.
const (
	SaleStatusDraft     = "draft"
	SaleStatusCompleted = "completed"
	SaleStatusDiscarded = "discarded"
)

// ProductStock is the current on-hand quantity for a (product, location, batch)
// triple. It is the row whose dirty flag (is_sync = false) seeds a sync cycle.
type ProductStock struct {
	ID           string          `db:"id"`
	ProductID    string          `db:"product_id"`
	LocationType string          `db:"location_type"`
	LocationID   string          `db:"location_id"`
	Quantity     int64           `db:"quantity"`
	SupplyPrice  decimal.Decimal `db:"supply_price"`
	RetailPrice  decimal.Decimal `db:"retail_price"`
	BatchID      string          `db:"batch_id"`
	ExpiresAt    *time.Time      `db:"expires_at"`
	IsSync       bool            `db:"is_sync"`
	LastSync     *time.Time      `db:"last_sync"`
}

// StockMovement is one atomic adjustment to a product's on-hand quantity.
// MovementID links the movement to the sale that caused it; it is empty for
// manual adjustments and restocks. Immutable after creation except for the
// sync flag.
type StockMovement struct {
	ID             string    `db:"id"`
	ProductID      string    `db:"product_id"`
	BatchID        string    `db:"batch_id"`
	MovementID     string    `db:"movement_id"`
	LocationType   string    `db:"location_type"`
	LocationID     string    `db:"location_id"`
	Event          string    `db:"event"`
	Direction      string    `db:"direction"`
	QuantityBefore int64     `db:"quantity_before"`
	QuantityChange int64     `db:"quantity_change"`
	QuantityAfter  int64     `db:"quantity_after"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	IsSync         bool      `db:"is_sync"`
}

// Sale is a commercial transaction recorded at the terminal.
type Sale struct {
	ID             string          `db:"id"`
	StoreID        string          `db:"store_id"`
	CashierID      string          `db:"cashier_id"`
	ClientID       string          `db:"client_id"`
	SaleCode       string          `db:"sale_code"`
	TotalAmount    decimal.Decimal `db:"total_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	FinalAmount    decimal.Decimal `db:"final_amount"`
	Status         string          `db:"status"`
	Notes          string          `db:"notes"`
	Metadata       string          `db:"metadata"`
	CreatedAt      time.Time       `db:"created_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	IsSync         bool            `db:"is_sync"`
}

// SaleItem is one product line within a sale. Quantity and UnitPrice are
// recorded in the pack domain; CanSplit and UnitsPerPack are joined in from
// the products table so the transfer payload can be resolved to base units.
type SaleItem struct {
	ID              string          `db:"id"`
	SaleID          string          `db:"sale_id"`
	ProductID       string          `db:"product_id"`
	VariantID       string          `db:"variant_id"`
	Quantity        decimal.Decimal `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	DiscountAmount  decimal.Decimal `db:"discount_amount"`
	DiscountPercent decimal.Decimal `db:"discount_percent"`
	BatchID         string          `db:"batch_id"`
	WarehouseID     string          `db:"warehouse_id"`
	CanSplit        bool            `db:"can_split"`
	UnitsPerPack    int             `db:"units_per_pack"`
	IsSync          bool            `db:"is_sync"`
}

// SyncLog is an append-only record of a failed synchronization attempt.
// Purely diagnostic; never read back by the engine.
type SyncLog struct {
	EntityType   string `db:"entity_type"`
	EntityID     string `db:"entity_id"`
	Action       string `db:"action"`
	Status       string `db:"status"`
	ErrorMessage string `db:"error_message"`
}
