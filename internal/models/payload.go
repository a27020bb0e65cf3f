package models

// Wire types for the remote authority's bundle endpoint. Monetary values are
// sent as JSON numbers and quantities as integers in base units, matching what
// the server expects; in-memory decimals are narrowed at payload-build time.

// SyncRequest is the body of POST /pos/sync/product-stocks.
type SyncRequest struct {
	Bundles []BundlePayload `json:"bundles"`
}

// BundlePayload is the unit of transfer: one product-stock snapshot with its
// causally-related movements and, optionally, the sale that produced them.
type BundlePayload struct {
	BundleID       string            `json:"bundleId"`
	ProductID      string            `json:"productId"`
	ProductStock   StockPayload      `json:"productStock"`
	StockMovements []MovementPayload `json:"stockMovements"`
	Sale           *SalePayload      `json:"sale"`
}

type StockPayload struct {
	ID           string  `json:"id"`
	ProductID    string  `json:"productId"`
	LocationType string  `json:"locationType"`
	LocationID   string  `json:"locationId"`
	Quantity     int64   `json:"quantity"`
	SupplyPrice  float64 `json:"supplyPrice"`
	RetailPrice  float64 `json:"retailPrice"`
	BatchID      string  `json:"batchId"`
	ExpiresAt    *string `json:"expiresAt"`
}

type MovementPayload struct {
	ID             string `json:"id"`
	MovementID     string `json:"movementId"`
	ProductID      string `json:"productId"`
	BatchID        string `json:"batchId"`
	LocationType   string `json:"locationType"`
	LocationID     string `json:"locationId"`
	Event          string `json:"event"`
	Direction      string `json:"direction"`
	QuantityBefore int64  `json:"quantityBefore"`
	QuantityChange int64  `json:"quantityChange"`
	QuantityAfter  int64  `json:"quantityAfter"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
}

type SalePayload struct {
	ID             string        `json:"id"`
	StoreID        string        `json:"storeId"`
	CashierID      string        `json:"cashierId"`
	ClientID       string        `json:"clientId"`
	SaleCode       string        `json:"saleCode"`
	TotalAmount    float64       `json:"totalAmount"`
	FinalAmount    float64       `json:"finalAmount"`
	DiscountAmount float64       `json:"discountAmount"`
	TaxAmount      float64       `json:"taxAmount"`
	Status         string        `json:"status"`
	EventType      string        `json:"eventType"`
	Notes          string        `json:"notes"`
	Metadata       string        `json:"metadata"`
	CreatedAt      string        `json:"createdAt"`
	CompletedAt    *string       `json:"completedAt"`
	Items          []ItemPayload `json:"items"`
}

// ItemPayload carries quantity in base units and unitPrice per base unit;
// the persisted sale_items row keeps the pack-domain values untouched.
type ItemPayload struct {
	ID              string  `json:"id"`
	ProductID       string  `json:"productId"`
	VariantID       string  `json:"variantId"`
	Quantity        int64   `json:"quantity"`
	UnitPrice       float64 `json:"unitPrice"`
	TotalPrice      float64 `json:"totalPrice"`
	DiscountAmount  float64 `json:"discountAmount"`
	DiscountPercent float64 `json:"discountPercent"`
	BatchID         string  `json:"batchId"`
	WarehouseID     string  `json:"warehouseId"`
}

// SyncResult is the server's per-bundle verdict.
type SyncResult struct {
	Success []string        `json:"success"`
	Failed  []BundleFailure `json:"failed"`
}

type BundleFailure struct {
	BundleID  string `json:"bundleId"`
	ProductID string `json:"productId"`
	Error     string `json:"error"`
}

// Bundle pairs the wire payload with the local identities the reconciler
// needs to mark rows synced after the server's verdict. Transient: built
// fresh each cycle, never persisted.
type Bundle struct {
	Payload     BundlePayload
	StockID     string
	MovementIDs []string
	SaleID      string // empty when the bundle carries no sale
}
