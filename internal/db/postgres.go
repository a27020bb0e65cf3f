package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oybekdev/pos-sync/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the local-store repository backing the sync engine.
// Every write is a single-statement, row-atomic UPDATE or INSERT; the engine
// never needs a multi-statement transaction per bundle.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connString string, logger *slog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("no response from postgres: %w", err)
	}

	return &PostgresStore{pool: p, logger: logger}, nil
}

// FindUnsyncedStocks fetches up to limit dirty product_stocks rows in
// insertion order, so rows that keep failing do not starve newer ones.
func (s *PostgresStore) FindUnsyncedStocks(ctx context.Context, limit int) ([]models.ProductStock, error) {
	query := `
		SELECT id, product_id, location_type, location_id, quantity,
		       supply_price, retail_price, batch_id, expires_at
		FROM product_stocks
		WHERE is_sync = false
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsynced stocks: %w", err)
	}
	defer rows.Close()

	var stocks []models.ProductStock
	for rows.Next() {
		var st models.ProductStock
		err := rows.Scan(
			&st.ID,
			&st.ProductID,
			&st.LocationType,
			&st.LocationID,
			&st.Quantity,
			&st.SupplyPrice,
			&st.RetailPrice,
			&st.BatchID,
			&st.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product_stocks row: %w", err)
		}
		stocks = append(stocks, st)
	}

	return stocks, rows.Err()
}

func (s *PostgresStore) FindUnsyncedMovements(ctx context.Context, productID string) ([]models.StockMovement, error) {
	query := `
		SELECT id, product_id, COALESCE(batch_id, 'default'), COALESCE(movement_id::text, ''),
		       location_type, COALESCE(location_id, ''), event, direction,
		       quantity_before, quantity_change, quantity_after, status, created_at
		FROM stock_movements
		WHERE product_id = $1 AND is_sync = false
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsynced movements: %w", err)
	}
	defer rows.Close()

	var movements []models.StockMovement
	for rows.Next() {
		var m models.StockMovement
		err := rows.Scan(
			&m.ID,
			&m.ProductID,
			&m.BatchID,
			&m.MovementID,
			&m.LocationType,
			&m.LocationID,
			&m.Event,
			&m.Direction,
			&m.QuantityBefore,
			&m.QuantityChange,
			&m.QuantityAfter,
			&m.Status,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock_movements row: %w", err)
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// FindCompletedSales resolves the candidate sale identities derived from
// movement_id references. Draft and discarded sales never synchronize.
func (s *PostgresStore) FindCompletedSales(ctx context.Context, ids []string) ([]models.Sale, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, COALESCE(store_id, ''), COALESCE(cashier_id, ''), COALESCE(client_id::text, ''),
		       COALESCE(sale_code, ''), total_amount, discount_amount, tax_amount, final_amount,
		       status, COALESCE(notes, ''), COALESCE(metadata::text, ''), created_at, completed_at
		FROM sales
		WHERE id = ANY($1) AND status = $2
	`

	rows, err := s.pool.Query(ctx, query, ids, models.SaleStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completed sales: %w", err)
	}
	defer rows.Close()

	var sales []models.Sale
	for rows.Next() {
		var sl models.Sale
		err := rows.Scan(
			&sl.ID,
			&sl.StoreID,
			&sl.CashierID,
			&sl.ClientID,
			&sl.SaleCode,
			&sl.TotalAmount,
			&sl.DiscountAmount,
			&sl.TaxAmount,
			&sl.FinalAmount,
			&sl.Status,
			&sl.Notes,
			&sl.Metadata,
			&sl.CreatedAt,
			&sl.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		sales = append(sales, sl)
	}

	return sales, rows.Err()
}

// FindSaleItems returns a sale's lines joined with the product's packaging
// metadata, so the bundler can resolve pack quantities to base units without
// a second lookup.
func (s *PostgresStore) FindSaleItems(ctx context.Context, saleID string) ([]models.SaleItem, error) {
	query := `
		SELECT si.id, si.sale_id, si.product_id, COALESCE(si.variant_id::text, ''),
		       si.quantity, si.unit_price, si.total_price, si.discount_amount,
		       si.discount_percent, COALESCE(si.batch_id, ''), COALESCE(si.warehouse_id, ''),
		       COALESCE(p.can_split, false),
		       COALESCE((p.packaging->>'unitsPerPack')::int, 1)
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = $1
	`

	rows, err := s.pool.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sale items: %w", err)
	}
	defer rows.Close()

	var items []models.SaleItem
	for rows.Next() {
		var it models.SaleItem
		err := rows.Scan(
			&it.ID,
			&it.SaleID,
			&it.ProductID,
			&it.VariantID,
			&it.Quantity,
			&it.UnitPrice,
			&it.TotalPrice,
			&it.DiscountAmount,
			&it.DiscountPercent,
			&it.BatchID,
			&it.WarehouseID,
			&it.CanSplit,
			&it.UnitsPerPack,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale_items row: %w", err)
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (s *PostgresStore) MarkStockSynced(ctx context.Context, id string) error {
	query := `
		UPDATE product_stocks
		SET is_sync = true, last_sync = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, id)
	return err
}

func (s *PostgresStore) MarkMovementsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE stock_movements
		SET is_sync = true, last_sync = CURRENT_TIMESTAMP
		WHERE id = ANY($1)
	`
	_, err := s.pool.Exec(ctx, query, ids)
	return err
}

// MarkSaleSynced flags the sale and every one of its lines. A sale syncs as a
// whole: the server receives the full item list with each bundle.
func (s *PostgresStore) MarkSaleSynced(ctx context.Context, saleID string) error {
	saleQuery := `
		UPDATE sales
		SET is_sync = true, last_sync = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, saleQuery, saleID); err != nil {
		return fmt.Errorf("failed to mark sale synced: %w", err)
	}

	itemsQuery := `
		UPDATE sale_items
		SET is_sync = true, last_sync = CURRENT_TIMESTAMP
		WHERE sale_id = $1
	`
	if _, err := s.pool.Exec(ctx, itemsQuery, saleID); err != nil {
		return fmt.Errorf("failed to mark sale items synced: %w", err)
	}

	return nil
}

func (s *PostgresStore) InsertSyncLog(ctx context.Context, entry models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (entity_type, entity_id, action, status, error_message)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		entry.Status,
		entry.ErrorMessage,
	)
	return err
}

// CountUnsyncedStocks reports the current backlog for the metrics gauge.
func (s *PostgresStore) CountUnsyncedStocks(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM product_stocks WHERE is_sync = false`).Scan(&count)
	return count, err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
