package service

import (
	"context"
	"sync"

	"github.com/oybekdev/pos-sync/internal/models"
)

// fakeStore is an in-memory Store used across the service tests. It tracks
// read calls so tests can assert that offline cycles touch nothing.
type fakeStore struct {
	mu sync.Mutex

	stocks    []models.ProductStock
	movements []models.StockMovement
	sales     map[string]models.Sale
	items     map[string][]models.SaleItem

	stockSynced    map[string]bool
	movementSynced map[string]bool
	saleSynced     map[string]bool
	itemsSynced    map[string]bool
	logs           []models.SyncLog

	readCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sales:          make(map[string]models.Sale),
		items:          make(map[string][]models.SaleItem),
		stockSynced:    make(map[string]bool),
		movementSynced: make(map[string]bool),
		saleSynced:     make(map[string]bool),
		itemsSynced:    make(map[string]bool),
	}
}

func (f *fakeStore) FindUnsyncedStocks(_ context.Context, limit int) ([]models.ProductStock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++

	var out []models.ProductStock
	for _, s := range f.stocks {
		if f.stockSynced[s.ID] {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) FindUnsyncedMovements(_ context.Context, productID string) ([]models.StockMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++

	var out []models.StockMovement
	for _, m := range f.movements {
		if m.ProductID == productID && !f.movementSynced[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) FindCompletedSales(_ context.Context, ids []string) ([]models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++

	var out []models.Sale
	for _, id := range ids {
		if sale, ok := f.sales[id]; ok && sale.Status == models.SaleStatusCompleted {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (f *fakeStore) FindSaleItems(_ context.Context, saleID string) ([]models.SaleItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	return f.items[saleID], nil
}

func (f *fakeStore) MarkStockSynced(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockSynced[id] = true
	return nil
}

func (f *fakeStore) MarkMovementsSynced(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.movementSynced[id] = true
	}
	return nil
}

func (f *fakeStore) MarkSaleSynced(_ context.Context, saleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saleSynced[saleID] = true
	for _, item := range f.items[saleID] {
		f.itemsSynced[item.ID] = true
	}
	return nil
}

func (f *fakeStore) InsertSyncLog(_ context.Context, entry models.SyncLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, entry)
	return nil
}

func (f *fakeStore) CountUnsyncedStocks(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, s := range f.stocks {
		if !f.stockSynced[s.ID] {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func (f *fakeStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

// fakeTransport records pushed bundles and can either echo a canned verdict,
// accept everything it receives, or block until released.
type fakeTransport struct {
	mu        sync.Mutex
	healthy   bool
	calls     int
	acceptAll bool
	result    *models.SyncResult
	err       error
	block     chan struct{}
	pushed    [][]models.BundlePayload
}

func (t *fakeTransport) PushBundles(_ context.Context, bundles []models.BundlePayload) (*models.SyncResult, error) {
	t.mu.Lock()
	t.calls++
	t.pushed = append(t.pushed, bundles)
	block := t.block
	t.mu.Unlock()

	if block != nil {
		<-block
	}
	if t.err != nil {
		return nil, t.err
	}
	if t.acceptAll {
		result := &models.SyncResult{}
		for _, b := range bundles {
			result.Success = append(result.Success, b.BundleID)
		}
		return result, nil
	}
	return t.result, nil
}

func (t *fakeTransport) IsHealthy() bool {
	return t.healthy
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
