package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type fakeRepo struct {
	items      map[int64]Item
	categories map[int64]Category
	suppliers  map[int64]Supplier
	nextID     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:      map[int64]Item{},
		categories: map[int64]Category{},
		suppliers:  map[int64]Supplier{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) LockItem(ctx context.Context, itemID int64) (ItemStock, error) {
	item, ok := f.items[itemID]
	if !ok {
		return ItemStock{}, ErrNotFound
	}
	return ItemStock{ID: item.ID, Name: item.Name, Quantity: item.Quantity}, nil
}

func (f *fakeRepo) AdjustQuantity(ctx context.Context, itemID int64, delta int) error {
	item, ok := f.items[itemID]
	if !ok {
		return ErrNotFound
	}
	item.Quantity += delta
	f.items[itemID] = item
	return nil
}

func (f *fakeRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	item, ok := f.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (f *fakeRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	for _, item := range f.items {
		if item.SKU == sku {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (f *fakeRepo) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	var items []Item
	for _, item := range f.items {
		items = append(items, item)
	}
	return items, len(items), nil
}

func (f *fakeRepo) ListLowStock(ctx context.Context) ([]Item, error) {
	var items []Item
	for _, item := range f.items {
		if item.IsActive && item.IsLowStock() {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeRepo) ListOutOfStock(ctx context.Context) ([]Item, error) {
	var items []Item
	for _, item := range f.items {
		if item.IsActive && item.Quantity == 0 {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeRepo) CreateItem(ctx context.Context, item Item) (int64, error) {
	for _, existing := range f.items {
		if existing.SKU == item.SKU {
			return 0, ErrDuplicateSKU
		}
	}
	item.ID = f.id()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	f.items[item.ID] = item
	return item.ID, nil
}

func (f *fakeRepo) UpdateItem(ctx context.Context, id int64, item Item) error {
	existing, ok := f.items[id]
	if !ok {
		return ErrNotFound
	}
	item.ID = id
	item.Quantity = existing.Quantity
	f.items[id] = item
	return nil
}

func (f *fakeRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return Category{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	for _, c := range f.categories {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) CreateCategory(ctx context.Context, c Category) (int64, error) {
	c.ID = f.id()
	f.categories[c.ID] = c
	return c.ID, nil
}

func (f *fakeRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	var out []Supplier
	for _, s := range f.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	s.ID = f.id()
	f.suppliers[s.ID] = s
	return s.ID, nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newFakeRepo()
	audit := &fakeAudit{}
	return NewService(repo, audit, NewCache(client, time.Minute)), repo, audit
}

func seedItem(t *testing.T, repo *fakeRepo, sku string, qty, threshold int, price float64) int64 {
	t.Helper()
	id, err := repo.CreateItem(context.Background(), Item{Name: "Item " + sku, SKU: sku, Quantity: qty, LowStockThreshold: threshold, UnitPrice: price, IsActive: true})
	require.NoError(t, err)
	return id
}

func TestCreateItemAppliesDefaults(t *testing.T) {
	svc, _, audit := newTestService(t)

	item, err := svc.CreateItem(context.Background(), 1, ItemInput{Name: "  Widget ", SKU: " wid-001 ", Quantity: 3, UnitPrice: 9.5})
	require.NoError(t, err)
	require.Equal(t, "Widget", item.Name)
	require.Equal(t, "WID-001", item.SKU)
	require.Equal(t, defaultLowStockThreshold, item.LowStockThreshold)
	require.True(t, item.IsActive)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "ITEM_CREATE", audit.logs[0].Action)
}

func TestCreateItemRejectsDuplicateSKU(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedItem(t, repo, "WID-001", 1, 5, 2)

	_, err := svc.CreateItem(context.Background(), 1, ItemInput{Name: "Widget", SKU: "wid-001", UnitPrice: 1})
	require.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestCreateItemValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateItem(context.Background(), 1, ItemInput{SKU: "X"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestAdjustStockAppliesDelta(t *testing.T) {
	svc, repo, audit := newTestService(t)
	id := seedItem(t, repo, "WID-001", 10, 5, 2)

	item, err := svc.AdjustStock(context.Background(), 7, id, -4, "damaged")
	require.NoError(t, err)
	require.Equal(t, 6, item.Quantity)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "STOCK_ADJUST", audit.logs[0].Action)
	require.Equal(t, int64(7), audit.logs[0].ActorID)
}

func TestAdjustStockRejectsNegativeResult(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedItem(t, repo, "WID-001", 3, 5, 2)

	_, err := svc.AdjustStock(context.Background(), 1, id, -4, "oops")
	require.ErrorIs(t, err, ErrNegativeStock)

	item, err := svc.GetItem(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 3, item.Quantity)
}

func TestAdjustStockRejectsZeroDelta(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := seedItem(t, repo, "WID-001", 3, 5, 2)

	_, err := svc.AdjustStock(context.Background(), 1, id, 0, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestLowStockReportCachedUntilBump(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedItem(t, repo, "LOW-001", 2, 5, 1)
	seedItem(t, repo, "OK-001", 50, 5, 1)

	rows, err := svc.LowStockReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "LOW-001", rows[0].SKU)
	require.Equal(t, StockStatusLow, rows[0].StockStatus)

	// Mutating the repo behind the cache does not change the cached payload.
	seedItem(t, repo, "LOW-002", 1, 5, 1)
	rows, err = svc.LowStockReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// A stock adjustment bumps the version and the report refreshes.
	_, err = svc.AdjustStock(context.Background(), 1, 1, 1, "recount")
	require.NoError(t, err)
	rows, err = svc.LowStockReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestOutOfStockReport(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedItem(t, repo, "GONE-001", 0, 5, 1)
	seedItem(t, repo, "OK-001", 4, 5, 1)

	rows, err := svc.OutOfStockReport(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "GONE-001", rows[0].SKU)
	require.Equal(t, StockStatusOut, rows[0].StockStatus)
}

func TestStockStatusDerivation(t *testing.T) {
	require.Equal(t, StockStatusOut, Item{Quantity: 0, LowStockThreshold: 10}.StockStatus())
	require.Equal(t, StockStatusLow, Item{Quantity: 10, LowStockThreshold: 10}.StockStatus())
	require.Equal(t, StockStatusIn, Item{Quantity: 11, LowStockThreshold: 10}.StockStatus())
}
