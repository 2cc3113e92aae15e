package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional catalog operations.
type TxRepository interface {
	LockItem(ctx context.Context, itemID int64) (ItemStock, error)
	AdjustQuantity(ctx context.Context, itemID int64, delta int) error
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) LockItem(ctx context.Context, itemID int64) (ItemStock, error) {
	return LockItemStock(ctx, t.tx, itemID)
}

func (t *txRepo) AdjustQuantity(ctx context.Context, itemID int64, delta int) error {
	return ApplyStockDelta(ctx, t.tx, itemID, delta)
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const itemColumns = `id, name, sku, COALESCE(description,''), category_id, supplier_id, quantity, low_stock_threshold, unit_price, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Name, &item.SKU, &item.Description, &item.CategoryID, &item.SupplierID,
		&item.Quantity, &item.LowStockThreshold, &item.UnitPrice, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetItem fetches one item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
}

// GetItemBySKU fetches one item by stock-keeping code.
func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE sku=$1`, sku))
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	Search     string
	CategoryID int64
	SupplierID int64
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ListItems returns items matching the filter plus the unpaged total.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR sku ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}
	if filter.CategoryID != 0 {
		where += fmt.Sprintf(" AND category_id = $%d", argPos)
		args = append(args, filter.CategoryID)
		argPos++
	}
	if filter.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id = $%d", argPos)
		args = append(args, filter.SupplierID)
		argPos++
	}
	if filter.ActiveOnly {
		where += " AND is_active"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, itemColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// ListLowStock returns active items at or below their threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE is_active AND quantity <= low_stock_threshold ORDER BY quantity ASC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListOutOfStock returns active items with zero quantity.
func (r *Repository) ListOutOfStock(ctx context.Context) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE is_active AND quantity = 0 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateItem inserts an item and returns its id.
func (r *Repository) CreateItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO items (name, sku, description, category_id, supplier_id, quantity, low_stock_threshold, unit_price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, item.Name, item.SKU, item.Description, item.CategoryID, item.SupplierID,
		item.Quantity, item.LowStockThreshold, item.UnitPrice, item.IsActive).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateSKU
		}
		return 0, err
	}
	return id, nil
}

// UpdateItem rewrites the mutable item fields. Quantity is excluded; stock
// moves only through AdjustQuantity and order transitions.
func (r *Repository) UpdateItem(ctx context.Context, id int64, item Item) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE items SET name=$2, sku=$3, description=$4, category_id=$5, supplier_id=$6,
			low_stock_threshold=$7, unit_price=$8, is_active=$9, updated_at=NOW()
		WHERE id=$1
	`, id, item.Name, item.SKU, item.Description, item.CategoryID, item.SupplierID,
		item.LowStockThreshold, item.UnitPrice, item.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSKU
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCategory fetches a category.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(description,''), created_at, updated_at FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, ErrNotFound
	}
	return c, err
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(description,''), created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING id`, c.Name, c.Description).Scan(&id)
	return id, err
}

// GetSupplier fetches a supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, name, COALESCE(contact_person,''), COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), created_at, updated_at FROM suppliers WHERE id=$1`, id).
		Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

// ListSuppliers returns all suppliers ordered by name.
func (r *Repository) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, COALESCE(contact_person,''), COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), created_at, updated_at FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO suppliers (name, contact_person, email, phone, address) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		s.Name, s.ContactPerson, s.Email, s.Phone, s.Address).Scan(&id)
	return id, err
}
