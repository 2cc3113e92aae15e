package purchasing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by transitions.
type TxRepository interface {
	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	UpdateHeader(ctx context.Context, id int64, po PurchaseOrder) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLine(ctx context.Context, orderID, lineID int64) error
	LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error)
	AdjustItemQuantity(ctx context.Context, itemID int64, delta int) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (order_number, supplier_id, customer_id, order_date, expected_delivery_date, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, po.OrderNumber, po.SupplierID, po.CustomerID, po.OrderDate, po.ExpectedDeliveryDate, po.Status, po.Notes, po.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, id int64, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_orders SET supplier_id=$2, customer_id=$3, order_date=$4, expected_delivery_date=$5, notes=$6, updated_at=NOW()
		WHERE id=$1
	`, id, po.SupplierID, po.CustomerID, po.OrderDate, po.ExpectedDeliveryDate, po.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_order_items (order_id, item_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, line.OrderID, line.ItemID, line.Quantity, line.UnitPrice).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLine
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE id=$1 AND order_id=$2`, lineID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error) {
	return catalog.LockItemStock(ctx, t.tx, itemID)
}

func (t *txRepo) AdjustItemQuantity(ctx context.Context, itemID int64, delta int) error {
	return catalog.ApplyStockDelta(ctx, t.tx, itemID, delta)
}

const orderColumns = `id, order_number, supplier_id, customer_id, order_date, expected_delivery_date, status, COALESCE(notes,''), created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.OrderNumber, &po.SupplierID, &po.CustomerID, &po.OrderDate, &po.ExpectedDeliveryDate,
		&po.Status, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	return po, nil
}

// Get fetches an order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	po, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

func (r *Repository) lines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, item_id, quantity, unit_price, created_at FROM purchase_order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListFilter narrows List.
type ListFilter struct {
	Status     string
	SupplierID int64
	Search     string
	Limit      int
	Offset     int
}

// List returns orders matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id = $%d", argPos)
		args = append(args, filter.SupplierID)
		argPos++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND order_number ILIKE $%d", argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM purchase_orders %s ORDER BY order_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, orderColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	return orders, total, rows.Err()
}
