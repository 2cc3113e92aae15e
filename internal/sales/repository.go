package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by transitions.
type TxRepository interface {
	CreateOrder(ctx context.Context, so SalesOrder) (int64, error)
	UpdateHeader(ctx context.Context, id int64, so SalesOrder) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	SetPaymentStatus(ctx context.Context, id int64, status string) error
	SetActualDeliveryDate(ctx context.Context, id int64, date time.Time) error
	SetTotals(ctx context.Context, id int64, subtotal, total float64) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateLine(ctx context.Context, orderID, lineID int64, quantity int, unitPrice, discount float64) error
	DeleteLine(ctx context.Context, orderID, lineID int64) error
	ListLines(ctx context.Context, orderID int64) ([]Line, error)
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

func (t *txRepo) CreateOrder(ctx context.Context, so SalesOrder) (int64, error) {
	return InsertOrder(ctx, t.tx, so)
}

// InsertOrder writes an order header on a caller-held transaction. The quote
// conversion uses it to create the order inside the quote's own transaction.
func InsertOrder(ctx context.Context, tx pgx.Tx, so SalesOrder) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO sales_orders (order_number, customer_id, contact_id, order_date, expected_delivery_date,
			status, payment_status, subtotal, discount, tax, shipping_cost, total_amount, notes, shipping_address, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, so.OrderNumber, so.CustomerID, so.ContactID, so.OrderDate, so.ExpectedDeliveryDate,
		so.Status, so.PaymentStatus, so.Subtotal, so.Discount, so.Tax, so.ShippingCost, so.TotalAmount,
		so.Notes, so.ShippingAddress, so.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateNumber
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) UpdateHeader(ctx context.Context, id int64, so SalesOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_orders SET contact_id=$2, order_date=$3, expected_delivery_date=$4, discount=$5, tax=$6,
			shipping_cost=$7, notes=$8, shipping_address=$9, updated_at=NOW()
		WHERE id=$1
	`, id, so.ContactID, so.OrderDate, so.ExpectedDeliveryDate, so.Discount, so.Tax, so.ShippingCost, so.Notes, so.ShippingAddress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetPaymentStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_orders SET payment_status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetActualDeliveryDate(ctx context.Context, id int64, date time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_orders SET actual_delivery_date=$2, updated_at=NOW() WHERE id=$1`, id, date)
	return err
}

func (t *txRepo) SetTotals(ctx context.Context, id int64, subtotal, total float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_orders SET subtotal=$2, total_amount=$3, updated_at=NOW() WHERE id=$1`, id, subtotal, total)
	return err
}

func (t *txRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	return InsertOrderLine(ctx, t.tx, line)
}

// InsertOrderLine writes one item row on a caller-held transaction.
func InsertOrderLine(ctx context.Context, tx pgx.Tx, line Line) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO sales_order_items (order_id, item_id, quantity, unit_price, discount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, line.OrderID, line.ItemID, line.Quantity, line.UnitPrice, line.Discount).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLine
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) UpdateLine(ctx context.Context, orderID, lineID int64, quantity int, unitPrice, discount float64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_order_items SET quantity=$3, unit_price=$4, discount=$5 WHERE id=$1 AND order_id=$2`,
		lineID, orderID, quantity, unitPrice, discount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales_order_items WHERE id=$1 AND order_id=$2`, lineID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ListLines(ctx context.Context, orderID int64) ([]Line, error) {
	return scanLines(t.tx.Query(ctx, lineQuery, orderID))
}

func (t *txRepo) LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error) {
	return catalog.LockItemStock(ctx, t.tx, itemID)
}

func (t *txRepo) AdjustItemQuantity(ctx context.Context, itemID int64, delta int) error {
	return catalog.ApplyStockDelta(ctx, t.tx, itemID, delta)
}

const orderColumns = `id, order_number, customer_id, contact_id, order_date, expected_delivery_date, actual_delivery_date,
	status, payment_status, subtotal, discount, tax, shipping_cost, total_amount, COALESCE(notes,''), COALESCE(shipping_address,''),
	created_by, created_at, updated_at`

const lineQuery = `SELECT id, order_id, item_id, quantity, unit_price, discount, created_at FROM sales_order_items WHERE order_id=$1 ORDER BY id`

func scanOrder(row pgx.Row) (SalesOrder, error) {
	var so SalesOrder
	err := row.Scan(&so.ID, &so.OrderNumber, &so.CustomerID, &so.ContactID, &so.OrderDate, &so.ExpectedDeliveryDate,
		&so.ActualDeliveryDate, &so.Status, &so.PaymentStatus, &so.Subtotal, &so.Discount, &so.Tax, &so.ShippingCost,
		&so.TotalAmount, &so.Notes, &so.ShippingAddress, &so.CreatedBy, &so.CreatedAt, &so.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesOrder{}, ErrNotFound
		}
		return SalesOrder{}, err
	}
	return so, nil
}

func scanLines(rows pgx.Rows, err error) ([]Line, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.Discount, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Get fetches an order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (SalesOrder, []Line, error) {
	so, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id=$1`, id))
	if err != nil {
		return SalesOrder{}, nil, err
	}
	lines, err := scanLines(r.pool.Query(ctx, lineQuery, id))
	if err != nil {
		return SalesOrder{}, nil, err
	}
	return so, lines, nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status        string
	PaymentStatus string
	CustomerID    int64
	Search        string
	Limit         int
	Offset        int
}

// List returns orders matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.PaymentStatus != "" {
		where += fmt.Sprintf(" AND payment_status = $%d", argPos)
		args = append(args, filter.PaymentStatus)
		argPos++
	}
	if filter.CustomerID != 0 {
		where += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, filter.CustomerID)
		argPos++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND order_number ILIKE $%d", argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM sales_orders %s ORDER BY order_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, orderColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []SalesOrder
	for rows.Next() {
		so, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, so)
	}
	return orders, total, rows.Err()
}
