package negotiation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/platform/db"
	"github.com/meridian-ops/meridian-ops/internal/sales"
)

// Repository provides PostgreSQL backed persistence for RFQs and quotes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by transitions.
type TxRepository interface {
	CreateRFQ(ctx context.Context, rfq RFQ) (int64, error)
	UpdateRFQStatus(ctx context.Context, id int64, status string) error
	SetRFQRequester(ctx context.Context, id int64, userID int64) error
	InsertRFQLine(ctx context.Context, line RFQLine) (int64, error)
	DeleteRFQLine(ctx context.Context, rfqID, lineID int64) error
	CreateQuote(ctx context.Context, q Quote) (int64, error)
	GetQuoteForUpdate(ctx context.Context, id int64) (Quote, error)
	UpdateQuoteStatus(ctx context.Context, id int64, status string) error
	SetQuoteRejection(ctx context.Context, id int64, reason string) error
	SetQuoteSalesOrder(ctx context.Context, id int64, orderID int64) error
	SetQuoteTotals(ctx context.Context, id int64, subtotal, total float64) error
	InsertQuoteLine(ctx context.Context, line QuoteLine) (int64, error)
	UpdateQuoteLine(ctx context.Context, quoteID, lineID int64, quantity int, unitPrice, discount float64, notes string) error
	DeleteQuoteLine(ctx context.Context, quoteID, lineID int64) error
	ListQuoteLines(ctx context.Context, quoteID int64) ([]QuoteLine, error)
	LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error)
	CreateSalesOrder(ctx context.Context, so sales.SalesOrder) (int64, error)
	InsertSalesOrderLine(ctx context.Context, line sales.Line) (int64, error)
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

func duplicateAware(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateNumber
	}
	return err
}

func (t *txRepo) CreateRFQ(ctx context.Context, rfq RFQ) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO rfqs (rfq_number, customer_id, contact_id, requested_by, status, request_date, required_by_date, notes, internal_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, rfq.RFQNumber, rfq.CustomerID, rfq.ContactID, rfq.RequestedBy, rfq.Status, rfq.RequestDate, rfq.RequiredByDate, rfq.Notes, rfq.InternalNotes).Scan(&id)
	if err != nil {
		return 0, duplicateAware(err)
	}
	return id, nil
}

func (t *txRepo) UpdateRFQStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE rfqs SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetRFQRequester(ctx context.Context, id int64, userID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE rfqs SET requested_by=$2, updated_at=NOW() WHERE id=$1 AND requested_by IS NULL`, id, userID)
	return err
}

func (t *txRepo) InsertRFQLine(ctx context.Context, line RFQLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO rfq_items (rfq_id, item_id, requested_quantity, notes)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, line.RFQID, line.ItemID, line.RequestedQuantity, line.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLine
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) DeleteRFQLine(ctx context.Context, rfqID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM rfq_items WHERE id=$1 AND rfq_id=$2`, lineID, rfqID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quotes (quote_number, version, rfq_id, customer_id, contact_id, sales_rep_id, status, quote_date,
			expiration_date, subtotal, discount, tax, shipping_cost, total_amount, payment_terms, delivery_terms,
			validity_period, notes, internal_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`, q.QuoteNumber, q.Version, q.RFQID, q.CustomerID, q.ContactID, q.SalesRepID, q.Status, q.QuoteDate,
		q.ExpirationDate, q.Subtotal, q.Discount, q.Tax, q.ShippingCost, q.TotalAmount, q.PaymentTerms,
		q.DeliveryTerms, q.ValidityPeriod, q.Notes, q.InternalNotes).Scan(&id)
	if err != nil {
		return 0, duplicateAware(err)
	}
	return id, nil
}

// GetQuoteForUpdate re-reads a quote under a row lock so rival conversions
// serialize on it.
func (t *txRepo) GetQuoteForUpdate(ctx context.Context, id int64) (Quote, error) {
	return scanQuote(t.tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id=$1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateQuoteStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) SetQuoteRejection(ctx context.Context, id int64, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET rejection_reason=$2, updated_at=NOW() WHERE id=$1`, id, reason)
	return err
}

// SetQuoteSalesOrder sets the conversion link exactly once.
func (t *txRepo) SetQuoteSalesOrder(ctx context.Context, id int64, orderID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET sales_order_id=$2, updated_at=NOW() WHERE id=$1 AND sales_order_id IS NULL`, id, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}

func (t *txRepo) SetQuoteTotals(ctx context.Context, id int64, subtotal, total float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET subtotal=$2, total_amount=$3, updated_at=NOW() WHERE id=$1`, id, subtotal, total)
	return err
}

func (t *txRepo) InsertQuoteLine(ctx context.Context, line QuoteLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quote_items (quote_id, item_id, quantity, unit_price, discount, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, line.QuoteID, line.ItemID, line.Quantity, line.UnitPrice, line.Discount, line.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLine
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) UpdateQuoteLine(ctx context.Context, quoteID, lineID int64, quantity int, unitPrice, discount float64, notes string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quote_items SET quantity=$3, unit_price=$4, discount=$5, notes=$6 WHERE id=$1 AND quote_id=$2`,
		lineID, quoteID, quantity, unitPrice, discount, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) DeleteQuoteLine(ctx context.Context, quoteID, lineID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM quote_items WHERE id=$1 AND quote_id=$2`, lineID, quoteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ListQuoteLines(ctx context.Context, quoteID int64) ([]QuoteLine, error) {
	return scanQuoteLines(t.tx.Query(ctx, quoteLineQuery, quoteID))
}

func (t *txRepo) LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error) {
	return catalog.LockItemStock(ctx, t.tx, itemID)
}

func (t *txRepo) CreateSalesOrder(ctx context.Context, so sales.SalesOrder) (int64, error) {
	return sales.InsertOrder(ctx, t.tx, so)
}

func (t *txRepo) InsertSalesOrderLine(ctx context.Context, line sales.Line) (int64, error) {
	return sales.InsertOrderLine(ctx, t.tx, line)
}

const rfqColumns = `id, rfq_number, customer_id, contact_id, requested_by, status, request_date, required_by_date, COALESCE(notes,''), COALESCE(internal_notes,''), created_at, updated_at`

const quoteColumns = `id, quote_number, version, rfq_id, customer_id, contact_id, sales_rep_id, status, quote_date, expiration_date,
	subtotal, discount, tax, shipping_cost, total_amount, payment_terms, COALESCE(delivery_terms,''), COALESCE(validity_period,''),
	COALESCE(notes,''), COALESCE(internal_notes,''), COALESCE(rejection_reason,''), sales_order_id, created_at, updated_at`

const quoteLineQuery = `SELECT id, quote_id, item_id, quantity, unit_price, discount, COALESCE(notes,''), created_at FROM quote_items WHERE quote_id=$1 ORDER BY id`

func scanRFQ(row pgx.Row) (RFQ, error) {
	var rfq RFQ
	err := row.Scan(&rfq.ID, &rfq.RFQNumber, &rfq.CustomerID, &rfq.ContactID, &rfq.RequestedBy, &rfq.Status,
		&rfq.RequestDate, &rfq.RequiredByDate, &rfq.Notes, &rfq.InternalNotes, &rfq.CreatedAt, &rfq.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, ErrNotFound
		}
		return RFQ{}, err
	}
	return rfq, nil
}

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.QuoteNumber, &q.Version, &q.RFQID, &q.CustomerID, &q.ContactID, &q.SalesRepID, &q.Status,
		&q.QuoteDate, &q.ExpirationDate, &q.Subtotal, &q.Discount, &q.Tax, &q.ShippingCost, &q.TotalAmount,
		&q.PaymentTerms, &q.DeliveryTerms, &q.ValidityPeriod, &q.Notes, &q.InternalNotes, &q.RejectionReason,
		&q.SalesOrderID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	return q, nil
}

func scanQuoteLines(rows pgx.Rows, err error) ([]QuoteLine, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []QuoteLine
	for rows.Next() {
		var line QuoteLine
		if err := rows.Scan(&line.ID, &line.QuoteID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.Discount, &line.Notes, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetRFQ fetches an RFQ with its lines.
func (r *Repository) GetRFQ(ctx context.Context, id int64) (RFQ, []RFQLine, error) {
	rfq, err := scanRFQ(r.pool.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id=$1`, id))
	if err != nil {
		return RFQ{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, rfq_id, item_id, requested_quantity, COALESCE(notes,''), created_at FROM rfq_items WHERE rfq_id=$1 ORDER BY id`, id)
	if err != nil {
		return RFQ{}, nil, err
	}
	defer rows.Close()
	var lines []RFQLine
	for rows.Next() {
		var line RFQLine
		if err := rows.Scan(&line.ID, &line.RFQID, &line.ItemID, &line.RequestedQuantity, &line.Notes, &line.CreatedAt); err != nil {
			return RFQ{}, nil, err
		}
		lines = append(lines, line)
	}
	return rfq, lines, rows.Err()
}

// ListRFQs returns RFQs filtered by status plus the unpaged total.
func (r *Repository) ListRFQs(ctx context.Context, status string, limit, offset int) ([]RFQ, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rfqs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM rfqs %s ORDER BY request_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, rfqColumns, where, argPos, argPos+1)
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var rfqs []RFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, 0, err
		}
		rfqs = append(rfqs, rfq)
	}
	return rfqs, total, rows.Err()
}

// GetQuote fetches a quote with its lines.
func (r *Repository) GetQuote(ctx context.Context, id int64) (Quote, []QuoteLine, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id=$1`, id))
	if err != nil {
		return Quote{}, nil, err
	}
	lines, err := scanQuoteLines(r.pool.Query(ctx, quoteLineQuery, id))
	if err != nil {
		return Quote{}, nil, err
	}
	return q, lines, nil
}

// MaxQuoteVersion returns the highest version stored for a quote number.
func (r *Repository) MaxQuoteVersion(ctx context.Context, quoteNumber string) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM quotes WHERE quote_number=$1`, quoteNumber).Scan(&version)
	return version, err
}

// ListQuotes returns quotes filtered by status plus the unpaged total.
func (r *Repository) ListQuotes(ctx context.Context, status string, limit, offset int) ([]Quote, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, status)
		argPos++
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY quote_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, quoteColumns, where, argPos, argPos+1)
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, q)
	}
	return quotes, total, rows.Err()
}

// ListStaleQuotes returns live quotes whose expiration date has passed. Used
// by the background expiry sweep.
func (r *Repository) ListStaleQuotes(ctx context.Context) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE expiration_date < NOW() AND status IN ('draft','sent','negotiating')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}
