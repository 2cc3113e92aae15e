package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx used by the stock helpers so they can run
// against a pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ItemStock is the row-locked snapshot of an item used by stock-affecting
// order transitions.
type ItemStock struct {
	ID       int64
	Name     string
	Quantity int
}

// StockShortage reports one line failing an availability check.
type StockShortage struct {
	Item      string `json:"item"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// InsufficientStockError aggregates every failing line so callers can reject
// the whole operation with full detail.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock"
}

// Detail exposes the shortage rows for the HTTP error payload.
func (e *InsufficientStockError) Detail() any {
	return e.Shortages
}

// LockItemStock reads an item's quantity under FOR UPDATE. Must run inside a
// transaction; the lock is held until commit, closing the check-then-act
// window between concurrent confirmations.
func LockItemStock(ctx context.Context, q Querier, itemID int64) (ItemStock, error) {
	var stock ItemStock
	err := q.QueryRow(ctx, `SELECT id, name, quantity FROM items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&stock.ID, &stock.Name, &stock.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemStock{}, ErrNotFound
		}
		return ItemStock{}, fmt.Errorf("lock item %d: %w", itemID, err)
	}
	return stock, nil
}

// ApplyStockDelta adjusts an item quantity by delta. Callers are expected to
// have validated the resulting quantity under LockItemStock first.
func ApplyStockDelta(ctx context.Context, q Querier, itemID int64, delta int) error {
	tag, err := q.Exec(ctx, `UPDATE items SET quantity = quantity + $2, updated_at = NOW() WHERE id=$1`, itemID, delta)
	if err != nil {
		return fmt.Errorf("adjust item %d stock: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
