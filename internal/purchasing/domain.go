// Package purchasing implements the purchase order lifecycle. Receiving an
// order is the only transition with stock side effects: every line quantity
// is added to the referenced catalog item inside one transaction.
package purchasing

import (
	"errors"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
)

// Purchase order statuses.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusReceived  = "received"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether s is a known purchase order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// PurchaseOrder is the header of an inbound order. Totals are derived from
// lines, never stored.
type PurchaseOrder struct {
	ID                   int64      `json:"id"`
	OrderNumber          string     `json:"order_number"`
	SupplierID           *int64     `json:"supplier_id,omitempty"`
	CustomerID           *int64     `json:"customer_id,omitempty"`
	OrderDate            time.Time  `json:"order_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	Status               string     `json:"status"`
	Notes                string     `json:"notes"`
	CreatedBy            int64      `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Line is one item row of a purchase order. Lines carry no discount.
type Line struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	ItemID    int64     `json:"item_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerLines converts order lines to the shared ledger shape.
func LedgerLines(lines []Line) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.Line{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}
	return out
}

// Totals derives the header amounts from the lines.
func Totals(lines []Line) ledger.Totals {
	return ledger.Compute(LedgerLines(lines), ledger.PolicyPlain, 0, 0, 0)
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("purchasing: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("purchasing: invalid state transition")
	// ErrDuplicateNumber indicates an order number collision.
	ErrDuplicateNumber = errors.New("purchasing: order number already exists")
	// ErrDuplicateLine indicates an (order, item) line collision.
	ErrDuplicateLine = errors.New("purchasing: item already on order")
)
