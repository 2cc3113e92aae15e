// Package sales implements the sales order lifecycle and its coupling to
// catalog stock: confirmation reserves stock by decrementing item quantities,
// cancellation after confirmation restores them. All stock movement and the
// matching status flip commit in one transaction.
package sales

import (
	"errors"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
)

// Sales order statuses.
const (
	StatusDraft      = "draft"
	StatusConfirmed  = "confirmed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Payment statuses.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPartial  = "partial"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// ValidStatus reports whether s is a known sales order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentUnpaid, PaymentPartial, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// stockHeld reports whether stock was decremented for an order in this status.
func stockHeld(status string) bool {
	switch status {
	case StatusConfirmed, StatusProcessing, StatusShipped:
		return true
	}
	return false
}

// SalesOrder is the header of an outbound order. Monetary totals are stored
// and recomputed from the lines on every line or pricing change.
type SalesOrder struct {
	ID                   int64      `json:"id"`
	OrderNumber          string     `json:"order_number"`
	CustomerID           int64      `json:"customer_id"`
	ContactID            *int64     `json:"contact_id,omitempty"`
	OrderDate            time.Time  `json:"order_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date,omitempty"`
	ActualDeliveryDate   *time.Time `json:"actual_delivery_date,omitempty"`
	Status               string     `json:"status"`
	PaymentStatus        string     `json:"payment_status"`
	Subtotal             float64    `json:"subtotal"`
	Discount             float64    `json:"discount"`
	Tax                  float64    `json:"tax"`
	ShippingCost         float64    `json:"shipping_cost"`
	TotalAmount          float64    `json:"total_amount"`
	Notes                string     `json:"notes"`
	ShippingAddress      string     `json:"shipping_address"`
	CreatedBy            int64      `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Line is one item row of a sales order.
type Line struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	ItemID    int64     `json:"item_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Discount  float64   `json:"discount"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerLines converts order lines to the shared ledger shape.
func LedgerLines(lines []Line) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.Line{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Discount: line.Discount})
	}
	return out
}

// Totals derives the stored header amounts from lines and header adjustments.
func Totals(order SalesOrder, lines []Line) ledger.Totals {
	return ledger.Compute(LedgerLines(lines), ledger.PolicyDiscounted, order.Discount, order.Tax, order.ShippingCost)
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("sales: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("sales: invalid state transition")
	// ErrDuplicateNumber indicates an order number collision.
	ErrDuplicateNumber = errors.New("sales: order number already exists")
	// ErrDuplicateLine indicates an (order, item) line collision.
	ErrDuplicateLine = errors.New("sales: item already on order")
)
