// Package ledger holds the line-item arithmetic shared by purchase orders,
// sales orders, RFQs and quotes. Every order-like header owns a slice of
// Lines; header totals are always derived from them through Compute.
package ledger

import "strings"

// Line is one (item, quantity, price) row belonging to an order-like header.
type Line struct {
	ItemID    int64
	Quantity  int
	UnitPrice float64
	Discount  float64
	Notes     string
}

// Subtotal returns quantity x unit price minus the line discount.
func (l Line) Subtotal() float64 {
	return float64(l.Quantity)*l.UnitPrice - l.Discount
}

// Policy captures the per-header-type differences. Purchase orders and RFQs
// carry no discount column, so their policy zeroes any discount input.
type Policy struct {
	LineDiscount bool
}

var (
	// PolicyDiscounted applies to sales orders and quotes.
	PolicyDiscounted = Policy{LineDiscount: true}
	// PolicyPlain applies to purchase orders and RFQs.
	PolicyPlain = Policy{}
)

// Totals holds the header-level amounts derived from lines.
type Totals struct {
	Subtotal float64
	Total    float64
}

// Compute derives header totals from the lines and header adjustments.
// Running it twice over the same inputs yields the same totals.
func Compute(lines []Line, policy Policy, discount, tax, shipping float64) Totals {
	var subtotal float64
	for _, line := range lines {
		if !policy.LineDiscount {
			line.Discount = 0
		}
		subtotal += line.Subtotal()
	}
	return Totals{
		Subtotal: subtotal,
		Total:    subtotal - discount + tax + shipping,
	}
}

// TotalItems counts line rows.
func TotalItems(lines []Line) int {
	return len(lines)
}

// TotalQuantity sums line quantities.
func TotalQuantity(lines []Line) int {
	var qty int
	for _, line := range lines {
		qty += line.Quantity
	}
	return qty
}

// NormalizeNumber canonicalises business keys such as order and quote
// numbers: trimmed and uppercased.
func NormalizeNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
