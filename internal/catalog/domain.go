package catalog

import (
	"errors"
	"time"
)

// Stock status labels derived from quantity vs threshold.
const (
	StockStatusOut = "out_of_stock"
	StockStatusLow = "low_stock"
	StockStatusIn  = "in_stock"
)

// Category groups items.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Supplier is a vendor providing items.
type Supplier struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is a stocked product. Quantity is never negative; the database carries
// a matching CHECK constraint as a last line of defence.
type Item struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	SKU               string    `json:"sku"`
	Description       string    `json:"description"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	SupplierID        *int64    `json:"supplier_id,omitempty"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UnitPrice         float64   `json:"unit_price"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsLowStock reports whether the item sits at or below its threshold.
func (i Item) IsLowStock() bool {
	return i.Quantity <= i.LowStockThreshold
}

// StockStatus returns the derived stock status label.
func (i Item) StockStatus() string {
	switch {
	case i.Quantity == 0:
		return StockStatusOut
	case i.IsLowStock():
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

// TotalValue is quantity times unit price.
func (i Item) TotalValue() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
	// ErrNegativeStock triggered when an adjustment would drop quantity below zero.
	ErrNegativeStock = errors.New("catalog: negative stock not allowed")
	// ErrDuplicateSKU indicates a stock-keeping code collision.
	ErrDuplicateSKU = errors.New("catalog: sku already exists")
)
