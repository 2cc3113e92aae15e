// Package party manages customers and their contact people. Customers are
// the counterparties of sales orders, RFQs and quotes.
package party

import (
	"errors"
	"time"
)

// Customer lifecycle types.
const (
	CustomerTypeProspect = "prospect"
	CustomerTypeActive   = "active"
	CustomerTypeInactive = "inactive"
)

// ValidCustomerType reports whether t is a known customer type.
func ValidCustomerType(t string) bool {
	switch t {
	case CustomerTypeProspect, CustomerTypeActive, CustomerTypeInactive:
		return true
	}
	return false
}

// Customer is a company buying from us. CompanyName is unique.
type Customer struct {
	ID           int64     `json:"id"`
	CompanyName  string    `json:"company_name"`
	CustomerType string    `json:"customer_type"`
	Industry     string    `json:"industry"`
	Website      string    `json:"website"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Country      string    `json:"country"`
	PostalCode   string    `json:"postal_code"`
	TaxID        string    `json:"tax_id"`
	CreditLimit  *float64  `json:"credit_limit,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contact is an individual person at a customer company. At most one contact
// per customer is primary.
type Contact struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Title      string    `json:"title"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Mobile     string    `json:"mobile"`
	IsPrimary  bool      `json:"is_primary"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return c.FirstName + " " + c.LastName
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("party: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("party: invalid input")
	// ErrDuplicateCompany indicates a company name collision.
	ErrDuplicateCompany = errors.New("party: company name already exists")
)
