// Package negotiation implements the RFQ and quote pipeline: customers
// request pricing, staff turn requests into versioned quotes, and an accepted
// quote converts into a draft sales order exactly once.
package negotiation

import (
	"errors"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
)

// RFQ statuses.
const (
	RFQStatusDraft       = "draft"
	RFQStatusSubmitted   = "submitted"
	RFQStatusUnderReview = "under_review"
	RFQStatusQuoted      = "quoted"
	RFQStatusRejected    = "rejected"
	RFQStatusExpired     = "expired"
)

// Quote statuses.
const (
	QuoteStatusDraft       = "draft"
	QuoteStatusSent        = "sent"
	QuoteStatusAccepted    = "accepted"
	QuoteStatusRejected    = "rejected"
	QuoteStatusExpired     = "expired"
	QuoteStatusNegotiating = "negotiating"
	QuoteStatusConverted   = "converted"
)

// Quote payment terms.
const (
	PaymentTermsNet15   = "net_15"
	PaymentTermsNet30   = "net_30"
	PaymentTermsNet60   = "net_60"
	PaymentTermsCOD     = "cod"
	PaymentTermsPrepaid = "prepaid"
)

// DefaultExpirationDays is the quote validity window when none is given.
const DefaultExpirationDays = 30

// ValidRFQStatus reports whether s is a known RFQ status.
func ValidRFQStatus(s string) bool {
	switch s {
	case RFQStatusDraft, RFQStatusSubmitted, RFQStatusUnderReview, RFQStatusQuoted, RFQStatusRejected, RFQStatusExpired:
		return true
	}
	return false
}

// ValidQuoteStatus reports whether s is a known quote status.
func ValidQuoteStatus(s string) bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusExpired, QuoteStatusNegotiating, QuoteStatusConverted:
		return true
	}
	return false
}

// ValidPaymentTerms reports whether s is a known payment terms value.
func ValidPaymentTerms(s string) bool {
	switch s {
	case PaymentTermsNet15, PaymentTermsNet30, PaymentTermsNet60, PaymentTermsCOD, PaymentTermsPrepaid:
		return true
	}
	return false
}

// RFQ is a customer request for pricing.
type RFQ struct {
	ID             int64      `json:"id"`
	RFQNumber      string     `json:"rfq_number"`
	CustomerID     int64      `json:"customer_id"`
	ContactID      *int64     `json:"contact_id,omitempty"`
	RequestedBy    *int64     `json:"requested_by,omitempty"`
	Status         string     `json:"status"`
	RequestDate    time.Time  `json:"request_date"`
	RequiredByDate *time.Time `json:"required_by_date,omitempty"`
	Notes          string     `json:"notes"`
	InternalNotes  string     `json:"internal_notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RFQLine is one requested item. RFQ lines carry no pricing.
type RFQLine struct {
	ID                int64     `json:"id"`
	RFQID             int64     `json:"rfq_id"`
	ItemID            int64     `json:"item_id"`
	RequestedQuantity int       `json:"requested_quantity"`
	Notes             string    `json:"notes"`
	CreatedAt         time.Time `json:"created_at"`
}

// Quote is a priced offer to a customer. Revisions share a quote number and
// differ by version; totals are stored and recomputed from lines.
type Quote struct {
	ID              int64     `json:"id"`
	QuoteNumber     string    `json:"quote_number"`
	Version         int       `json:"version"`
	RFQID           *int64    `json:"rfq_id,omitempty"`
	CustomerID      int64     `json:"customer_id"`
	ContactID       *int64    `json:"contact_id,omitempty"`
	SalesRepID      *int64    `json:"sales_rep_id,omitempty"`
	Status          string    `json:"status"`
	QuoteDate       time.Time `json:"quote_date"`
	ExpirationDate  time.Time `json:"expiration_date"`
	Subtotal        float64   `json:"subtotal"`
	Discount        float64   `json:"discount"`
	Tax             float64   `json:"tax"`
	ShippingCost    float64   `json:"shipping_cost"`
	TotalAmount     float64   `json:"total_amount"`
	PaymentTerms    string    `json:"payment_terms"`
	DeliveryTerms   string    `json:"delivery_terms"`
	ValidityPeriod  string    `json:"validity_period"`
	Notes           string    `json:"notes"`
	InternalNotes   string    `json:"internal_notes"`
	RejectionReason string    `json:"rejection_reason"`
	SalesOrderID    *int64    `json:"sales_order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsExpired reports whether the quote has passed its expiration date and is
// still in a live status. Accepted, converted and rejected quotes never
// expire retroactively.
func (q Quote) IsExpired() bool {
	if q.ExpirationDate.IsZero() {
		return false
	}
	switch q.Status {
	case QuoteStatusAccepted, QuoteStatusConverted, QuoteStatusRejected:
		return false
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	exp := q.ExpirationDate
	expDay := time.Date(exp.Year(), exp.Month(), exp.Day(), 0, 0, 0, 0, now.Location())
	return today.After(expDay)
}

// QuoteLine is one priced item row of a quote.
type QuoteLine struct {
	ID        int64     `json:"id"`
	QuoteID   int64     `json:"quote_id"`
	ItemID    int64     `json:"item_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Discount  float64   `json:"discount"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// QuoteLedgerLines converts quote lines to the shared ledger shape.
func QuoteLedgerLines(lines []QuoteLine) []ledger.Line {
	out := make([]ledger.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, ledger.Line{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Discount: line.Discount, Notes: line.Notes})
	}
	return out
}

// QuoteTotals derives the stored quote amounts.
func QuoteTotals(q Quote, lines []QuoteLine) ledger.Totals {
	return ledger.Compute(QuoteLedgerLines(lines), ledger.PolicyDiscounted, q.Discount, q.Tax, q.ShippingCost)
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("negotiation: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("negotiation: invalid input")
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("negotiation: invalid state transition")
	// ErrDuplicateNumber indicates an RFQ or quote number collision.
	ErrDuplicateNumber = errors.New("negotiation: number already exists")
	// ErrDuplicateLine indicates a line collision on the same item.
	ErrDuplicateLine = errors.New("negotiation: item already on document")
	// ErrQuoteExpired indicates an accept attempt on an expired quote.
	ErrQuoteExpired = errors.New("negotiation: quote expired")
	// ErrAlreadyConverted indicates a second conversion attempt.
	ErrAlreadyConverted = errors.New("negotiation: quote already converted")
)
