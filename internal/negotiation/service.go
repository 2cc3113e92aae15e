package negotiation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/sales"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRFQ(ctx context.Context, id int64) (RFQ, []RFQLine, error)
	ListRFQs(ctx context.Context, status string, limit, offset int) ([]RFQ, int, error)
	GetQuote(ctx context.Context, id int64) (Quote, []QuoteLine, error)
	ListQuotes(ctx context.Context, status string, limit, offset int) ([]Quote, int, error)
	MaxQuoteVersion(ctx context.Context, quoteNumber string) (int, error)
	ListStaleQuotes(ctx context.Context) ([]Quote, error)
}

// CatalogPort exposes the item lookups used for price snapshots and the
// conversion stock check.
type CatalogPort interface {
	GetItem(ctx context.Context, id int64) (catalog.Item, error)
}

// SequencePort allocates document numbers.
type SequencePort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the RFQ and quote pipeline.
type Service struct {
	repo      RepositoryPort
	catalog   CatalogPort
	sequences SequencePort
	audit     AuditPort
}

// NewService constructs the negotiation service.
func NewService(repo RepositoryPort, cat CatalogPort, sequences SequencePort, audit AuditPort) *Service {
	return &Service{repo: repo, catalog: cat, sequences: sequences, audit: audit}
}

// RFQLineInput is one requested item row.
type RFQLineInput struct {
	ItemID            int64  `json:"item_id" validate:"required"`
	RequestedQuantity int    `json:"requested_quantity" validate:"gte=1"`
	Notes             string `json:"notes"`
}

// CreateRFQInput carries the RFQ creation payload.
type CreateRFQInput struct {
	RFQNumber      string         `json:"rfq_number"`
	CustomerID     int64          `json:"customer_id" validate:"required"`
	ContactID      *int64         `json:"contact_id"`
	RequestDate    time.Time      `json:"request_date"`
	RequiredByDate *time.Time     `json:"required_by_date"`
	Notes          string         `json:"notes"`
	InternalNotes  string         `json:"internal_notes"`
	Lines          []RFQLineInput `json:"lines"`
}

// RFQView is the RFQ plus its lines and derived counts.
type RFQView struct {
	RFQ
	Lines         []RFQLine `json:"lines"`
	TotalItems    int       `json:"total_items"`
	TotalQuantity int       `json:"total_quantity"`
}

func rfqView(rfq RFQ, lines []RFQLine) RFQView {
	qty := 0
	for _, line := range lines {
		qty += line.RequestedQuantity
	}
	return RFQView{RFQ: rfq, Lines: lines, TotalItems: len(lines), TotalQuantity: qty}
}

// CreateRFQ persists a new draft RFQ with its lines.
func (s *Service) CreateRFQ(ctx context.Context, actorID int64, input CreateRFQInput) (RFQView, error) {
	if input.CustomerID == 0 {
		return RFQView{}, ErrValidation
	}
	number := ledger.NormalizeNumber(input.RFQNumber)
	if number == "" {
		var err error
		number, err = s.sequences.Next(ctx, "RFQ")
		if err != nil {
			return RFQView{}, err
		}
	}
	requestDate := input.RequestDate
	if requestDate.IsZero() {
		requestDate = time.Now()
	}
	rfq := RFQ{
		RFQNumber:      number,
		CustomerID:     input.CustomerID,
		ContactID:      input.ContactID,
		Status:         RFQStatusDraft,
		RequestDate:    requestDate,
		RequiredByDate: input.RequiredByDate,
		Notes:          input.Notes,
		InternalNotes:  input.InternalNotes,
	}
	var rfqID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateRFQ(ctx, rfq)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if line.ItemID == 0 || line.RequestedQuantity < 1 {
				return ErrValidation
			}
			if _, err := tx.InsertRFQLine(ctx, RFQLine{RFQID: id, ItemID: line.ItemID, RequestedQuantity: line.RequestedQuantity, Notes: line.Notes}); err != nil {
				return err
			}
		}
		rfqID = id
		return nil
	})
	if err != nil {
		return RFQView{}, err
	}
	s.recordAudit(ctx, actorID, "RFQ_CREATE", "rfq", rfqID, map[string]any{"number": number})
	return s.GetRFQ(ctx, rfqID)
}

// GetRFQ returns the RFQ with lines and counts.
func (s *Service) GetRFQ(ctx context.Context, id int64) (RFQView, error) {
	rfq, lines, err := s.repo.GetRFQ(ctx, id)
	if err != nil {
		return RFQView{}, err
	}
	return rfqView(rfq, lines), nil
}

// ListRFQs returns a page of RFQs.
func (s *Service) ListRFQs(ctx context.Context, status string, limit, offset int) ([]RFQ, int, error) {
	if status != "" && !ValidRFQStatus(status) {
		return nil, 0, ErrValidation
	}
	return s.repo.ListRFQs(ctx, status, limit, offset)
}

// AddRFQLine appends a requested item. Allowed while draft or submitted.
func (s *Service) AddRFQLine(ctx context.Context, actorID int64, rfqID int64, input RFQLineInput) (RFQView, error) {
	rfq, _, err := s.repo.GetRFQ(ctx, rfqID)
	if err != nil {
		return RFQView{}, err
	}
	if rfq.Status != RFQStatusDraft && rfq.Status != RFQStatusSubmitted {
		return RFQView{}, ErrInvalidState
	}
	if input.ItemID == 0 || input.RequestedQuantity < 1 {
		return RFQView{}, ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertRFQLine(ctx, RFQLine{RFQID: rfqID, ItemID: input.ItemID, RequestedQuantity: input.RequestedQuantity, Notes: input.Notes})
		return err
	})
	if err != nil {
		return RFQView{}, err
	}
	s.recordAudit(ctx, actorID, "RFQ_LINE_ADD", "rfq", rfqID, map[string]any{"item_id": input.ItemID})
	return s.GetRFQ(ctx, rfqID)
}

// RemoveRFQLine deletes a requested item. Allowed while draft or submitted.
func (s *Service) RemoveRFQLine(ctx context.Context, actorID int64, rfqID, lineID int64) (RFQView, error) {
	rfq, _, err := s.repo.GetRFQ(ctx, rfqID)
	if err != nil {
		return RFQView{}, err
	}
	if rfq.Status != RFQStatusDraft && rfq.Status != RFQStatusSubmitted {
		return RFQView{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteRFQLine(ctx, rfqID, lineID)
	})
	if err != nil {
		return RFQView{}, err
	}
	s.recordAudit(ctx, actorID, "RFQ_LINE_REMOVE", "rfq", rfqID, map[string]any{"line_id": lineID})
	return s.GetRFQ(ctx, rfqID)
}

// SubmitRFQ moves a draft RFQ with at least one line to submitted.
func (s *Service) SubmitRFQ(ctx context.Context, actorID int64, id int64) error {
	rfq, lines, err := s.repo.GetRFQ(ctx, id)
	if err != nil {
		return err
	}
	if rfq.Status != RFQStatusDraft {
		return ErrInvalidState
	}
	if len(lines) == 0 {
		return ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRFQStatus(ctx, id, RFQStatusSubmitted)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "RFQ_SUBMIT", "rfq", id, map[string]any{"number": rfq.RFQNumber})
	return nil
}

// StartReview moves a submitted RFQ to under_review, claiming it for the
// acting user when nobody owns it yet.
func (s *Service) StartReview(ctx context.Context, actorID int64, id int64) error {
	rfq, _, err := s.repo.GetRFQ(ctx, id)
	if err != nil {
		return err
	}
	if rfq.Status != RFQStatusSubmitted {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if rfq.RequestedBy == nil && actorID != 0 {
			if err := tx.SetRFQRequester(ctx, id, actorID); err != nil {
				return err
			}
		}
		return tx.UpdateRFQStatus(ctx, id, RFQStatusUnderReview)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "RFQ_START_REVIEW", "rfq", id, nil)
	return nil
}

// RejectRFQ closes an RFQ. Disallowed once rejected or quoted.
func (s *Service) RejectRFQ(ctx context.Context, actorID int64, id int64) error {
	rfq, _, err := s.repo.GetRFQ(ctx, id)
	if err != nil {
		return err
	}
	if rfq.Status == RFQStatusRejected || rfq.Status == RFQStatusQuoted {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRFQStatus(ctx, id, RFQStatusRejected)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "RFQ_REJECT", "rfq", id, map[string]any{"from": rfq.Status})
	return nil
}

// QuoteView is the quote plus its lines and derived counts.
type QuoteView struct {
	Quote
	Lines         []QuoteLine `json:"lines"`
	TotalItems    int         `json:"total_items"`
	TotalQuantity int         `json:"total_quantity"`
	Expired       bool        `json:"is_expired"`
}

func quoteView(q Quote, lines []QuoteLine) QuoteView {
	ll := QuoteLedgerLines(lines)
	return QuoteView{
		Quote:         q,
		Lines:         lines,
		TotalItems:    ledger.TotalItems(ll),
		TotalQuantity: ledger.TotalQuantity(ll),
		Expired:       q.IsExpired(),
	}
}

// CreateQuoteInput carries the quote-from-RFQ payload.
type CreateQuoteInput struct {
	QuoteNumber    string `json:"quote_number"`
	ExpirationDays int    `json:"expiration_days"`
	PaymentTerms   string `json:"payment_terms"`
	DeliveryTerms  string `json:"delivery_terms"`
	Notes          string `json:"notes"`
}

// CreateQuote turns an RFQ under review (or still submitted) into a draft
// quote. Quote lines are copied 1:1 from the RFQ lines with each item's
// current unit price snapshotted. The RFQ moves to quoted and keeps its lines.
func (s *Service) CreateQuote(ctx context.Context, actorID int64, rfqID int64, input CreateQuoteInput) (QuoteView, error) {
	rfq, rfqLines, err := s.repo.GetRFQ(ctx, rfqID)
	if err != nil {
		return QuoteView{}, err
	}
	if rfq.Status != RFQStatusUnderReview && rfq.Status != RFQStatusSubmitted {
		return QuoteView{}, ErrInvalidState
	}
	if len(rfqLines) == 0 {
		return QuoteView{}, ErrValidation
	}
	number := ledger.NormalizeNumber(input.QuoteNumber)
	if number == "" {
		number, err = s.sequences.Next(ctx, "Q")
		if err != nil {
			return QuoteView{}, err
		}
	}
	days := input.ExpirationDays
	if days <= 0 {
		days = DefaultExpirationDays
	}
	terms := input.PaymentTerms
	if terms == "" {
		terms = PaymentTermsNet30
	}
	if !ValidPaymentTerms(terms) {
		return QuoteView{}, ErrValidation
	}

	var quoteLines []QuoteLine
	for _, line := range rfqLines {
		item, err := s.catalog.GetItem(ctx, line.ItemID)
		if err != nil {
			return QuoteView{}, err
		}
		quoteLines = append(quoteLines, QuoteLine{
			ItemID:    line.ItemID,
			Quantity:  line.RequestedQuantity,
			UnitPrice: item.UnitPrice,
			Notes:     line.Notes,
		})
	}

	now := time.Now()
	q := Quote{
		QuoteNumber:    number,
		Version:        1,
		RFQID:          &rfq.ID,
		CustomerID:     rfq.CustomerID,
		ContactID:      rfq.ContactID,
		Status:         QuoteStatusDraft,
		QuoteDate:      now,
		ExpirationDate: now.AddDate(0, 0, days),
		PaymentTerms:   terms,
		DeliveryTerms:  input.DeliveryTerms,
		ValidityPeriod: fmt.Sprintf("%d days", days),
		Notes:          input.Notes,
	}
	if actorID != 0 {
		q.SalesRepID = &actorID
	}
	totals := QuoteTotals(q, quoteLines)
	q.Subtotal = totals.Subtotal
	q.TotalAmount = totals.Total

	var quoteID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateQuote(ctx, q)
		if err != nil {
			return err
		}
		for _, line := range quoteLines {
			line.QuoteID = id
			if _, err := tx.InsertQuoteLine(ctx, line); err != nil {
				return err
			}
		}
		if err := tx.UpdateRFQStatus(ctx, rfqID, RFQStatusQuoted); err != nil {
			return err
		}
		quoteID = id
		return nil
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_CREATE", "quote", quoteID, map[string]any{"number": number, "from_rfq": rfq.RFQNumber})
	return s.GetQuote(ctx, quoteID)
}

// GetQuote returns the quote with lines, counts and the derived expiry flag.
func (s *Service) GetQuote(ctx context.Context, id int64) (QuoteView, error) {
	q, lines, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return QuoteView{}, err
	}
	return quoteView(q, lines), nil
}

// ListQuotes returns a page of quotes.
func (s *Service) ListQuotes(ctx context.Context, status string, limit, offset int) ([]Quote, int, error) {
	if status != "" && !ValidQuoteStatus(status) {
		return nil, 0, ErrValidation
	}
	return s.repo.ListQuotes(ctx, status, limit, offset)
}

// QuoteLineInput is one priced item row of a quote line mutation. A zero unit
// price on add means "snapshot the item's current catalog price".
type QuoteLineInput struct {
	ItemID    int64   `json:"item_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
	Notes     string  `json:"notes"`
}

func quoteEditable(status string) bool {
	return status == QuoteStatusDraft || status == QuoteStatusNegotiating
}

// recomputeQuoteTotals rewrites the stored totals from the lines currently in
// the transaction. Must run after every line mutation.
func recomputeQuoteTotals(ctx context.Context, tx TxRepository, q Quote) error {
	lines, err := tx.ListQuoteLines(ctx, q.ID)
	if err != nil {
		return err
	}
	totals := QuoteTotals(q, lines)
	return tx.SetQuoteTotals(ctx, q.ID, totals.Subtotal, totals.Total)
}

// AddQuoteLine appends a priced line while the quote is draft or negotiating
// and recomputes the stored totals.
func (s *Service) AddQuoteLine(ctx context.Context, actorID int64, quoteID int64, input QuoteLineInput) (QuoteView, error) {
	q, _, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return QuoteView{}, err
	}
	if !quoteEditable(q.Status) {
		return QuoteView{}, ErrInvalidState
	}
	if input.ItemID == 0 || input.Quantity < 1 || input.UnitPrice < 0 || input.Discount < 0 {
		return QuoteView{}, ErrValidation
	}
	price := input.UnitPrice
	if price == 0 {
		item, err := s.catalog.GetItem(ctx, input.ItemID)
		if err != nil {
			return QuoteView{}, err
		}
		price = item.UnitPrice
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line := QuoteLine{QuoteID: quoteID, ItemID: input.ItemID, Quantity: input.Quantity, UnitPrice: price, Discount: input.Discount, Notes: input.Notes}
		if _, err := tx.InsertQuoteLine(ctx, line); err != nil {
			return err
		}
		return recomputeQuoteTotals(ctx, tx, q)
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_LINE_ADD", "quote", quoteID, map[string]any{"item_id": input.ItemID, "quantity": input.Quantity})
	return s.GetQuote(ctx, quoteID)
}

// UpdateQuoteLine rewrites quantity, price, discount and notes of an existing
// line while the quote is draft or negotiating and recomputes the stored
// totals. The item itself is immutable.
func (s *Service) UpdateQuoteLine(ctx context.Context, actorID int64, quoteID, lineID int64, input QuoteLineInput) (QuoteView, error) {
	q, _, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return QuoteView{}, err
	}
	if !quoteEditable(q.Status) {
		return QuoteView{}, ErrInvalidState
	}
	if input.Quantity < 1 || input.UnitPrice <= 0 || input.Discount < 0 {
		return QuoteView{}, ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateQuoteLine(ctx, quoteID, lineID, input.Quantity, input.UnitPrice, input.Discount, input.Notes); err != nil {
			return err
		}
		return recomputeQuoteTotals(ctx, tx, q)
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_LINE_UPDATE", "quote", quoteID, map[string]any{"line_id": lineID, "quantity": input.Quantity})
	return s.GetQuote(ctx, quoteID)
}

// RemoveQuoteLine deletes a line while the quote is draft or negotiating and
// recomputes the stored totals.
func (s *Service) RemoveQuoteLine(ctx context.Context, actorID int64, quoteID, lineID int64) (QuoteView, error) {
	q, _, err := s.repo.GetQuote(ctx, quoteID)
	if err != nil {
		return QuoteView{}, err
	}
	if !quoteEditable(q.Status) {
		return QuoteView{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteQuoteLine(ctx, quoteID, lineID); err != nil {
			return err
		}
		return recomputeQuoteTotals(ctx, tx, q)
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_LINE_REMOVE", "quote", quoteID, map[string]any{"line_id": lineID})
	return s.GetQuote(ctx, quoteID)
}

// SendToCustomer marks a draft or negotiating quote as sent.
func (s *Service) SendToCustomer(ctx context.Context, actorID int64, id int64) error {
	return s.quoteTransition(ctx, actorID, id, "QUOTE_SEND", QuoteStatusSent, QuoteStatusDraft, QuoteStatusNegotiating)
}

// Accept marks a sent quote as accepted. Expired quotes cannot be accepted.
func (s *Service) Accept(ctx context.Context, actorID int64, id int64) error {
	q, _, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return err
	}
	if q.Status != QuoteStatusSent {
		return ErrInvalidState
	}
	if q.IsExpired() {
		return ErrQuoteExpired
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateQuoteStatus(ctx, id, QuoteStatusAccepted)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QUOTE_ACCEPT", "quote", id, map[string]any{"number": q.QuoteNumber})
	return nil
}

// RejectQuote marks a sent or negotiating quote as rejected with a reason.
func (s *Service) RejectQuote(ctx context.Context, actorID int64, id int64, reason string) error {
	q, _, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return err
	}
	if q.Status != QuoteStatusSent && q.Status != QuoteStatusNegotiating {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.SetQuoteRejection(ctx, id, reason); err != nil {
			return err
		}
		return tx.UpdateQuoteStatus(ctx, id, QuoteStatusRejected)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "QUOTE_REJECT", "quote", id, map[string]any{"reason": reason})
	return nil
}

// RequestRevision flags customer feedback on a sent quote.
func (s *Service) RequestRevision(ctx context.Context, actorID int64, id int64) error {
	return s.quoteTransition(ctx, actorID, id, "QUOTE_REQUEST_REVISION", QuoteStatusNegotiating, QuoteStatusSent)
}

// CreateRevision clones a quote into a new draft row sharing the quote number
// with version incremented past the highest stored one. Pricing policy fields
// and all lines are copied; the original quote is left untouched.
func (s *Service) CreateRevision(ctx context.Context, actorID int64, id int64) (QuoteView, error) {
	q, lines, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return QuoteView{}, err
	}
	maxVersion, err := s.repo.MaxQuoteVersion(ctx, q.QuoteNumber)
	if err != nil {
		return QuoteView{}, err
	}

	now := time.Now()
	revision := Quote{
		QuoteNumber:    q.QuoteNumber,
		Version:        maxVersion + 1,
		RFQID:          q.RFQID,
		CustomerID:     q.CustomerID,
		ContactID:      q.ContactID,
		Status:         QuoteStatusDraft,
		QuoteDate:      now,
		ExpirationDate: now.AddDate(0, 0, DefaultExpirationDays),
		Discount:       q.Discount,
		Tax:            q.Tax,
		ShippingCost:   q.ShippingCost,
		PaymentTerms:   q.PaymentTerms,
		DeliveryTerms:  q.DeliveryTerms,
		ValidityPeriod: q.ValidityPeriod,
		Notes:          q.Notes,
		InternalNotes:  q.InternalNotes,
	}
	if actorID != 0 {
		revision.SalesRepID = &actorID
	}
	totals := QuoteTotals(revision, lines)
	revision.Subtotal = totals.Subtotal
	revision.TotalAmount = totals.Total

	var revisionID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		newID, err := tx.CreateQuote(ctx, revision)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.InsertQuoteLine(ctx, QuoteLine{QuoteID: newID, ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Discount: line.Discount, Notes: line.Notes}); err != nil {
				return err
			}
		}
		revisionID = newID
		return nil
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_REVISION", "quote", revisionID, map[string]any{"number": q.QuoteNumber, "version": maxVersion + 1})
	return s.GetQuote(ctx, revisionID)
}

// ConvertInput carries the conversion payload.
type ConvertInput struct {
	OrderNumber string `json:"order_number"`
}

// ConvertToOrder turns an accepted quote into a draft sales order exactly
// once. Everything commits in one transaction: the quote row is locked so
// rival conversions serialize, stock availability is checked for every line
// under item row locks, and the order, its lines, the conversion link and the
// converted status all land together. A lost race rolls the whole thing back,
// leaving no orphan order behind. Nothing is decremented here; stock only
// moves when the resulting order is confirmed.
func (s *Service) ConvertToOrder(ctx context.Context, actorID int64, id int64, input ConvertInput) (QuoteView, error) {
	q, lines, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return QuoteView{}, err
	}
	if q.Status != QuoteStatusAccepted {
		return QuoteView{}, ErrInvalidState
	}
	if q.SalesOrderID != nil {
		return QuoteView{}, ErrAlreadyConverted
	}
	if len(lines) == 0 {
		return QuoteView{}, ErrValidation
	}

	number := ledger.NormalizeNumber(input.OrderNumber)
	if number == "" {
		number, err = s.sequences.Next(ctx, "SO")
		if err != nil {
			return QuoteView{}, err
		}
	}
	note := fmt.Sprintf("Converted from Quote %s.", q.QuoteNumber)
	if strings.TrimSpace(q.Notes) != "" {
		note = note + " " + q.Notes
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetQuoteForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if cur.SalesOrderID != nil {
			return ErrAlreadyConverted
		}
		if cur.Status != QuoteStatusAccepted {
			return ErrInvalidState
		}

		var shortages []catalog.StockShortage
		for _, line := range lines {
			stock, err := tx.LockItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if stock.Quantity < line.Quantity {
				shortages = append(shortages, catalog.StockShortage{Item: stock.Name, Required: line.Quantity, Available: stock.Quantity})
			}
		}
		if len(shortages) > 0 {
			return &catalog.InsufficientStockError{Shortages: shortages}
		}

		so := sales.SalesOrder{
			OrderNumber:   number,
			CustomerID:    q.CustomerID,
			ContactID:     q.ContactID,
			OrderDate:     time.Now(),
			Status:        sales.StatusDraft,
			PaymentStatus: sales.PaymentUnpaid,
			Discount:      q.Discount,
			Tax:           q.Tax,
			ShippingCost:  q.ShippingCost,
			Notes:         note,
			CreatedBy:     actorID,
		}
		orderLines := make([]sales.Line, 0, len(lines))
		for _, line := range lines {
			orderLines = append(orderLines, sales.Line{ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Discount: line.Discount})
		}
		totals := sales.Totals(so, orderLines)
		so.Subtotal = totals.Subtotal
		so.TotalAmount = totals.Total

		orderID, err = tx.CreateSalesOrder(ctx, so)
		if err != nil {
			return err
		}
		for _, line := range orderLines {
			line.OrderID = orderID
			if _, err := tx.InsertSalesOrderLine(ctx, line); err != nil {
				return err
			}
		}
		if err := tx.SetQuoteSalesOrder(ctx, id, orderID); err != nil {
			return err
		}
		return tx.UpdateQuoteStatus(ctx, id, QuoteStatusConverted)
	})
	if err != nil {
		return QuoteView{}, err
	}
	s.recordAudit(ctx, actorID, "QUOTE_CONVERT", "quote", id, map[string]any{"number": q.QuoteNumber, "order_id": orderID, "order_number": number})
	return s.GetQuote(ctx, id)
}

// ExpireStale stamps every live quote whose expiration date has passed as
// expired. Returns the number of quotes touched. Acceptance is gated on the
// derived expiry check regardless, so the sweep only keeps stored statuses
// honest for listings and reports.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.repo.ListStaleQuotes(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, q := range stale {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateQuoteStatus(ctx, q.ID, QuoteStatusExpired)
		})
		if err != nil {
			return expired, err
		}
		expired++
		s.recordAudit(ctx, 0, "QUOTE_EXPIRE", "quote", q.ID, map[string]any{"number": q.QuoteNumber})
	}
	return expired, nil
}

func (s *Service) quoteTransition(ctx context.Context, actorID int64, id int64, action, target string, allowedFrom ...string) error {
	q, _, err := s.repo.GetQuote(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, from := range allowedFrom {
		if q.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateQuoteStatus(ctx, id, target)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, action, "quote", id, map[string]any{"from": q.Status, "to": target})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
