package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (SalesOrder, []Line, error)
	List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error)
}

// SequencePort allocates order numbers.
type SequencePort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards stock-affecting transitions against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the sales order lifecycle.
type Service struct {
	repo        RepositoryPort
	sequences   SequencePort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, sequences SequencePort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, sequences: sequences, audit: audit, idempotency: idem}
}

// LineInput is one item row of a create or add-line payload.
type LineInput struct {
	ItemID    int64   `json:"item_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	UnitPrice float64 `json:"unit_price" validate:"gt=0"`
	Discount  float64 `json:"discount" validate:"gte=0"`
}

// CreateInput carries the order creation payload.
type CreateInput struct {
	OrderNumber          string      `json:"order_number"`
	CustomerID           int64       `json:"customer_id" validate:"required"`
	ContactID            *int64      `json:"contact_id"`
	OrderDate            time.Time   `json:"order_date"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date"`
	Discount             float64     `json:"discount" validate:"gte=0"`
	Tax                  float64     `json:"tax" validate:"gte=0"`
	ShippingCost         float64     `json:"shipping_cost" validate:"gte=0"`
	Notes                string      `json:"notes"`
	ShippingAddress      string      `json:"shipping_address"`
	Lines                []LineInput `json:"lines"`
}

// OrderView is the order plus its lines and derived counts.
type OrderView struct {
	SalesOrder
	Lines         []Line `json:"lines"`
	TotalItems    int    `json:"total_items"`
	TotalQuantity int    `json:"total_quantity"`
}

func view(so SalesOrder, lines []Line) OrderView {
	ll := LedgerLines(lines)
	return OrderView{
		SalesOrder:    so,
		Lines:         lines,
		TotalItems:    ledger.TotalItems(ll),
		TotalQuantity: ledger.TotalQuantity(ll),
	}
}

// recomputeTotals rewrites the stored totals from the lines currently in the
// transaction. Must run after every line or pricing mutation.
func recomputeTotals(ctx context.Context, tx TxRepository, order SalesOrder) error {
	lines, err := tx.ListLines(ctx, order.ID)
	if err != nil {
		return err
	}
	totals := Totals(order, lines)
	return tx.SetTotals(ctx, order.ID, totals.Subtotal, totals.Total)
}

// Create persists a new draft order with its lines and computed totals. An
// empty order number is allocated from the SO sequence.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (OrderView, error) {
	if input.CustomerID == 0 {
		return OrderView{}, ErrValidation
	}
	number := ledger.NormalizeNumber(input.OrderNumber)
	if number == "" {
		var err error
		number, err = s.sequences.Next(ctx, "SO")
		if err != nil {
			return OrderView{}, err
		}
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now()
	}
	so := SalesOrder{
		OrderNumber:          number,
		CustomerID:           input.CustomerID,
		ContactID:            input.ContactID,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Status:               StatusDraft,
		PaymentStatus:        PaymentUnpaid,
		Discount:             input.Discount,
		Tax:                  input.Tax,
		ShippingCost:         input.ShippingCost,
		Notes:                input.Notes,
		ShippingAddress:      input.ShippingAddress,
		CreatedBy:            actorID,
	}
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, so)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if line.ItemID == 0 || line.Quantity < 1 || line.UnitPrice <= 0 || line.Discount < 0 {
				return ErrValidation
			}
			if _, err := tx.InsertLine(ctx, Line{OrderID: id, ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Discount: line.Discount}); err != nil {
				return err
			}
		}
		so.ID = id
		orderID = id
		return recomputeTotals(ctx, tx, so)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "SO_CREATE", orderID, map[string]any{"number": number})
	return s.Get(ctx, orderID)
}

// UpdateInput carries header and pricing updates.
type UpdateInput struct {
	ContactID            *int64     `json:"contact_id"`
	OrderDate            time.Time  `json:"order_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	Discount             float64    `json:"discount" validate:"gte=0"`
	Tax                  float64    `json:"tax" validate:"gte=0"`
	ShippingCost         float64    `json:"shipping_cost" validate:"gte=0"`
	Notes                string     `json:"notes"`
	ShippingAddress      string     `json:"shipping_address"`
}

// Update rewrites the header of a draft order and recomputes totals.
func (s *Service) Update(ctx context.Context, actorID int64, id int64, input UpdateInput) (OrderView, error) {
	so, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	if so.Status != StatusDraft {
		return OrderView{}, ErrInvalidState
	}
	if input.Discount < 0 || input.Tax < 0 || input.ShippingCost < 0 {
		return OrderView{}, ErrValidation
	}
	so.ContactID = input.ContactID
	if !input.OrderDate.IsZero() {
		so.OrderDate = input.OrderDate
	}
	so.ExpectedDeliveryDate = input.ExpectedDeliveryDate
	so.Discount = input.Discount
	so.Tax = input.Tax
	so.ShippingCost = input.ShippingCost
	so.Notes = input.Notes
	so.ShippingAddress = input.ShippingAddress
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateHeader(ctx, id, so); err != nil {
			return err
		}
		return recomputeTotals(ctx, tx, so)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "SO_UPDATE", id, nil)
	return s.Get(ctx, id)
}

// Get returns the order with lines and derived counts.
func (s *Service) Get(ctx context.Context, id int64) (OrderView, error) {
	so, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return view(so, lines), nil
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, 0, ErrValidation
	}
	if filter.PaymentStatus != "" && !ValidPaymentStatus(filter.PaymentStatus) {
		return nil, 0, ErrValidation
	}
	return s.repo.List(ctx, filter)
}

// AddLine appends an item row while the order is still draft and recomputes
// the stored totals.
func (s *Service) AddLine(ctx context.Context, actorID int64, orderID int64, input LineInput) (OrderView, error) {
	so, _, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if so.Status != StatusDraft {
		return OrderView{}, ErrInvalidState
	}
	if input.ItemID == 0 || input.Quantity < 1 || input.UnitPrice <= 0 || input.Discount < 0 {
		return OrderView{}, ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.InsertLine(ctx, Line{OrderID: orderID, ItemID: input.ItemID, Quantity: input.Quantity, UnitPrice: input.UnitPrice, Discount: input.Discount}); err != nil {
			return err
		}
		return recomputeTotals(ctx, tx, so)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "SO_LINE_ADD", orderID, map[string]any{"item_id": input.ItemID, "quantity": input.Quantity})
	return s.Get(ctx, orderID)
}

// UpdateLine rewrites quantity, unit price and discount of an existing line
// while the order is still draft and recomputes the stored totals. The item
// itself is immutable; swap items by removing and re-adding the line.
func (s *Service) UpdateLine(ctx context.Context, actorID int64, orderID, lineID int64, input LineInput) (OrderView, error) {
	so, _, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if so.Status != StatusDraft {
		return OrderView{}, ErrInvalidState
	}
	if input.Quantity < 1 || input.UnitPrice <= 0 || input.Discount < 0 {
		return OrderView{}, ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateLine(ctx, orderID, lineID, input.Quantity, input.UnitPrice, input.Discount); err != nil {
			return err
		}
		return recomputeTotals(ctx, tx, so)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "SO_LINE_UPDATE", orderID, map[string]any{"line_id": lineID, "quantity": input.Quantity})
	return s.Get(ctx, orderID)
}

// RemoveLine deletes an item row while the order is still draft and recomputes
// the stored totals.
func (s *Service) RemoveLine(ctx context.Context, actorID int64, orderID, lineID int64) (OrderView, error) {
	so, _, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if so.Status != StatusDraft {
		return OrderView{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLine(ctx, orderID, lineID); err != nil {
			return err
		}
		return recomputeTotals(ctx, tx, so)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "SO_LINE_REMOVE", orderID, map[string]any{"line_id": lineID})
	return s.Get(ctx, orderID)
}

// Confirm reserves stock for a draft order. Every line is checked under row
// locks; if any item has less than the required quantity the whole operation
// is rejected reporting all failing lines, and no quantities change. On
// success every line quantity is decremented and the status flips to
// confirmed in the same transaction.
func (s *Service) Confirm(ctx context.Context, actorID int64, id int64) error {
	so, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if so.Status != StatusDraft {
		return ErrInvalidState
	}
	if len(lines) == 0 {
		return ErrValidation
	}
	key := fmt.Sprintf("SO_CONFIRM:%s", so.OrderNumber)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "sales.confirm"); err != nil {
			return err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
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
		for _, line := range lines {
			if err := tx.AdjustItemQuantity(ctx, line.ItemID, -line.Quantity); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusConfirmed)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, actorID, "SO_CONFIRM", id, map[string]any{"number": so.OrderNumber, "lines": len(lines)})
	return nil
}

// MarkShipped moves a confirmed or processing order to shipped. No stock
// effect; stock was already taken at confirmation.
func (s *Service) MarkShipped(ctx context.Context, actorID int64, id int64) error {
	return s.transition(ctx, actorID, id, "SO_SHIP", StatusShipped, StatusConfirmed, StatusProcessing)
}

// MarkDelivered completes a shipped order and stamps the actual delivery date.
func (s *Service) MarkDelivered(ctx context.Context, actorID int64, id int64) error {
	so, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if so.Status != StatusShipped {
		return ErrInvalidState
	}
	now := time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.SetActualDeliveryDate(ctx, id, now); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, StatusDelivered)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "SO_DELIVER", id, map[string]any{"number": so.OrderNumber})
	return nil
}

// Cancel voids an order. Disallowed once delivered or already cancelled. When
// stock was reserved by confirmation it is restored line by line before the
// status flips, all in one transaction.
func (s *Service) Cancel(ctx context.Context, actorID int64, id int64) error {
	so, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if so.Status == StatusDelivered || so.Status == StatusCancelled {
		return ErrInvalidState
	}
	restore := stockHeld(so.Status)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if restore {
			for _, line := range lines {
				if _, err := tx.LockItem(ctx, line.ItemID); err != nil {
					return err
				}
				if err := tx.AdjustItemQuantity(ctx, line.ItemID, line.Quantity); err != nil {
					return err
				}
			}
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "SO_CANCEL", id, map[string]any{"from": so.Status, "stock_restored": restore})
	return nil
}

// SetPaymentStatus updates the payment marker independently of fulfilment.
func (s *Service) SetPaymentStatus(ctx context.Context, actorID int64, id int64, status string) error {
	if !ValidPaymentStatus(status) {
		return ErrValidation
	}
	so, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetPaymentStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "SO_PAYMENT_STATUS", id, map[string]any{"from": so.PaymentStatus, "to": status})
	return nil
}

// ForceStatus sets any valid status without transition guards or stock side
// effects. Every use is audited with the before and after states.
func (s *Service) ForceStatus(ctx context.Context, actorID int64, id int64, status string) error {
	if !ValidStatus(status) {
		return ErrValidation
	}
	so, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	// A forced move invalidates the confirm replay guard; an order forced back
	// to draft must be confirmable again.
	if s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, fmt.Sprintf("SO_CONFIRM:%s", so.OrderNumber))
	}
	s.recordAudit(ctx, actorID, "SO_FORCE_STATUS", id, map[string]any{"from": so.Status, "to": status})
	return nil
}

func (s *Service) transition(ctx context.Context, actorID int64, id int64, action, target string, allowedFrom ...string) error {
	so, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, from := range allowedFrom {
		if so.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, target)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, action, id, map[string]any{"from": so.Status, "to": target})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "sales_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
