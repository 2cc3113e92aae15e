package purchasing

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-ops/meridian-ops/internal/ledger"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, []Line, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
}

// SequencePort allocates order numbers.
type SequencePort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the purchase order lifecycle.
type Service struct {
	repo      RepositoryPort
	sequences SequencePort
	audit     AuditPort
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, sequences SequencePort, audit AuditPort) *Service {
	return &Service{repo: repo, sequences: sequences, audit: audit}
}

// LineInput is one item row of a create or add-line payload.
type LineInput struct {
	ItemID    int64   `json:"item_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	UnitPrice float64 `json:"unit_price" validate:"gt=0"`
}

// CreateInput carries the order creation payload.
type CreateInput struct {
	OrderNumber          string      `json:"order_number"`
	SupplierID           *int64      `json:"supplier_id"`
	CustomerID           *int64      `json:"customer_id"`
	OrderDate            time.Time   `json:"order_date"`
	ExpectedDeliveryDate *time.Time  `json:"expected_delivery_date"`
	Notes                string      `json:"notes"`
	Lines                []LineInput `json:"lines"`
}

// OrderView is the order plus its lines and derived totals.
type OrderView struct {
	PurchaseOrder
	Lines       []Line  `json:"lines"`
	TotalAmount float64 `json:"total_amount"`
	TotalItems  int     `json:"total_items"`
}

func view(po PurchaseOrder, lines []Line) OrderView {
	totals := Totals(lines)
	return OrderView{
		PurchaseOrder: po,
		Lines:         lines,
		TotalAmount:   totals.Total,
		TotalItems:    ledger.TotalItems(LedgerLines(lines)),
	}
}

// Create persists a new draft order with its lines. An empty order number is
// allocated from the PO sequence.
func (s *Service) Create(ctx context.Context, actorID int64, input CreateInput) (OrderView, error) {
	number := ledger.NormalizeNumber(input.OrderNumber)
	if number == "" {
		var err error
		number, err = s.sequences.Next(ctx, "PO")
		if err != nil {
			return OrderView{}, err
		}
	}
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now()
	}
	po := PurchaseOrder{
		OrderNumber:          number,
		SupplierID:           input.SupplierID,
		CustomerID:           input.CustomerID,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		Status:               StatusDraft,
		Notes:                input.Notes,
		CreatedBy:            actorID,
	}
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			if line.ItemID == 0 || line.Quantity < 1 || line.UnitPrice <= 0 {
				return ErrValidation
			}
			if _, err := tx.InsertLine(ctx, Line{OrderID: id, ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice}); err != nil {
				return err
			}
		}
		orderID = id
		return nil
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "PO_CREATE", orderID, map[string]any{"number": number})
	return s.Get(ctx, orderID)
}

// UpdateInput carries header updates.
type UpdateInput struct {
	SupplierID           *int64     `json:"supplier_id"`
	CustomerID           *int64     `json:"customer_id"`
	OrderDate            time.Time  `json:"order_date"`
	ExpectedDeliveryDate *time.Time `json:"expected_delivery_date"`
	Notes                string     `json:"notes"`
}

// Update rewrites the header of a draft order.
func (s *Service) Update(ctx context.Context, actorID int64, id int64, input UpdateInput) (OrderView, error) {
	po, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	if po.Status != StatusDraft {
		return OrderView{}, ErrInvalidState
	}
	po.SupplierID = input.SupplierID
	po.CustomerID = input.CustomerID
	if !input.OrderDate.IsZero() {
		po.OrderDate = input.OrderDate
	}
	po.ExpectedDeliveryDate = input.ExpectedDeliveryDate
	po.Notes = input.Notes
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateHeader(ctx, id, po)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "PO_UPDATE", id, nil)
	return s.Get(ctx, id)
}

// Get returns the order with lines and derived totals.
func (s *Service) Get(ctx context.Context, id int64) (OrderView, error) {
	po, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return view(po, lines), nil
}

// List returns a filtered page of orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		return nil, 0, ErrValidation
	}
	return s.repo.List(ctx, filter)
}

// AddLine appends an item row. Allowed while the order is draft or pending.
func (s *Service) AddLine(ctx context.Context, actorID int64, orderID int64, input LineInput) (OrderView, error) {
	po, _, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if po.Status != StatusDraft && po.Status != StatusPending {
		return OrderView{}, ErrInvalidState
	}
	if input.ItemID == 0 || input.Quantity < 1 || input.UnitPrice <= 0 {
		return OrderView{}, ErrValidation
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.InsertLine(ctx, Line{OrderID: orderID, ItemID: input.ItemID, Quantity: input.Quantity, UnitPrice: input.UnitPrice})
		return err
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "PO_LINE_ADD", orderID, map[string]any{"item_id": input.ItemID, "quantity": input.Quantity})
	return s.Get(ctx, orderID)
}

// RemoveLine deletes an item row. Allowed while the order is draft or pending.
func (s *Service) RemoveLine(ctx context.Context, actorID int64, orderID, lineID int64) (OrderView, error) {
	po, _, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if po.Status != StatusDraft && po.Status != StatusPending {
		return OrderView{}, ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteLine(ctx, orderID, lineID)
	})
	if err != nil {
		return OrderView{}, err
	}
	s.recordAudit(ctx, actorID, "PO_LINE_REMOVE", orderID, map[string]any{"line_id": lineID})
	return s.Get(ctx, orderID)
}

// Submit moves a draft order to pending.
func (s *Service) Submit(ctx context.Context, actorID int64, id int64) error {
	return s.transition(ctx, actorID, id, "PO_SUBMIT", StatusPending, StatusDraft)
}

// Approve moves a pending order to approved.
func (s *Service) Approve(ctx context.Context, actorID int64, id int64) error {
	return s.transition(ctx, actorID, id, "PO_APPROVE", StatusApproved, StatusPending)
}

// Receive books arrived stock. Allowed from approved or pending and rejected
// once received. Every line quantity is added to the referenced item; line
// locks and the status flip commit atomically.
func (s *Service) Receive(ctx context.Context, actorID int64, id int64) error {
	po, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if po.Status == StatusReceived {
		return ErrInvalidState
	}
	if po.Status != StatusApproved && po.Status != StatusPending {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range lines {
			if _, err := tx.LockItem(ctx, line.ItemID); err != nil {
				return err
			}
			if err := tx.AdjustItemQuantity(ctx, line.ItemID, line.Quantity); err != nil {
				return err
			}
		}
		return tx.UpdateStatus(ctx, id, StatusReceived)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_RECEIVE", id, map[string]any{"number": po.OrderNumber, "lines": len(lines)})
	return nil
}

// Cancel voids an order from any non-terminal state. Purchase orders never
// decrement stock before receipt, so no restoration is needed.
func (s *Service) Cancel(ctx context.Context, actorID int64, id int64) error {
	po, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if po.Status == StatusReceived || po.Status == StatusCancelled {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_CANCEL", id, map[string]any{"from": po.Status})
	return nil
}

// ForceStatus sets any valid status without transition guards or stock side
// effects. Every use is audited with the before and after states.
func (s *Service) ForceStatus(ctx context.Context, actorID int64, id int64, status string) error {
	if !ValidStatus(status) {
		return ErrValidation
	}
	po, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "PO_FORCE_STATUS", id, map[string]any{"from": po.Status, "to": status})
	return nil
}

func (s *Service) transition(ctx context.Context, actorID int64, id int64, action, target string, allowedFrom ...string) error {
	po, _, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, from := range allowedFrom {
		if po.Status == from {
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
	s.recordAudit(ctx, actorID, action, id, map[string]any{"from": po.Status, "to": target})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
