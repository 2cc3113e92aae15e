package sales

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

type fakeRepo struct {
	orders     map[int64]SalesOrder
	lines      map[int64][]Line
	stock      map[int64]catalog.ItemStock
	nextID     int64
	nextLineID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[int64]SalesOrder{},
		lines:  map[int64][]Line{},
		stock:  map[int64]catalog.ItemStock{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := map[int64]catalog.ItemStock{}
	for id, stock := range f.stock {
		snapshot[id] = stock
	}
	if err := fn(ctx, f); err != nil {
		// Roll stock mutations back the way an aborted transaction would.
		f.stock = snapshot
		return err
	}
	return nil
}

func (f *fakeRepo) CreateOrder(ctx context.Context, so SalesOrder) (int64, error) {
	for _, existing := range f.orders {
		if existing.OrderNumber == so.OrderNumber {
			return 0, ErrDuplicateNumber
		}
	}
	f.nextID++
	so.ID = f.nextID
	f.orders[so.ID] = so
	return so.ID, nil
}

func (f *fakeRepo) UpdateHeader(ctx context.Context, id int64, so SalesOrder) error {
	existing, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	so.ID = id
	so.Status = existing.Status
	so.PaymentStatus = existing.PaymentStatus
	so.OrderNumber = existing.OrderNumber
	f.orders[id] = so
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	so, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	so.Status = status
	f.orders[id] = so
	return nil
}

func (f *fakeRepo) SetPaymentStatus(ctx context.Context, id int64, status string) error {
	so, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	so.PaymentStatus = status
	f.orders[id] = so
	return nil
}

func (f *fakeRepo) SetActualDeliveryDate(ctx context.Context, id int64, date time.Time) error {
	so, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	so.ActualDeliveryDate = &date
	f.orders[id] = so
	return nil
}

func (f *fakeRepo) SetTotals(ctx context.Context, id int64, subtotal, total float64) error {
	so, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	so.Subtotal = subtotal
	so.TotalAmount = total
	f.orders[id] = so
	return nil
}

func (f *fakeRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	for _, existing := range f.lines[line.OrderID] {
		if existing.ItemID == line.ItemID {
			return 0, ErrDuplicateLine
		}
	}
	f.nextLineID++
	line.ID = f.nextLineID
	f.lines[line.OrderID] = append(f.lines[line.OrderID], line)
	return line.ID, nil
}

func (f *fakeRepo) UpdateLine(ctx context.Context, orderID, lineID int64, quantity int, unitPrice, discount float64) error {
	for i, line := range f.lines[orderID] {
		if line.ID == lineID {
			line.Quantity = quantity
			line.UnitPrice = unitPrice
			line.Discount = discount
			f.lines[orderID][i] = line
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) DeleteLine(ctx context.Context, orderID, lineID int64) error {
	lines := f.lines[orderID]
	for i, line := range lines {
		if line.ID == lineID {
			f.lines[orderID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) ListLines(ctx context.Context, orderID int64) ([]Line, error) {
	return f.lines[orderID], nil
}

func (f *fakeRepo) LockItem(ctx context.Context, itemID int64) (catalog.ItemStock, error) {
	stock, ok := f.stock[itemID]
	if !ok {
		return catalog.ItemStock{}, catalog.ErrNotFound
	}
	return stock, nil
}

func (f *fakeRepo) AdjustItemQuantity(ctx context.Context, itemID int64, delta int) error {
	stock, ok := f.stock[itemID]
	if !ok {
		return catalog.ErrNotFound
	}
	stock.Quantity += delta
	f.stock[itemID] = stock
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id int64) (SalesOrder, []Line, error) {
	so, ok := f.orders[id]
	if !ok {
		return SalesOrder{}, nil, ErrNotFound
	}
	return so, f.lines[id], nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]SalesOrder, int, error) {
	var out []SalesOrder
	for _, so := range f.orders {
		if filter.Status != "" && so.Status != filter.Status {
			continue
		}
		out = append(out, so)
	}
	return out, len(out), nil
}

type fakeSequences struct {
	n int
}

func (f *fakeSequences) Next(ctx context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2608-%05d", prefix, f.n), nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeIdempotency struct {
	keys map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, scope string) error {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeAudit) {
	repo := newFakeRepo()
	audit := &fakeAudit{}
	return NewService(repo, &fakeSequences{}, audit, &fakeIdempotency{}), repo, audit
}

func seedStock(repo *fakeRepo, itemID int64, name string, qty int) {
	repo.stock[itemID] = catalog.ItemStock{ID: itemID, Name: name, Quantity: qty}
}

func seedOrder(t *testing.T, svc *Service, input CreateInput) OrderView {
	t.Helper()
	if input.CustomerID == 0 {
		input.CustomerID = 1
	}
	order, err := svc.Create(context.Background(), 1, input)
	require.NoError(t, err)
	return order
}

func TestCreateComputesStoredTotals(t *testing.T) {
	svc, _, _ := newTestService()

	order := seedOrder(t, svc, CreateInput{
		Discount: 4, Tax: 2.5, ShippingCost: 7,
		Lines: []LineInput{
			{ItemID: 1, Quantity: 2, UnitPrice: 10, Discount: 1},
			{ItemID: 2, Quantity: 3, UnitPrice: 5},
		},
	})
	require.Equal(t, "SO-2608-00001", order.OrderNumber)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, PaymentUnpaid, order.PaymentStatus)
	require.InDelta(t, 34.0, order.Subtotal, 0.001)
	require.InDelta(t, 39.5, order.TotalAmount, 0.001)
	require.Equal(t, 2, order.TotalItems)
	require.Equal(t, 5, order.TotalQuantity)
}

func TestAddLineRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService()
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: 10}}})

	updated, err := svc.AddLine(context.Background(), 1, order.ID, LineInput{ItemID: 2, Quantity: 1, UnitPrice: 5})
	require.NoError(t, err)
	require.InDelta(t, 25.0, updated.Subtotal, 0.001)
	require.InDelta(t, 25.0, updated.TotalAmount, 0.001)
}

func TestUpdateLineRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService()
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{
		{ItemID: 1, Quantity: 2, UnitPrice: 10},
		{ItemID: 2, Quantity: 1, UnitPrice: 5},
	}})

	updated, err := svc.UpdateLine(context.Background(), 1, order.ID, order.Lines[0].ID, LineInput{Quantity: 3, UnitPrice: 8, Discount: 2})
	require.NoError(t, err)
	require.InDelta(t, 27.0, updated.Subtotal, 0.001)
	require.Equal(t, 3, updated.Lines[0].Quantity)

	_, err = svc.UpdateLine(context.Background(), 1, order.ID, order.Lines[0].ID, LineInput{Quantity: 0, UnitPrice: 8})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdateLine(context.Background(), 1, order.ID, 999, LineInput{Quantity: 1, UnitPrice: 8})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveLineRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService()
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{
		{ItemID: 1, Quantity: 2, UnitPrice: 10},
		{ItemID: 2, Quantity: 1, UnitPrice: 5},
	}})

	updated, err := svc.RemoveLine(context.Background(), 1, order.ID, order.Lines[1].ID)
	require.NoError(t, err)
	require.InDelta(t, 20.0, updated.Subtotal, 0.001)
	require.Len(t, updated.Lines, 1)
}

func TestLineEditsRejectedAfterConfirmation(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))

	_, err := svc.AddLine(context.Background(), 1, order.ID, LineInput{ItemID: 2, Quantity: 1, UnitPrice: 5})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.UpdateLine(context.Background(), 1, order.ID, order.Lines[0].ID, LineInput{Quantity: 5, UnitPrice: 10})
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.RemoveLine(context.Background(), 1, order.ID, order.Lines[0].ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmDecrementsStock(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})

	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))

	require.Equal(t, 6, repo.stock[1].Quantity)
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
}

func TestConfirmRejectsAllShortagesAtOnce(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 2)
	seedStock(repo, 2, "Gadget", 0)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{
		{ItemID: 1, Quantity: 5, UnitPrice: 10},
		{ItemID: 2, Quantity: 1, UnitPrice: 3},
	}})

	err := svc.Confirm(context.Background(), 1, order.ID)
	var insufficient *catalog.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortages, 2)
	require.Equal(t, catalog.StockShortage{Item: "Widget", Required: 5, Available: 2}, insufficient.Shortages[0])
	require.Equal(t, catalog.StockShortage{Item: "Gadget", Required: 1, Available: 0}, insufficient.Shortages[1])

	// Nothing moved and the order stayed draft.
	require.Equal(t, 2, repo.stock[1].Quantity)
	require.Equal(t, 0, repo.stock[2].Quantity)
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestConfirmOnlyFromDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))

	require.ErrorIs(t, svc.Confirm(context.Background(), 1, order.ID), ErrInvalidState)
	// Stock was only decremented once.
	require.Equal(t, 6, repo.stock[1].Quantity)
}

func TestConfirmRequiresLines(t *testing.T) {
	svc, _, _ := newTestService()
	order := seedOrder(t, svc, CreateInput{})

	require.ErrorIs(t, svc.Confirm(context.Background(), 1, order.ID), ErrValidation)
}

func TestCancelAfterConfirmRestoresStock(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))
	require.Equal(t, 6, repo.stock[1].Quantity)

	require.NoError(t, svc.Cancel(context.Background(), 1, order.ID))

	require.Equal(t, 10, repo.stock[1].Quantity)
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestCancelDraftLeavesStockAlone(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})

	require.NoError(t, svc.Cancel(context.Background(), 1, order.ID))
	require.Equal(t, 10, repo.stock[1].Quantity)
}

func TestCancelAfterShipmentRestoresStock(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))
	require.NoError(t, svc.MarkShipped(context.Background(), 1, order.ID))

	require.NoError(t, svc.Cancel(context.Background(), 1, order.ID))
	require.Equal(t, 10, repo.stock[1].Quantity)
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))
	require.NoError(t, svc.MarkShipped(context.Background(), 1, order.ID))
	require.NoError(t, svc.MarkDelivered(context.Background(), 1, order.ID))

	require.ErrorIs(t, svc.Cancel(context.Background(), 1, order.ID), ErrInvalidState)
	require.ErrorIs(t, svc.Cancel(context.Background(), 1, order.ID), ErrInvalidState)
}

func TestMarkDeliveredStampsActualDate(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))

	require.ErrorIs(t, svc.MarkDelivered(context.Background(), 1, order.ID), ErrInvalidState)

	require.NoError(t, svc.MarkShipped(context.Background(), 1, order.ID))
	require.NoError(t, svc.MarkDelivered(context.Background(), 1, order.ID))

	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.ActualDeliveryDate)
	require.WithinDuration(t, time.Now(), *got.ActualDeliveryDate, time.Minute)
}

func TestSetPaymentStatus(t *testing.T) {
	svc, _, audit := newTestService()
	order := seedOrder(t, svc, CreateInput{})

	require.ErrorIs(t, svc.SetPaymentStatus(context.Background(), 1, order.ID, "overdue"), ErrValidation)

	require.NoError(t, svc.SetPaymentStatus(context.Background(), 1, order.ID, PaymentPartial))
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentPartial, got.PaymentStatus)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "SO_PAYMENT_STATUS", last.Action)
	require.Equal(t, PaymentUnpaid, last.Meta["from"])
}

func TestForceStatusBypassesGuardsButAudits(t *testing.T) {
	svc, repo, audit := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 4, UnitPrice: 10}}})

	require.NoError(t, svc.ForceStatus(context.Background(), 9, order.ID, StatusProcessing))
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, got.Status)
	// No stock side effects from the escape hatch.
	require.Equal(t, 10, repo.stock[1].Quantity)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "SO_FORCE_STATUS", last.Action)
	require.Equal(t, StatusDraft, last.Meta["from"])
	require.Equal(t, StatusProcessing, last.Meta["to"])
}

func TestForceStatusToDraftAllowsReconfirm(t *testing.T) {
	svc, repo, _ := newTestService()
	seedStock(repo, 1, "Widget", 10)
	order := seedOrder(t, svc, CreateInput{Lines: []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: 10}}})
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))

	// Forcing back to draft clears the confirm replay guard, so the order can
	// be confirmed again and reserves stock again.
	require.NoError(t, svc.ForceStatus(context.Background(), 1, order.ID, StatusDraft))
	require.NoError(t, svc.Confirm(context.Background(), 1, order.ID))
	require.Equal(t, 6, repo.stock[1].Quantity)
}

func TestMarkShippedFromProcessing(t *testing.T) {
	svc, _, _ := newTestService()
	order := seedOrder(t, svc, CreateInput{})
	require.NoError(t, svc.ForceStatus(context.Background(), 1, order.ID, StatusProcessing))

	require.NoError(t, svc.MarkShipped(context.Background(), 1, order.ID))
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusShipped, got.Status)
}
