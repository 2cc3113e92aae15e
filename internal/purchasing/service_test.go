package purchasing

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
	orders     map[int64]PurchaseOrder
	lines      map[int64][]Line
	stock      map[int64]catalog.ItemStock
	nextID     int64
	nextLineID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: map[int64]PurchaseOrder{},
		lines:  map[int64][]Line{},
		stock:  map[int64]catalog.ItemStock{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	for _, existing := range f.orders {
		if existing.OrderNumber == po.OrderNumber {
			return 0, ErrDuplicateNumber
		}
	}
	f.nextID++
	po.ID = f.nextID
	f.orders[po.ID] = po
	return po.ID, nil
}

func (f *fakeRepo) UpdateHeader(ctx context.Context, id int64, po PurchaseOrder) error {
	existing, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	po.ID = id
	po.Status = existing.Status
	po.OrderNumber = existing.OrderNumber
	f.orders[id] = po
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id int64, status string) error {
	po, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	f.orders[id] = po
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

func (f *fakeRepo) Get(ctx context.Context, id int64) (PurchaseOrder, []Line, error) {
	po, ok := f.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, f.lines[id], nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range f.orders {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		out = append(out, po)
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

func newTestService() (*Service, *fakeRepo, *fakeAudit) {
	repo := newFakeRepo()
	audit := &fakeAudit{}
	return NewService(repo, &fakeSequences{}, audit), repo, audit
}

func seedOrder(t *testing.T, svc *Service, repo *fakeRepo, lines ...LineInput) OrderView {
	t.Helper()
	for _, line := range lines {
		if _, ok := repo.stock[line.ItemID]; !ok {
			repo.stock[line.ItemID] = catalog.ItemStock{ID: line.ItemID, Name: fmt.Sprintf("Item %d", line.ItemID), Quantity: 0}
		}
	}
	order, err := svc.Create(context.Background(), 1, CreateInput{Lines: lines})
	require.NoError(t, err)
	return order
}

func TestCreateAllocatesNumberAndDerivesTotals(t *testing.T) {
	svc, repo, audit := newTestService()

	order := seedOrder(t, svc, repo,
		LineInput{ItemID: 1, Quantity: 3, UnitPrice: 10},
		LineInput{ItemID: 2, Quantity: 1, UnitPrice: 4.5},
	)
	require.Equal(t, "PO-2608-00001", order.OrderNumber)
	require.Equal(t, StatusDraft, order.Status)
	require.InDelta(t, 34.5, order.TotalAmount, 0.001)
	require.Equal(t, 2, order.TotalItems)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "PO_CREATE", audit.logs[0].Action)
}

func TestCreateNormalizesCallerNumber(t *testing.T) {
	svc, _, _ := newTestService()

	order, err := svc.Create(context.Background(), 1, CreateInput{OrderNumber: "  po-77 "})
	require.NoError(t, err)
	require.Equal(t, "PO-77", order.OrderNumber)
}

func TestAddLineRejectsDuplicateItem(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 2, UnitPrice: 5})

	_, err := svc.AddLine(context.Background(), 1, order.ID, LineInput{ItemID: 1, Quantity: 4, UnitPrice: 5})
	require.ErrorIs(t, err, ErrDuplicateLine)
}

func TestAddLineAllowedWhilePending(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 2, UnitPrice: 5})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))

	updated, err := svc.AddLine(context.Background(), 1, order.ID, LineInput{ItemID: 2, Quantity: 1, UnitPrice: 3})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 2)
}

func TestAddLineRejectedAfterApproval(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 2, UnitPrice: 5})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	require.NoError(t, svc.Approve(context.Background(), 1, order.ID))

	_, err := svc.AddLine(context.Background(), 1, order.ID, LineInput{ItemID: 2, Quantity: 1, UnitPrice: 3})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitOnlyFromDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 2, UnitPrice: 5})

	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	require.ErrorIs(t, svc.Submit(context.Background(), 1, order.ID), ErrInvalidState)
}

func TestReceiveIncrementsStock(t *testing.T) {
	svc, repo, audit := newTestService()
	order := seedOrder(t, svc, repo,
		LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2},
		LineInput{ItemID: 2, Quantity: 3, UnitPrice: 1},
	)
	repo.stock[1] = catalog.ItemStock{ID: 1, Name: "Widget", Quantity: 10}
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	require.NoError(t, svc.Approve(context.Background(), 1, order.ID))

	require.NoError(t, svc.Receive(context.Background(), 1, order.ID))

	require.Equal(t, 15, repo.stock[1].Quantity)
	require.Equal(t, 3, repo.stock[2].Quantity)
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.Equal(t, "PO_RECEIVE", audit.logs[len(audit.logs)-1].Action)
}

func TestReceiveAllowedFromPending(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))

	require.NoError(t, svc.Receive(context.Background(), 1, order.ID))
	require.Equal(t, 5, repo.stock[1].Quantity)
}

func TestReceiveRejectedWhenAlreadyReceived(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	require.NoError(t, svc.Receive(context.Background(), 1, order.ID))

	require.ErrorIs(t, svc.Receive(context.Background(), 1, order.ID), ErrInvalidState)
	// Stock was only incremented once.
	require.Equal(t, 5, repo.stock[1].Quantity)
}

func TestReceiveRejectedFromDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})

	require.ErrorIs(t, svc.Receive(context.Background(), 1, order.ID), ErrInvalidState)
}

func TestCancelAllowedFromNonTerminal(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))

	require.NoError(t, svc.Cancel(context.Background(), 1, order.ID))
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	// Cancellation before receipt never touches stock.
	require.Equal(t, 0, repo.stock[1].Quantity)
}

func TestCancelRejectedAfterReceipt(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})
	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	require.NoError(t, svc.Receive(context.Background(), 1, order.ID))

	require.ErrorIs(t, svc.Cancel(context.Background(), 1, order.ID), ErrInvalidState)
}

func TestForceStatusValidatesMembershipAndAudits(t *testing.T) {
	svc, repo, audit := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})

	require.ErrorIs(t, svc.ForceStatus(context.Background(), 9, order.ID, "shipped"), ErrValidation)

	require.NoError(t, svc.ForceStatus(context.Background(), 9, order.ID, StatusApproved))
	got, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "PO_FORCE_STATUS", last.Action)
	require.Equal(t, int64(9), last.ActorID)
	require.Equal(t, StatusDraft, last.Meta["from"])
	require.Equal(t, StatusApproved, last.Meta["to"])
}

func TestUpdateHeaderOnlyInDraft(t *testing.T) {
	svc, repo, _ := newTestService()
	order := seedOrder(t, svc, repo, LineInput{ItemID: 1, Quantity: 5, UnitPrice: 2})

	due := time.Now().AddDate(0, 0, 14)
	updated, err := svc.Update(context.Background(), 1, order.ID, UpdateInput{Notes: "rush", ExpectedDeliveryDate: &due})
	require.NoError(t, err)
	require.Equal(t, "rush", updated.Notes)

	require.NoError(t, svc.Submit(context.Background(), 1, order.ID))
	_, err = svc.Update(context.Background(), 1, order.ID, UpdateInput{Notes: "late"})
	require.ErrorIs(t, err, ErrInvalidState)
}
