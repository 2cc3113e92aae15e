package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error)
	ListLowStock(ctx context.Context) ([]Item, error)
	ListOutOfStock(ctx context.Context) ([]Item, error)
	CreateItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, id int64, item Item) error
	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (int64, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates catalog and stock flows.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache *Cache
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

const defaultLowStockThreshold = 10

// ItemInput carries create and update payloads.
type ItemInput struct {
	Name              string  `json:"name" validate:"required"`
	SKU               string  `json:"sku" validate:"required"`
	Description       string  `json:"description"`
	CategoryID        *int64  `json:"category_id"`
	SupplierID        *int64  `json:"supplier_id"`
	Quantity          int     `json:"quantity" validate:"gte=0"`
	LowStockThreshold int     `json:"low_stock_threshold" validate:"gte=0"`
	UnitPrice         float64 `json:"unit_price" validate:"gte=0"`
	IsActive          *bool   `json:"is_active"`
}

func (input ItemInput) toItem() Item {
	item := Item{
		Name:              strings.TrimSpace(input.Name),
		SKU:               strings.ToUpper(strings.TrimSpace(input.SKU)),
		Description:       input.Description,
		CategoryID:        input.CategoryID,
		SupplierID:        input.SupplierID,
		Quantity:          input.Quantity,
		LowStockThreshold: input.LowStockThreshold,
		UnitPrice:         input.UnitPrice,
		IsActive:          true,
	}
	if input.IsActive != nil {
		item.IsActive = *input.IsActive
	}
	if item.LowStockThreshold == 0 {
		item.LowStockThreshold = defaultLowStockThreshold
	}
	return item
}

// CreateItem validates and persists a new item.
func (s *Service) CreateItem(ctx context.Context, actorID int64, input ItemInput) (Item, error) {
	item := input.toItem()
	if item.Name == "" || item.SKU == "" || item.Quantity < 0 || item.UnitPrice < 0 {
		return Item{}, ErrValidation
	}
	id, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "ITEM_CREATE", id, map[string]any{"sku": item.SKU})
	s.bump(ctx)
	return s.repo.GetItem(ctx, id)
}

// UpdateItem rewrites the mutable fields of an item. Stock quantity is not
// touched here; it only moves through AdjustStock and order transitions.
func (s *Service) UpdateItem(ctx context.Context, actorID int64, id int64, input ItemInput) (Item, error) {
	item := input.toItem()
	if item.Name == "" || item.SKU == "" || item.UnitPrice < 0 {
		return Item{}, ErrValidation
	}
	if err := s.repo.UpdateItem(ctx, id, item); err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "ITEM_UPDATE", id, map[string]any{"sku": item.SKU})
	s.bump(ctx)
	return s.repo.GetItem(ctx, id)
}

// GetItem fetches one item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns a filtered page of items with the unpaged total.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filter)
}

// AdjustStock applies a manual delta to an item quantity. The row stays locked
// for the duration of the transaction so concurrent adjustments and order
// confirmations serialise; a delta that would push quantity below zero is
// rejected without touching the row.
func (s *Service) AdjustStock(ctx context.Context, actorID int64, itemID int64, delta int, reason string) (Item, error) {
	if delta == 0 {
		return Item{}, ErrValidation
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.LockItem(ctx, itemID)
		if err != nil {
			return err
		}
		if stock.Quantity+delta < 0 {
			return ErrNegativeStock
		}
		return tx.AdjustQuantity(ctx, itemID, delta)
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, actorID, "STOCK_ADJUST", itemID, map[string]any{"delta": delta, "reason": reason})
	s.bump(ctx)
	return s.repo.GetItem(ctx, itemID)
}

// StockReportRow is one item as rendered in stock reports.
type StockReportRow struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	SKU               string  `json:"sku"`
	Quantity          int     `json:"quantity"`
	LowStockThreshold int     `json:"low_stock_threshold"`
	StockStatus       string  `json:"stock_status"`
	TotalValue        float64 `json:"total_value"`
}

func reportRows(items []Item) []StockReportRow {
	rows := make([]StockReportRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, StockReportRow{
			ID:                item.ID,
			Name:              item.Name,
			SKU:               item.SKU,
			Quantity:          item.Quantity,
			LowStockThreshold: item.LowStockThreshold,
			StockStatus:       item.StockStatus(),
			TotalValue:        item.TotalValue(),
		})
	}
	return rows
}

// LowStockReport returns active items at or below threshold, cached until the
// next stock mutation bumps the cache version.
func (s *Service) LowStockReport(ctx context.Context) ([]StockReportRow, error) {
	key, err := s.cache.BuildKey(ctx, "catalog", "low_stock")
	if err != nil {
		return nil, err
	}
	var rows []StockReportRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		items, err := s.repo.ListLowStock(ctx)
		if err != nil {
			return nil, err
		}
		return reportRows(items), nil
	})
	return rows, err
}

// OutOfStockReport returns active items with zero quantity.
func (s *Service) OutOfStockReport(ctx context.Context) ([]StockReportRow, error) {
	key, err := s.cache.BuildKey(ctx, "catalog", "out_of_stock")
	if err != nil {
		return nil, err
	}
	var rows []StockReportRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		items, err := s.repo.ListOutOfStock(ctx)
		if err != nil {
			return nil, err
		}
		return reportRows(items), nil
	})
	return rows, err
}

// CategoryInput carries category payloads.
type CategoryInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// CreateCategory persists a category.
func (s *Service) CreateCategory(ctx context.Context, actorID int64, input CategoryInput) (Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Category{}, ErrValidation
	}
	id, err := s.repo.CreateCategory(ctx, Category{Name: strings.TrimSpace(input.Name), Description: input.Description})
	if err != nil {
		return Category{}, err
	}
	s.recordAudit(ctx, actorID, "CATEGORY_CREATE", id, map[string]any{"name": input.Name})
	return s.repo.GetCategory(ctx, id)
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// SupplierInput carries supplier payloads.
type SupplierInput struct {
	Name          string `json:"name" validate:"required"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

// CreateSupplier persists a supplier.
func (s *Service) CreateSupplier(ctx context.Context, actorID int64, input SupplierInput) (Supplier, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Supplier{}, ErrValidation
	}
	id, err := s.repo.CreateSupplier(ctx, Supplier{
		Name:          strings.TrimSpace(input.Name),
		ContactPerson: input.ContactPerson,
		Email:         input.Email,
		Phone:         input.Phone,
		Address:       input.Address,
	})
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "SUPPLIER_CREATE", id, map[string]any{"name": input.Name})
	return s.repo.GetSupplier(ctx, id)
}

// GetSupplier fetches one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns all suppliers.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "catalog", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func (s *Service) bump(ctx context.Context) {
	_ = s.cache.Bump(ctx)
}
