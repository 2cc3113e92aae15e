package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// Handler exposes the catalog JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.listItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Put("/items/{id}", h.updateItem)
	r.Post("/items/{id}/adjust-stock", h.adjustStock)
	r.Get("/items/export", h.exportItems)
	r.Get("/reports/low-stock", h.lowStockReport)
	r.Get("/reports/out-of-stock", h.outOfStockReport)
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/suppliers", h.listSuppliers)
	r.Post("/suppliers", h.createSupplier)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, "catalog record")
	case errors.Is(err, ErrDuplicateSKU):
		return fmt.Errorf("%w: sku", httpx.ErrDuplicate)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNegativeStock):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	default:
		return err
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, mapError(err))
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	filter := ItemFilter{
		Search:     q.Get("search"),
		CategoryID: categoryID,
		SupplierID: supplierID,
		ActiveOnly: q.Get("active") == "true",
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	}
	items, total, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondErr(w, "list items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var input ItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.CreateItem(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input ItemInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.UpdateItem(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "update item", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type adjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	item, err := h.service.AdjustStock(r.Context(), actor.ID, id, req.Delta, req.Reason)
	if err != nil {
		h.respondErr(w, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) lowStockReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStockReport(r.Context())
	if err != nil {
		h.respondErr(w, "low stock report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) outOfStockReport(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.OutOfStockReport(r.Context())
	if err != nil {
		h.respondErr(w, "out of stock report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows})
}

func (h *Handler) exportItems(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.service.ListItems(r.Context(), ItemFilter{Limit: exportLimit})
	if err != nil {
		h.respondErr(w, "export items", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="items.csv"`)
	if err := WriteItemsCSV(w, items); err != nil {
		h.logger.Error("export items csv", slog.Any("error", err))
	}
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.respondErr(w, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	category, err := h.service.CreateCategory(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context())
	if err != nil {
		h.respondErr(w, "list suppliers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var input SupplierInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	supplier, err := h.service.CreateSupplier(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}
