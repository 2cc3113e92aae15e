package sales

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ops/meridian-ops/internal/catalog"
	"github.com/meridian-ops/meridian-ops/internal/platform/httpx"
	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// Handler exposes the sales order JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales-orders", h.list)
	r.Post("/sales-orders", h.create)
	r.Get("/sales-orders/export", h.export)
	r.Get("/sales-orders/{id}", h.get)
	r.Put("/sales-orders/{id}", h.update)
	r.Post("/sales-orders/{id}/lines", h.addLine)
	r.Put("/sales-orders/{id}/lines/{lineID}", h.updateLine)
	r.Delete("/sales-orders/{id}/lines/{lineID}", h.removeLine)
	r.Post("/sales-orders/{id}/confirm", h.confirm)
	r.Post("/sales-orders/{id}/ship", h.ship)
	r.Post("/sales-orders/{id}/deliver", h.deliver)
	r.Post("/sales-orders/{id}/cancel", h.cancel)
	r.Post("/sales-orders/{id}/payment-status", h.paymentStatus)
	r.Post("/sales-orders/{id}/force-status", h.forceStatus)
}

func mapError(err error) error {
	var insufficient *catalog.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: sales order record", httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateNumber), errors.Is(err, ErrDuplicateLine), errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error())
	case errors.Is(err, ErrInvalidState):
		return fmt.Errorf("%w: sales order", httpx.ErrInvalidState)
	case errors.Is(err, ErrValidation):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	default:
		return err
	}
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, mapError(err))
}

func pathID(r *http.Request, key string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, key), 10, 64)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	orders, total, err := h.service.List(r.Context(), ListFilter{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		CustomerID:    customerID,
		Search:        q.Get("search"),
		Limit:         perPage,
		Offset:        (page - 1) * perPage,
	})
	if err != nil {
		h.respondErr(w, "list sales orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales_orders": orders, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	orders, _, err := h.service.List(r.Context(), ListFilter{Status: r.URL.Query().Get("status"), Limit: exportLimit})
	if err != nil {
		h.respondErr(w, "export sales orders", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sales_orders.csv"`)
	if err := WriteOrdersCSV(w, orders); err != nil {
		h.logger.Error("export sales orders csv", slog.Any("error", err))
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	for _, line := range input.Lines {
		if err := h.validate.Struct(line); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.Create(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.Update(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "update sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input LineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.AddLine(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "add sales order line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input LineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.UpdateLine(r.Context(), actor.ID, id, lineID, input)
	if err != nil {
		h.respondErr(w, "update sales order line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lineID, err := pathID(r, "lineID")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.RemoveLine(r.Context(), actor.ID, id, lineID)
	if err != nil {
		h.respondErr(w, "remove sales order line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(actorID, id int64) error) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := fn(actor.ID, id); err != nil {
		h.respondErr(w, op, err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm sales order", func(actorID, id int64) error {
		return h.service.Confirm(r.Context(), actorID, id)
	})
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ship sales order", func(actorID, id int64) error {
		return h.service.MarkShipped(r.Context(), actorID, id)
	})
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "deliver sales order", func(actorID, id int64) error {
		return h.service.MarkDelivered(r.Context(), actorID, id)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel sales order", func(actorID, id int64) error {
		return h.service.Cancel(r.Context(), actorID, id)
	})
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	h.transition(w, r, "set sales order payment status", func(actorID, id int64) error {
		return h.service.SetPaymentStatus(r.Context(), actorID, id, req.Status)
	})
}

func (h *Handler) forceStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	h.transition(w, r, "force sales order status", func(actorID, id int64) error {
		return h.service.ForceStatus(r.Context(), actorID, id, req.Status)
	})
}
