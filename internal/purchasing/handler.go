package purchasing

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

// Handler exposes the purchase order JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/purchase-orders", h.list)
	r.Post("/purchase-orders", h.create)
	r.Get("/purchase-orders/{id}", h.get)
	r.Put("/purchase-orders/{id}", h.update)
	r.Post("/purchase-orders/{id}/lines", h.addLine)
	r.Delete("/purchase-orders/{id}/lines/{lineID}", h.removeLine)
	r.Post("/purchase-orders/{id}/submit", h.submit)
	r.Post("/purchase-orders/{id}/approve", h.approve)
	r.Post("/purchase-orders/{id}/receive", h.receive)
	r.Post("/purchase-orders/{id}/cancel", h.cancel)
	r.Post("/purchase-orders/{id}/force-status", h.forceStatus)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: purchase order record", httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateNumber), errors.Is(err, ErrDuplicateLine):
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error())
	case errors.Is(err, ErrInvalidState):
		return fmt.Errorf("%w: purchase order", httpx.ErrInvalidState)
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
	supplierID, _ := strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	orders, total, err := h.service.List(r.Context(), ListFilter{
		Status:     q.Get("status"),
		SupplierID: supplierID,
		Search:     q.Get("search"),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	})
	if err != nil {
		h.respondErr(w, "list purchase orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": orders, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get purchase order", err)
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
	for _, line := range input.Lines {
		if err := h.validate.Struct(line); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.Create(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create purchase order", err)
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
		h.respondErr(w, "update purchase order", err)
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
		h.respondErr(w, "add purchase order line", err)
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
		h.respondErr(w, "remove purchase order line", err)
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

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "submit purchase order", func(actorID, id int64) error {
		return h.service.Submit(r.Context(), actorID, id)
	})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve purchase order", func(actorID, id int64) error {
		return h.service.Approve(r.Context(), actorID, id)
	})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "receive purchase order", func(actorID, id int64) error {
		return h.service.Receive(r.Context(), actorID, id)
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel purchase order", func(actorID, id int64) error {
		return h.service.Cancel(r.Context(), actorID, id)
	})
}

type forceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) forceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req forceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.ForceStatus(r.Context(), actor.ID, id, req.Status); err != nil {
		h.respondErr(w, "force purchase order status", err)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, "force purchase order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
