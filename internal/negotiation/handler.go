package negotiation

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

// Handler exposes the RFQ and quote JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers RFQ and quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rfqs", h.listRFQs)
	r.Post("/rfqs", h.createRFQ)
	r.Get("/rfqs/{id}", h.getRFQ)
	r.Post("/rfqs/{id}/lines", h.addRFQLine)
	r.Delete("/rfqs/{id}/lines/{lineID}", h.removeRFQLine)
	r.Post("/rfqs/{id}/submit", h.submitRFQ)
	r.Post("/rfqs/{id}/start-review", h.startReview)
	r.Post("/rfqs/{id}/reject", h.rejectRFQ)
	r.Post("/rfqs/{id}/quote", h.createQuote)

	r.Get("/quotes", h.listQuotes)
	r.Get("/quotes/{id}", h.getQuote)
	r.Post("/quotes/{id}/lines", h.addQuoteLine)
	r.Put("/quotes/{id}/lines/{lineID}", h.updateQuoteLine)
	r.Delete("/quotes/{id}/lines/{lineID}", h.removeQuoteLine)
	r.Post("/quotes/{id}/send", h.sendQuote)
	r.Post("/quotes/{id}/accept", h.acceptQuote)
	r.Post("/quotes/{id}/reject", h.rejectQuote)
	r.Post("/quotes/{id}/request-revision", h.requestRevision)
	r.Post("/quotes/{id}/revisions", h.createRevision)
	r.Post("/quotes/{id}/convert", h.convertQuote)
}

func mapError(err error) error {
	var insufficient *catalog.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		return err
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: negotiation record", httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateNumber), errors.Is(err, ErrDuplicateLine), errors.Is(err, ErrAlreadyConverted):
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrQuoteExpired):
		return fmt.Errorf("%w: %s", httpx.ErrInvalidState, err.Error())
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

func listParams(r *http.Request) (status string, page, perPage int) {
	q := r.URL.Query()
	status = q.Get("status")
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	return status, page, perPage
}

func (h *Handler) listRFQs(w http.ResponseWriter, r *http.Request) {
	status, page, perPage := listParams(r)
	rfqs, total, err := h.service.ListRFQs(r.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		h.respondErr(w, "list rfqs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rfqs": rfqs, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) createRFQ(w http.ResponseWriter, r *http.Request) {
	var input CreateRFQInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rfq, err := h.service.CreateRFQ(r.Context(), actor.ID, input)
	if err != nil {
		h.respondErr(w, "create rfq", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rfq)
}

func (h *Handler) getRFQ(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	rfq, err := h.service.GetRFQ(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get rfq", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

func (h *Handler) addRFQLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input RFQLineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rfq, err := h.service.AddRFQLine(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "add rfq line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

func (h *Handler) removeRFQLine(w http.ResponseWriter, r *http.Request) {
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
	rfq, err := h.service.RemoveRFQLine(r.Context(), actor.ID, id, lineID)
	if err != nil {
		h.respondErr(w, "remove rfq line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

func (h *Handler) rfqTransition(w http.ResponseWriter, r *http.Request, op string, fn func(actorID, id int64) error) {
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
	rfq, err := h.service.GetRFQ(r.Context(), id)
	if err != nil {
		h.respondErr(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

func (h *Handler) submitRFQ(w http.ResponseWriter, r *http.Request) {
	h.rfqTransition(w, r, "submit rfq", func(actorID, id int64) error {
		return h.service.SubmitRFQ(r.Context(), actorID, id)
	})
}

func (h *Handler) startReview(w http.ResponseWriter, r *http.Request) {
	h.rfqTransition(w, r, "start rfq review", func(actorID, id int64) error {
		return h.service.StartReview(r.Context(), actorID, id)
	})
}

func (h *Handler) rejectRFQ(w http.ResponseWriter, r *http.Request) {
	h.rfqTransition(w, r, "reject rfq", func(actorID, id int64) error {
		return h.service.RejectRFQ(r.Context(), actorID, id)
	})
}

func (h *Handler) createQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input CreateQuoteInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	quote, err := h.service.CreateQuote(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) listQuotes(w http.ResponseWriter, r *http.Request) {
	status, page, perPage := listParams(r)
	quotes, total, err := h.service.ListQuotes(r.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		h.respondErr(w, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotes": quotes, "pagination": shared.NewPagination(page, perPage, total)})
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) addQuoteLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input QuoteLineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	quote, err := h.service.AddQuoteLine(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "add quote line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) updateQuoteLine(w http.ResponseWriter, r *http.Request) {
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
	var input QuoteLineInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	quote, err := h.service.UpdateQuoteLine(r.Context(), actor.ID, id, lineID, input)
	if err != nil {
		h.respondErr(w, "update quote line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) removeQuoteLine(w http.ResponseWriter, r *http.Request) {
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
	quote, err := h.service.RemoveQuoteLine(r.Context(), actor.ID, id, lineID)
	if err != nil {
		h.respondErr(w, "remove quote line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) quoteTransition(w http.ResponseWriter, r *http.Request, op string, fn func(actorID, id int64) error) {
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
	quote, err := h.service.GetQuote(r.Context(), id)
	if err != nil {
		h.respondErr(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) sendQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, "send quote", func(actorID, id int64) error {
		return h.service.SendToCustomer(r.Context(), actorID, id)
	})
}

func (h *Handler) acceptQuote(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, "accept quote", func(actorID, id int64) error {
		return h.service.Accept(r.Context(), actorID, id)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectQuote(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	h.quoteTransition(w, r, "reject quote", func(actorID, id int64) error {
		return h.service.RejectQuote(r.Context(), actorID, id, req.Reason)
	})
}

func (h *Handler) requestRevision(w http.ResponseWriter, r *http.Request) {
	h.quoteTransition(w, r, "request quote revision", func(actorID, id int64) error {
		return h.service.RequestRevision(r.Context(), actorID, id)
	})
}

func (h *Handler) createRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	revision, err := h.service.CreateRevision(r.Context(), actor.ID, id)
	if err != nil {
		h.respondErr(w, "create quote revision", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, revision)
}

func (h *Handler) convertQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input ConvertInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	quote, err := h.service.ConvertToOrder(r.Context(), actor.ID, id, input)
	if err != nil {
		h.respondErr(w, "convert quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}
