// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid state transition")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorPayload is the structured error contract returned by transition
// endpoints: a message plus optional per-line detail rows.
type ErrorPayload struct {
	Error string `json:"error"`
	Items any    `json:"items,omitempty"`
}

// DetailedError lets domain errors attach the Items slice of ErrorPayload.
type DetailedError interface {
	error
	Detail() any
}

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	var detailed DetailedError
	if errors.As(err, &detailed) {
		JSON(w, http.StatusBadRequest, ErrorPayload{Error: detailed.Error(), Items: detailed.Detail()})
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		JSON(w, http.StatusNotFound, ErrorPayload{Error: err.Error()})
	case errors.Is(err, ErrDuplicate):
		JSON(w, http.StatusConflict, ErrorPayload{Error: err.Error()})
	case errors.Is(err, ErrValidation):
		JSON(w, http.StatusBadRequest, ErrorPayload{Error: err.Error()})
	case errors.Is(err, ErrInvalidState):
		JSON(w, http.StatusConflict, ErrorPayload{Error: err.Error()})
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
