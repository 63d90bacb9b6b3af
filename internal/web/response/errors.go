package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weft-api/weft/internal/hooks"
	"github.com/weft-api/weft/internal/resource"
	"github.com/weft-api/weft/internal/store"
)

// ErrorObject is one JSON:API error entry
type ErrorObject struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ErrorDocument is a top-level JSON:API error document
type ErrorDocument struct {
	Errors []*ErrorObject `json:"errors"`
}

// RenderError renders an error as a JSON:API error document with the given
// status.
func RenderError(w http.ResponseWriter, status int, err error) {
	doc := &ErrorDocument{Errors: []*ErrorObject{{
		Status: http.StatusText(status),
		Code:   errorCodeFromStatus(status),
		Title:  http.StatusText(status),
		Detail: err.Error(),
	}}}

	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// RenderDomainError maps store and hook-engine errors to their HTTP status
// and renders them. Unknown errors become 500s with a generic detail so
// internals never leak.
func RenderDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, resource.ErrUnknownResource),
		errors.Is(err, resource.ErrUnknownRelationship),
		errors.Is(err, hooks.ErrUnknownResourceType):
		RenderError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrUniqueViolation):
		RenderError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrForeignKeyViolation),
		errors.Is(err, store.ErrNotNullViolation),
		errors.Is(err, store.ErrCheckViolation),
		errors.Is(err, store.ErrFieldNotFound),
		errors.Is(err, store.ErrRelationshipField):
		RenderError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, hooks.ErrSingleCardinality):
		RenderError(w, http.StatusInternalServerError, err)
	default:
		RenderError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, err error) {
	RenderError(w, http.StatusBadRequest, err)
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, err error) {
	RenderError(w, http.StatusUnauthorized, err)
}

// RenderForbidden renders a 403 Forbidden error
func RenderForbidden(w http.ResponseWriter, err error) {
	RenderError(w, http.StatusForbidden, err)
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, err error) {
	RenderError(w, http.StatusNotFound, err)
}

// errorCodeFromStatus maps HTTP status codes to stable error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
