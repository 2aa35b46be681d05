package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/nimburion/storefront/pkg/middleware"
	"github.com/nimburion/storefront/pkg/repository/document"
	"github.com/nimburion/storefront/pkg/server/router"
)

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// internalMessage replaces the text of errors that may leak backend details.
const internalMessage = "an unexpected error occurred"

// StatusOf returns the HTTP status of an error kind.
func StatusOf(kind document.Kind) int {
	switch kind {
	case document.InvalidArgument:
		return http.StatusBadRequest
	case document.Unauthorized:
		return http.StatusUnauthorized
	case document.Forbidden:
		return http.StatusForbidden
	case document.NotFound:
		return http.StatusNotFound
	case document.Conflict:
		return http.StatusConflict
	case document.PartiallyCreated, document.PartiallyLinked:
		return http.StatusBadGateway
	case document.BackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapError maps application errors to HTTP responses. Errors carrying
// ErrorDetails expose them; internal errors only expose a generic message.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	requestID := middleware.RequestIDFrom(ctx)

	var bindErr *router.BindError
	if errors.As(err, &bindErr) {
		status := http.StatusBadRequest
		if errors.Is(bindErr, router.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		return status, ErrorResponse{
			Error:     errorCategory(status),
			Code:      string(document.InvalidArgument),
			Message:   bindErr.Error(),
			RequestID: requestID,
		}
	}

	kind := document.KindOf(err)
	status := StatusOf(kind)
	resp := ErrorResponse{
		Error:     errorCategory(status),
		Code:      string(kind),
		Message:   err.Error(),
		RequestID: requestID,
	}
	if status == http.StatusInternalServerError {
		resp.Message = internalMessage
	}

	var detailer interface{ ErrorDetails() map[string]any }
	if errors.As(err, &detailer) {
		resp.Details = detailer.ErrorDetails()
	}
	return status, resp
}

// WriteError is a router.ErrorHandler writing MapError responses.
func WriteError(c router.Context, err error) {
	_ = Error(c, err)
}

// WriteErrors renders handler errors as soon as they are returned and passes
// the error on, so outer middleware sees both the final status and the cause.
// Register it innermost among the global middleware.
func WriteErrors() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			err := next(c)
			if err != nil && !c.Response().Written() {
				WriteError(c, err)
			}
			return err
		}
	}
}

func errorCategory(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusBadGateway:
		return "incomplete_write"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= 500 {
			return "internal_server_error"
		}
		return "application_error"
	}
}
