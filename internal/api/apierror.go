package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rewired-gh/skupricer/internal/catalog"
	"github.com/rewired-gh/skupricer/internal/pricer"
	"github.com/rewired-gh/skupricer/internal/sku"
	"github.com/rewired-gh/skupricer/internal/storage"
)

// Error represents a structured API error response.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ToJSON converts the error to JSON bytes.
func (e *Error) ToJSON() []byte {
	data, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   e,
	})
	return data
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{StatusCode: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

// Unprocessable creates a 422 error for well-formed requests the service will not price.
func Unprocessable(message string) *Error {
	return &Error{StatusCode: http.StatusUnprocessableEntity, Code: "UNSUPPORTED_ITEM", Message: message}
}

// InternalError creates a 500 Internal Server Error.
func InternalError(message string) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &Error{StatusCode: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &Error{StatusCode: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: message}
}

// FromError maps domain errors to API errors. Unknown errors become 500s without
// leaking their text.
func FromError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, sku.ErrMalformedKey):
		return BadRequest(err.Error())
	case errors.Is(err, pricer.ErrUnsupportedItem):
		return Unprocessable(err.Error())
	case errors.Is(err, pricer.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return ServiceUnavailable(err.Error())
	default:
		return InternalError("")
	}
}
