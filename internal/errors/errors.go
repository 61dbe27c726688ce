package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError is the wire form of every failure: `{"status":"error","message":...}`
// with the HTTP status carried out of band. Internal errors are logged with
// their stack server-side and converted to a generic message carrying the
// underlying error text.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements render.Renderer for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates an APIError with the given HTTP status and message.
func New(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Status:     "error",
		Message:    message,
	}
}

// Predefined errors for the validation taxonomy.
var (
	ErrMissingParameter = New(http.StatusBadRequest, "missing parameter A, B, or C")
	ErrMissingPassword  = New(http.StatusBadRequest, "missing parameter password")
	ErrUnauthorized     = New(http.StatusForbidden, "invalid admin password")
	ErrInvalidKey       = New(http.StatusForbidden, "invalid license key")
	ErrDeviceMismatch   = New(http.StatusForbidden, "license key is bound to another device")
)

// InvalidParameter reports a parameter that is present but malformed.
func InvalidParameter(field, reason string) *APIError {
	return New(http.StatusBadRequest, fmt.Sprintf("invalid parameter %s: %s", field, reason))
}

// StoreUnreachable reports a binding store failure.
func StoreUnreachable(err error) *APIError {
	return New(http.StatusInternalServerError, fmt.Sprintf("binding store unreachable: %v", err))
}

// BindingWriteFailed reports a failed first-use binding persist.
func BindingWriteFailed(err error) *APIError {
	return New(http.StatusInternalServerError, fmt.Sprintf("device binding failed: %v", err))
}

// ExtractionFailed reports a note extraction failure with the underlying
// error text.
func ExtractionFailed(err error) *APIError {
	return New(http.StatusInternalServerError, fmt.Sprintf("note extraction failed: %v", err))
}

// Internal reports an unexpected failure with a generic message.
func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
}
