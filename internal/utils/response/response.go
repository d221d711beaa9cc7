// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aanand-mishra/rfid-cards/internal/app"
	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/supervisor"
	"github.com/go-playground/validator/v10"
)

// Response is the standard envelope returned for error cases:
//
//	{ "status": "error", "error": "field Name is required" }
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Error  string `json:"error"`  // human-readable error detail
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps any Go error into our standard Response shape.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// ActionError wraps an action failure with its user-facing cause.
func ActionError(action string, err error) Response {
	return Response{
		Status: StatusError,
		Error:  fmt.Sprintf("%s failed: %s", action, app.Describe(err)),
	}
}

// StatusFor picks the HTTP status code for an action error.
//
//	constraint violation        → 400
//	unknown id                  → 404
//	card operation in progress  → 409
//	no card before the timeout  → 408
//	no reader / pcscd down      → 503
//	card refused or mismatched  → 422
//	anything else               → 500
func StatusFor(err error) int {
	var cerr *storage.ConstraintError
	switch {
	case errors.As(err, &cerr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, card.ErrNoReader):
		return http.StatusServiceUnavailable
	case errors.Is(err, card.ErrNoCard), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, app.ErrWriteFailed), errors.Is(err, app.ErrUIDMismatch), errors.Is(err, app.ErrNoUID):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError converts a slice of validator.FieldError values into
// a single human-readable Response.
//
// Example output:
//
//	{ "status": "error", "error": "field Name is required, field Role is invalid" }
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", e.Field()))
		case "oneof":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must be one of: %s", e.Field(), e.Param()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Response{
		Status: StatusError,
		Error:  strings.Join(errMessages, ", "),
	}
}
