package response

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aanand-mishra/rfid-cards/internal/app"
	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/supervisor"
)

func TestStatusFor(t *testing.T) {
	timeout := fmt.Errorf("WaitForCard: %w: %w", card.ErrTimeout, card.ErrNoCard)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"constraint", &storage.ConstraintError{Field: "role", Reason: "is required"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("GetPersonByID: %w", storage.ErrNotFound), http.StatusNotFound},
		{"busy", supervisor.ErrBusy, http.StatusConflict},
		{"no reader", fmt.Errorf("pcsc: %w", card.ErrNoReader), http.StatusServiceUnavailable},
		{"card timeout", timeout, http.StatusRequestTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout},
		{"mismatch", fmt.Errorf("%w: want AA", app.ErrUIDMismatch), http.StatusUnprocessableEntity},
		{"write failed", app.ErrWriteFailed, http.StatusUnprocessableEntity},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	if err := WriteJSON(w, http.StatusConflict, ActionError("scan", supervisor.ErrBusy)); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"status":"error","error":"scan failed: operation in progress, try again when it finishes"}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}
