// Package person contains the HTTP handlers for the roster and the card
// reader.
//
// Handlers are built with the closure / factory pattern: each exported
// function receives the app.Actions it needs and returns the
// http.HandlerFunc the router calls on every request. The handlers hold no
// state of their own; every request maps to one controller action.
package person

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aanand-mishra/rfid-cards/internal/app"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/types"
	"github.com/aanand-mishra/rfid-cards/internal/utils/response"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Routes registers every handler on mux.
//
//	GET    /api/persons        → list, or search with ?q=
//	POST   /api/persons        → add a person
//	GET    /api/persons/{id}   → get one person
//	PUT    /api/persons/{id}   → replace a person's fields
//	DELETE /api/persons/{id}   → delete a person
//	POST   /api/card/scan      → wait for a card and read it
//	POST   /api/card/write     → write a name to a card
func Routes(mux *http.ServeMux, actions app.Actions) {
	mux.HandleFunc("GET /api/persons", GetList(actions))
	mux.HandleFunc("POST /api/persons", New(actions))
	mux.HandleFunc("GET /api/persons/{id}", GetByID(actions))
	mux.HandleFunc("PUT /api/persons/{id}", Update(actions))
	mux.HandleFunc("DELETE /api/persons/{id}", Delete(actions))
	mux.HandleFunc("POST /api/card/scan", Scan(actions))
	mux.HandleFunc("POST /api/card/write", Write(actions))
}

// decodePerson reads and validates a person from the request body. It
// writes the 400 response itself and returns false on failure.
func decodePerson(w http.ResponseWriter, r *http.Request) (types.Person, bool) {
	var p types.Person

	err := json.NewDecoder(r.Body).Decode(&p)
	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("request body is empty")))
		return p, false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		return p, false
	}

	// Validate what the store will see, not the raw body.
	p = storage.Normalize(p)
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
		} else {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
		}
		return p, false
	}

	return p, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(errors.New("invalid id: must be an integer")))
		return 0, false
	}
	return id, true
}

func fail(w http.ResponseWriter, action string, err error) {
	status := response.StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(action+" failed", slog.String("error", err.Error()))
	}
	response.WriteJSON(w, status, response.ActionError(action, err))
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/persons
//
// Request body (JSON):
//
//	{ "rfid_uid": "04:1A:2B:3C", "role": "student", "name": "Alice" }
//
// Success response (201 Created):
//
//	{ "id": 1 }
//
// ─────────────────────────────────────────────────────────────────────────────
func New(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := decodePerson(w, r)
		if !ok {
			return
		}

		id, err := actions.Add(p)
		if err != nil {
			fail(w, "add", err)
			return
		}

		response.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
	}
}

// GetList handles GET /api/persons and GET /api/persons?q=...
// Returns [] (not null) when nothing matches.
func GetList(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persons, err := actions.Search(r.URL.Query().Get("q"))
		if err != nil {
			fail(w, "search", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, persons)
	}
}

// GetByID handles GET /api/persons/{id}
func GetByID(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		p, err := actions.Get(id)
		if err != nil {
			fail(w, "get", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, p)
	}
}

// Update handles PUT /api/persons/{id}
// Replaces ALL mutable fields; omitting rfid_uid clears the card binding.
func Update(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		p, ok := decodePerson(w, r)
		if !ok {
			return
		}

		updated, err := actions.Update(id, p)
		if err != nil {
			fail(w, "update", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, updated)
	}
}

// Delete handles DELETE /api/persons/{id}
// Deleting an id that does not exist still answers 200.
func Delete(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := actions.Delete(id); err != nil {
			fail(w, "delete", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// Scan handles POST /api/card/scan
//
// Blocks until a card is tapped or the scan timeout passes. A second scan
// or write while one is running answers 409.
func Scan(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := actions.Scan(r.Context())
		if err != nil {
			fail(w, "scan", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, res)
	}
}

// writeRequest is the body of POST /api/card/write. An empty rfid_uid
// writes to the next card tapped.
type writeRequest struct {
	RFIDUID string `json:"rfid_uid"`
	Name    string `json:"name" validate:"required"`
}

// Write handles POST /api/card/write
func Write(actions app.Actions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req writeRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(errors.New("request body is empty")))
			return
		}
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}
		if err := validate.Struct(req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(verrs))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		if err := actions.Write(r.Context(), req.RFIDUID, req.Name); err != nil {
			fail(w, "write", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": response.StatusOK})
	}
}
