// Package storage defines the Storage interface: a contract that any
// database backend must satisfy to hold the person roster.
//
// The controller and both front-ends depend only on this interface, so a
// test can hand them a throwaway SQLite file (or any other implementation)
// without touching the real cards.db.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aanand-mishra/rfid-cards/internal/types"
	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned when no person matches the requested id or UID.
var ErrNotFound = errors.New("person not found")

// Storage is the database contract.
type Storage interface {
	// CreatePerson inserts a new person and returns the auto-generated
	// primary-key ID. created_at is assigned by the store.
	CreatePerson(person types.Person) (int64, error)

	// GetPersonByID fetches a single person by primary key.
	// Returns ErrNotFound if there is no such row.
	GetPersonByID(id int64) (types.Person, error)

	// GetPersonByUID fetches the person bound to a card UID.
	// Returns ErrNotFound if the card is not registered.
	GetPersonByUID(uid string) (types.Person, error)

	// GetPersons returns every person ordered by name, case-insensitive.
	// Returns an empty slice (not nil) if there are no rows.
	GetPersons() ([]types.Person, error)

	// SearchPersons returns persons whose name, department, program or
	// rfid_uid contains query, in the same order as GetPersons.
	SearchPersons(query string) ([]types.Person, error)

	// UpdatePersonByID replaces every mutable field of an existing person
	// and returns the stored record. Returns ErrNotFound for an unknown id.
	UpdatePersonByID(id int64, person types.Person) (types.Person, error)

	// DeletePersonByID removes a person. Deleting a missing id is not an error.
	DeletePersonByID(id int64) error

	// Close releases the database handle.
	Close() error
}

// ConstraintError reports a write rejected by a data rule: duplicate UID,
// unknown role or a missing required field. Nothing is written when it
// is returned.
type ConstraintError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConstraintError) Error() string {
	if e.Field == "" {
		return "constraint violated: " + e.Reason
	}
	return fmt.Sprintf("constraint violated on %s: %s", e.Field, e.Reason)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

var validate = validator.New()

// Normalize trims surrounding whitespace from every text field so that
// "  " counts as absent, the same as "". The UID is also brought to the
// upper-case form readers report, see CanonicalUID.
func Normalize(p types.Person) types.Person {
	p.RFIDUID = CanonicalUID(p.RFIDUID)
	p.Role = types.Role(strings.TrimSpace(string(p.Role)))
	p.Name = strings.TrimSpace(p.Name)
	p.Department = strings.TrimSpace(p.Department)
	p.Category = strings.TrimSpace(p.Category)
	p.Program = strings.TrimSpace(p.Program)
	p.Year = strings.TrimSpace(p.Year)
	p.Extra = strings.TrimSpace(p.Extra)
	return p
}

// CanonicalUID trims uid and upper-cases its hex digits, so one card maps
// to one stored value whichever case it was typed in.
func CanonicalUID(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}

// ValidatePerson checks the validate:"..." tags on p and converts the
// first failure into a *ConstraintError.
func ValidatePerson(p types.Person) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConstraintError{Reason: err.Error(), Err: err}
	}

	fe := verrs[0]
	field := columnName(fe.Field())
	switch fe.ActualTag() {
	case "required":
		return &ConstraintError{Field: field, Reason: "is required", Err: err}
	case "oneof":
		return &ConstraintError{
			Field:  field,
			Reason: fmt.Sprintf("must be one of %q or %q", types.RoleStudent, types.RoleFaculty),
			Err:    err,
		}
	default:
		return &ConstraintError{Field: field, Reason: "is invalid", Err: err}
	}
}

func columnName(field string) string {
	switch field {
	case "RFIDUID":
		return "rfid_uid"
	case "CreatedAt":
		return "created_at"
	default:
		return strings.ToLower(field)
	}
}
