// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, the card controller and the text menu can all import
// types without depending on each other.
package types

import "time"

// Role is the kind of person a card belongs to.
// Only the two constants below are ever persisted; the database enforces
// this with a CHECK constraint and the validator enforces it before that.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

// Valid reports whether r is one of the allowed roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleFaculty
}

// Person represents one roster entry, optionally bound to an RFID card.
//
// Optional columns are plain strings: the empty string means "absent" and
// is stored as SQL NULL. That keeps the UNIQUE constraint on rfid_uid
// meaningful only for cards that are actually assigned.
//
// Struct tags serve two purposes:
//
//  1. json:"..." : controls how the field appears when encoded to JSON.
//
//  2. validate:"...": rules checked by the go-playground/validator
//     package. "required" means the field must be non-zero / non-empty.
type Person struct {
	ID         int64     `json:"id"`
	RFIDUID    string    `json:"rfid_uid,omitempty"`
	Role       Role      `json:"role"       validate:"required,oneof=student faculty"`
	Name       string    `json:"name"       validate:"required"`
	Department string    `json:"department,omitempty"`
	Category   string    `json:"category,omitempty"`
	Program    string    `json:"program,omitempty"`
	Year       string    `json:"year,omitempty"`
	Extra      string    `json:"extra,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
