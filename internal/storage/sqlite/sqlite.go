// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// WHY SQLite?
// ───────────
// The roster lives next to the reader on one workstation. SQLite stores
// everything in a single file (cards.db by default), needs no server
// process, and is fast enough for a few thousand cards.
//
// Importing go-sqlite3 registers the "sqlite3" driver with database/sql.
// We also use its Error type to recognise constraint violations and turn
// them into storage.ConstraintError.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/config"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/types"

	"github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// personColumns is the SELECT list shared by every read query.
// Keep it in the same order as the Scan calls in scanPerson.
const personColumns = "id, rfid_uid, role, name, department, category, program, year, extra, created_at"

// New opens the SQLite database at cfg.StoragePath, creates the persons
// table if it does not already exist, and returns a ready-to-use *SQLite.
//
// Calling New on every process start is safe: the schema statements are
// idempotent and existing rows are never touched.
func New(cfg *config.Config) (*SQLite, error) {
	if dir := filepath.Dir(cfg.StoragePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.New: create db directory: %w", err)
		}
	}

	// _busy_timeout lets the menu and the HTTP server share one file
	// without failing immediately on a locked database.
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", cfg.StoragePath))
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// sql.Open is lazy. Ping forces a real connection so an unwritable
	// path fails here, at startup, instead of on the first user action.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", err)
	}

	// Schema:
	//   id        : integer primary key, auto-incremented by SQLite
	//   rfid_uid  : colon-separated hex UID, NULL when no card is bound
	//   role      : 'student' or 'faculty', enforced by CHECK
	//   created_at: RFC 3339 UTC timestamp, written once on insert
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS persons (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			rfid_uid   TEXT    UNIQUE,
			role       TEXT    NOT NULL CHECK(role IN ('student','faculty')),
			name       TEXT    NOT NULL,
			department TEXT,
			category   TEXT,
			program    TEXT,
			year       TEXT,
			extra      TEXT,
			created_at TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_persons_name ON persons(name COLLATE NOCASE);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// CreatePerson validates and inserts a new row into the persons table.
//
// The validator rejects a missing name or unknown role before any SQL
// runs. A duplicate rfid_uid is only detectable by SQLite's UNIQUE
// constraint and comes back from Exec.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) CreatePerson(person types.Person) (int64, error) {
	person = storage.Normalize(person)
	if err := storage.ValidatePerson(person); err != nil {
		return 0, err
	}

	stmt, err := s.Db.Prepare(`
		INSERT INTO persons (rfid_uid, role, name, department, category, program, year, extra, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("CreatePerson: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := stmt.Exec(
		nullable(person.RFIDUID),
		string(person.Role),
		person.Name,
		nullable(person.Department),
		nullable(person.Category),
		nullable(person.Program),
		nullable(person.Year),
		nullable(person.Extra),
		now,
	)
	if err != nil {
		if cerr := constraintError(err); cerr != nil {
			return 0, cerr
		}
		return 0, fmt.Errorf("CreatePerson: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("CreatePerson: last insert id: %w", err)
	}

	return lastID, nil
}

// GetPersonByID fetches exactly one person matched by primary key.
func (s *SQLite) GetPersonByID(id int64) (types.Person, error) {
	stmt, err := s.Db.Prepare("SELECT " + personColumns + " FROM persons WHERE id = ? LIMIT 1")
	if err != nil {
		return types.Person{}, fmt.Errorf("GetPersonByID: prepare: %w", err)
	}
	defer stmt.Close()

	person, err := scanPerson(stmt.QueryRow(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Person{}, fmt.Errorf("no person found with id %d: %w", id, storage.ErrNotFound)
		}
		return types.Person{}, fmt.Errorf("GetPersonByID: scan: %w", err)
	}

	return person, nil
}

// GetPersonByUID is used after a scan to tell whether the card is
// already registered.
func (s *SQLite) GetPersonByUID(uid string) (types.Person, error) {
	uid = storage.CanonicalUID(uid)
	if uid == "" {
		return types.Person{}, fmt.Errorf("no person found with empty uid: %w", storage.ErrNotFound)
	}

	stmt, err := s.Db.Prepare("SELECT " + personColumns + " FROM persons WHERE rfid_uid = ? LIMIT 1")
	if err != nil {
		return types.Person{}, fmt.Errorf("GetPersonByUID: prepare: %w", err)
	}
	defer stmt.Close()

	person, err := scanPerson(stmt.QueryRow(uid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Person{}, fmt.Errorf("no person found with uid %s: %w", uid, storage.ErrNotFound)
		}
		return types.Person{}, fmt.Errorf("GetPersonByUID: scan: %w", err)
	}

	return person, nil
}

// GetPersons returns all persons ordered by name, case-insensitive.
// id breaks ties so equal names keep insertion order.
func (s *SQLite) GetPersons() ([]types.Person, error) {
	return s.queryPersons("GetPersons",
		"SELECT "+personColumns+" FROM persons ORDER BY name COLLATE NOCASE, id")
}

// ─────────────────────────────────────────────────────────────────────────────
// SearchPersons matches query as a substring of name, department, program
// or rfid_uid.
//
// LIKE in SQLite is case-insensitive for ASCII, which lines up with the
// NOCASE ordering used by GetPersons. The wildcard characters % and _ in
// the user's query are escaped so they match literally. An empty query
// becomes '%%', which matches every row (name is NOT NULL), so
// SearchPersons("") returns the same rows as GetPersons.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) SearchPersons(query string) ([]types.Person, error) {
	like := "%" + escapeLike(query) + "%"
	return s.queryPersons("SearchPersons", `
		SELECT `+personColumns+` FROM persons
		WHERE name LIKE ? ESCAPE '\'
		   OR department LIKE ? ESCAPE '\'
		   OR program LIKE ? ESCAPE '\'
		   OR rfid_uid LIKE ? ESCAPE '\'
		ORDER BY name COLLATE NOCASE, id
	`, like, like, like, like)
}

// UpdatePersonByID replaces all mutable fields of an existing person.
// An empty RFIDUID clears the card binding. id and created_at are never
// written here.
func (s *SQLite) UpdatePersonByID(id int64, person types.Person) (types.Person, error) {
	person = storage.Normalize(person)
	if err := storage.ValidatePerson(person); err != nil {
		return types.Person{}, err
	}

	stmt, err := s.Db.Prepare(`
		UPDATE persons
		SET rfid_uid = ?, role = ?, name = ?, department = ?, category = ?, program = ?, year = ?, extra = ?
		WHERE id = ?
	`)
	if err != nil {
		return types.Person{}, fmt.Errorf("UpdatePersonByID: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.Exec(
		nullable(person.RFIDUID),
		string(person.Role),
		person.Name,
		nullable(person.Department),
		nullable(person.Category),
		nullable(person.Program),
		nullable(person.Year),
		nullable(person.Extra),
		id,
	)
	if err != nil {
		if cerr := constraintError(err); cerr != nil {
			return types.Person{}, cerr
		}
		return types.Person{}, fmt.Errorf("UpdatePersonByID: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return types.Person{}, fmt.Errorf("UpdatePersonByID: rows affected: %w", err)
	}
	if affected == 0 {
		return types.Person{}, fmt.Errorf("no person found with id %d: %w", id, storage.ErrNotFound)
	}

	// Re-fetch the record so we return exactly what is stored in the DB.
	return s.GetPersonByID(id)
}

// DeletePersonByID removes a person row by primary key.
func (s *SQLite) DeletePersonByID(id int64) error {
	stmt, err := s.Db.Prepare("DELETE FROM persons WHERE id = ?")
	if err != nil {
		return fmt.Errorf("DeletePersonByID: prepare: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(id); err != nil {
		return fmt.Errorf("DeletePersonByID: exec: %w", err)
	}

	return nil
}

func (s *SQLite) queryPersons(op, query string, args ...any) ([]types.Person, error) {
	stmt, err := s.Db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("%s: prepare: %w", op, err)
	}
	defer stmt.Close()

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	persons := make([]types.Person, 0)
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		persons = append(persons, person)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iteration: %w", op, err)
	}

	return persons, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (types.Person, error) {
	var (
		p                                           types.Person
		role, createdAt                             string
		uid, department, category, program, year, x sql.NullString
	)

	if err := row.Scan(
		&p.ID,
		&uid,
		&role,
		&p.Name,
		&department,
		&category,
		&program,
		&year,
		&x,
		&createdAt,
	); err != nil {
		return types.Person{}, err
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return types.Person{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	p.Role = types.Role(role)
	p.RFIDUID = uid.String
	p.Department = department.String
	p.Category = category.String
	p.Program = program.String
	p.Year = year.String
	p.Extra = x.String
	p.CreatedAt = created
	return p, nil
}

// nullable maps the Go "absent" value (empty string) to SQL NULL.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// constraintError converts a go-sqlite3 constraint failure into a
// *storage.ConstraintError, or returns nil for any other error.
func constraintError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return nil
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return &storage.ConstraintError{Field: "rfid_uid", Reason: "already assigned to another person", Err: err}
	case sqlite3.ErrConstraintCheck:
		return &storage.ConstraintError{Field: "role", Reason: "must be student or faculty", Err: err}
	case sqlite3.ErrConstraintNotNull:
		return &storage.ConstraintError{Reason: "a required field is missing", Err: err}
	default:
		return &storage.ConstraintError{Reason: sqliteErr.Error(), Err: err}
	}
}
