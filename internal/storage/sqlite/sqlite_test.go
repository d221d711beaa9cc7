package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/config"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/types"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()

	s, err := New(&config.Config{StoragePath: filepath.Join(t.TempDir(), "cards.db")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *SQLite, p types.Person) int64 {
	t.Helper()

	id, err := s.CreatePerson(p)
	if err != nil {
		t.Fatalf("CreatePerson(%+v) error = %v", p, err)
	}
	return id
}

func names(persons []types.Person) []string {
	out := make([]string, len(persons))
	for i, p := range persons {
		out[i] = p.Name
	}
	return out
}

func TestNewIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cards.db")
	cfg := &config.Config{StoragePath: path}

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	id, err := first.CreatePerson(types.Person{Role: types.RoleStudent, Name: "Keep Me"})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	first.Close()

	second, err := New(cfg)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer second.Close()

	if _, err := second.GetPersonByID(id); err != nil {
		t.Errorf("row lost after reopening: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().UTC().Add(-time.Second)

	in := types.Person{
		RFIDUID:    "04:1A:2B:3C",
		Role:       types.RoleStudent,
		Name:       "Alice",
		Department: "Computing",
		Category:   "Undergraduate",
		Program:    "BSc CS",
		Year:       "2",
		Extra:      "locker 12",
	}
	id := mustCreate(t, s, in)

	got, err := s.GetPersonByID(id)
	if err != nil {
		t.Fatalf("GetPersonByID() error = %v", err)
	}

	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if got.CreatedAt.Before(before) || got.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want recent UTC", got.CreatedAt)
	}

	want := in
	want.ID, want.CreatedAt = got.ID, got.CreatedAt
	if got != want {
		t.Errorf("GetPersonByID() = %+v, want %+v", got, want)
	}

	byUID, err := s.GetPersonByUID("04:1A:2B:3C")
	if err != nil || byUID.ID != id {
		t.Errorf("GetPersonByUID() = %+v, %v", byUID, err)
	}
}

func TestUIDIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	id := mustCreate(t, s, types.Person{RFIDUID: " 04:1a:2b:3c ", Role: types.RoleStudent, Name: "Alice"})

	got, err := s.GetPersonByID(id)
	if err != nil {
		t.Fatalf("GetPersonByID() error = %v", err)
	}
	if got.RFIDUID != "04:1A:2B:3C" {
		t.Errorf("stored uid = %q, want 04:1A:2B:3C", got.RFIDUID)
	}

	for _, uid := range []string{"04:1A:2B:3C", "04:1a:2b:3c"} {
		byUID, err := s.GetPersonByUID(uid)
		if err != nil || byUID.ID != id {
			t.Errorf("GetPersonByUID(%q) = %+v, %v", uid, byUID, err)
		}
	}

	_, err = s.CreatePerson(types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Dup"})
	var cerr *storage.ConstraintError
	if !errors.As(err, &cerr) || cerr.Field != "rfid_uid" {
		t.Errorf("CreatePerson() with same uid in other case error = %v, want ConstraintError on rfid_uid", err)
	}
}

func TestCreateConstraints(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, types.Person{RFIDUID: "AA:BB", Role: types.RoleFaculty, Name: "Dr Who"})

	tests := []struct {
		name      string
		person    types.Person
		wantField string
	}{
		{"duplicate uid", types.Person{RFIDUID: "AA:BB", Role: types.RoleStudent, Name: "Clone"}, "rfid_uid"},
		{"bad role", types.Person{Role: "janitor", Name: "Sam"}, "role"},
		{"no role", types.Person{Name: "Sam"}, "role"},
		{"no name", types.Person{Role: types.RoleStudent}, "name"},
		{"blank name", types.Person{Role: types.RoleStudent, Name: "   "}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePerson(tt.person)

			var cerr *storage.ConstraintError
			if !errors.As(err, &cerr) {
				t.Fatalf("CreatePerson() error = %v, want ConstraintError", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}

	all, _ := s.GetPersons()
	if len(all) != 1 {
		t.Errorf("rejected inserts left %d rows, want 1", len(all))
	}
}

func TestAbsentUIDsDoNotCollide(t *testing.T) {
	s := newTestStore(t)

	mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: "One"})
	mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: "Two", RFIDUID: "  "})

	if _, err := s.GetPersonByUID(""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPersonByUID(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	id := mustCreate(t, s, types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Alice", Year: "1"})
	orig, _ := s.GetPersonByID(id)

	updated, err := s.UpdatePersonByID(id, types.Person{
		Role:    types.RoleFaculty,
		Name:    "Alice Smith",
		Program: "PhD",
	})
	if err != nil {
		t.Fatalf("UpdatePersonByID() error = %v", err)
	}

	want := types.Person{
		ID:        id,
		Role:      types.RoleFaculty,
		Name:      "Alice Smith",
		Program:   "PhD",
		CreatedAt: orig.CreatedAt,
	}
	if updated != want {
		t.Errorf("UpdatePersonByID() = %+v, want %+v", updated, want)
	}

	// The UID was cleared, so the card is free for someone else.
	mustCreate(t, s, types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Bob"})
}

func TestUpdateErrors(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, types.Person{RFIDUID: "01", Role: types.RoleStudent, Name: "A"})
	mustCreate(t, s, types.Person{RFIDUID: "02", Role: types.RoleStudent, Name: "B"})

	if _, err := s.UpdatePersonByID(999, types.Person{Role: types.RoleStudent, Name: "X"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("update missing id error = %v, want ErrNotFound", err)
	}

	var cerr *storage.ConstraintError
	if _, err := s.UpdatePersonByID(a, types.Person{RFIDUID: "02", Role: types.RoleStudent, Name: "A"}); !errors.As(err, &cerr) {
		t.Errorf("update to taken uid error = %v, want ConstraintError", err)
	}
	if _, err := s.UpdatePersonByID(a, types.Person{Role: "admin", Name: "A"}); !errors.As(err, &cerr) {
		t.Errorf("update to bad role error = %v, want ConstraintError", err)
	}

	got, _ := s.GetPersonByID(a)
	if got.RFIDUID != "01" || got.Role != types.RoleStudent {
		t.Errorf("rejected updates changed the row: %+v", got)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	id := mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: "Gone"})

	if err := s.DeletePersonByID(id); err != nil {
		t.Fatalf("DeletePersonByID() error = %v", err)
	}
	if _, err := s.GetPersonByID(id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPersonByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := s.DeletePersonByID(id); err != nil {
		t.Errorf("second DeletePersonByID() error = %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.GetPersons()
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("GetPersons() on empty table = %#v, %v", empty, err)
	}

	for _, n := range []string{"charlie", "Bravo", "alpha", "Delta"} {
		mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: n})
	}

	got, err := s.GetPersons()
	if err != nil {
		t.Fatalf("GetPersons() error = %v", err)
	}
	want := []string{"alpha", "Bravo", "charlie", "Delta"}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("GetPersons() order = %v, want %v", names(got), want)
		}
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Alice", Department: "Physics"})
	mustCreate(t, s, types.Person{Role: types.RoleFaculty, Name: "bob", Program: "MSc Physics"})
	mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: "Carol_100%", Department: "Art"})
	mustCreate(t, s, types.Person{Role: types.RoleStudent, Name: "Dave", Extra: "physics fan"})

	all, _ := s.GetPersons()

	tests := []struct {
		query string
		want  []string
	}{
		{"", names(all)},
		{"physics", []string{"Alice", "bob"}},
		{"1a:2b", []string{"Alice"}},
		{"_", []string{"Carol_100%"}},
		{"%", []string{"Carol_100%"}},
		{"zzz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.SearchPersons(tt.query)
			if err != nil {
				t.Fatalf("SearchPersons() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("SearchPersons(%q) = %v, want %v", tt.query, names(got), tt.want)
			}
			for i := range tt.want {
				if got[i].Name != tt.want[i] {
					t.Errorf("SearchPersons(%q) = %v, want %v", tt.query, names(got), tt.want)
				}
			}
		})
	}
}

func TestAliceScenario(t *testing.T) {
	s := newTestStore(t)

	id := mustCreate(t, s, types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Alice"})
	list, _ := s.GetPersons()
	if len(list) != 1 || list[0].Name != "Alice" || list[0].RFIDUID != "04:1A:2B:3C" {
		t.Fatalf("after add: %+v", list)
	}

	if _, err := s.UpdatePersonByID(id, types.Person{RFIDUID: "04:1A:2B:3C", Role: types.RoleStudent, Name: "Alice Smith"}); err != nil {
		t.Fatalf("UpdatePersonByID() error = %v", err)
	}
	list, _ = s.GetPersons()
	if len(list) != 1 || list[0].Name != "Alice Smith" {
		t.Fatalf("after update: %+v", list)
	}

	if err := s.DeletePersonByID(id); err != nil {
		t.Fatalf("DeletePersonByID() error = %v", err)
	}
	list, _ = s.GetPersons()
	if len(list) != 0 {
		t.Fatalf("after delete: %+v", list)
	}
}
