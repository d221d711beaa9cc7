// Package cli is the numbered text-menu front-end. It reads choices from
// an io.Reader and prints to an io.Writer, so it runs the same on a
// terminal and in tests.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/app"
	"github.com/aanand-mishra/rfid-cards/internal/types"
)

// Menu drives app.Actions from a line-oriented prompt.
type Menu struct {
	In      io.Reader
	Out     io.Writer
	Actions app.Actions

	// ScanTimeout is only shown to the user; the controller enforces it.
	ScanTimeout time.Duration

	lines <-chan string
}

// errQuit ends Run when the input is exhausted or ctx is cancelled.
var errQuit = errors.New("quit")

// Run shows the menu until the user picks 0, the input ends, or ctx is
// cancelled. Action failures are printed and never end the loop.
func (m *Menu) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	lines := make(chan string)
	m.lines = lines
	go readLines(m.In, lines, done)

	for {
		if err := ctx.Err(); err != nil {
			m.println("Bye")
			return nil
		}

		m.showMenu()
		choice, err := m.prompt(ctx, "Choice", "")
		if err != nil {
			m.println("Bye")
			return nil
		}

		switch choice {
		case "1":
			err = m.list()
		case "2":
			err = m.search(ctx)
		case "3":
			err = m.add(ctx)
		case "4":
			err = m.update(ctx)
		case "5":
			err = m.delete(ctx)
		case "6":
			err = m.scan(ctx)
		case "7":
			err = m.write(ctx)
		case "0":
			m.println("Bye")
			return nil
		default:
			m.println("Unknown choice")
		}

		if errors.Is(err, errQuit) {
			m.println("Bye")
			return nil
		}
	}
}

func (m *Menu) showMenu() {
	m.println("")
	m.println("RFID Card Manager")
	m.println("1) List records")
	m.println("2) Search records")
	m.println("3) Add record")
	m.println("4) Update record")
	m.println("5) Delete record")
	m.println("6) Scan card")
	m.println("7) Write name to card")
	m.println("0) Exit")
}

func (m *Menu) println(s string) {
	fmt.Fprintln(m.Out, s)
}

// readLines feeds lines from in until the input ends or done is closed.
// A read blocked on a terminal outlives Run; it returns with the process.
func readLines(in io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}

// prompt prints text (with the default in brackets) and reads one line.
// An empty answer returns def. It returns errQuit at end of input or
// when ctx is cancelled.
func (m *Menu) prompt(ctx context.Context, text, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(m.Out, "%s [%s]: ", text, def)
	} else {
		fmt.Fprintf(m.Out, "%s: ", text)
	}

	var line string
	select {
	case <-ctx.Done():
		m.println("")
		return "", errQuit
	case l, ok := <-m.lines:
		if !ok {
			return "", errQuit
		}
		line = l
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (m *Menu) report(action string, err error) {
	fmt.Fprintf(m.Out, "%s failed: %s\n", action, app.Describe(err))
}

func (m *Menu) printPersons(persons []types.Person) {
	if len(persons) == 0 {
		m.println("(no records)")
		return
	}
	for _, p := range persons {
		fmt.Fprintf(m.Out, "%4d | %-23s | %-7s | %s\n", p.ID, p.RFIDUID, p.Role, p.Name)
	}
}

func (m *Menu) list() error {
	persons, err := m.Actions.List()
	if err != nil {
		m.report("list", err)
		return nil
	}
	m.printPersons(persons)
	return nil
}

func (m *Menu) search(ctx context.Context) error {
	q, err := m.prompt(ctx, "Search for", "")
	if err != nil {
		return err
	}
	persons, err := m.Actions.Search(q)
	if err != nil {
		m.report("search", err)
		return nil
	}
	m.printPersons(persons)
	return nil
}

// readPerson prompts for every user-editable field, offering cur's values
// as defaults. Returning an empty default for rfid_uid keeps it absent.
func (m *Menu) readPerson(ctx context.Context, cur types.Person) (types.Person, error) {
	p := cur

	role := string(cur.Role)
	fields := []struct {
		label string
		dst   *string
	}{
		{"RFID UID", &p.RFIDUID},
		{"Role (student/faculty)", &role},
		{"Name", &p.Name},
		{"Department", &p.Department},
		{"Category", &p.Category},
		{"Program", &p.Program},
		{"Year", &p.Year},
	}

	for _, f := range fields {
		v, err := m.prompt(ctx, f.label, *f.dst)
		if err != nil {
			return p, err
		}
		if v == "-" {
			v = ""
		}
		*f.dst = v
	}

	p.Role = types.Role(strings.ToLower(role))
	return p, nil
}

func (m *Menu) add(ctx context.Context) error {
	m.println("Leave RFID UID blank if no card is assigned yet.")
	p, err := m.readPerson(ctx, types.Person{Role: types.RoleStudent})
	if err != nil {
		return err
	}
	id, err := m.Actions.Add(p)
	if err != nil {
		m.report("add", err)
		return nil
	}
	fmt.Fprintf(m.Out, "Added record %d.\n", id)
	return nil
}

func (m *Menu) readID(ctx context.Context, text string) (int64, bool, error) {
	s, err := m.prompt(ctx, text, "")
	if err != nil {
		return 0, false, err
	}
	id, perr := strconv.ParseInt(s, 10, 64)
	if perr != nil {
		m.println("Invalid id: must be an integer")
		return 0, false, nil
	}
	return id, true, nil
}

func (m *Menu) update(ctx context.Context) error {
	id, ok, err := m.readID(ctx, "Record ID to update")
	if err != nil || !ok {
		return err
	}

	cur, err := m.Actions.Get(id)
	if err != nil {
		m.report("update", err)
		return nil
	}

	m.println("Press enter to keep a value, type - to clear it.")
	p, err := m.readPerson(ctx, cur)
	if err != nil {
		return err
	}
	if _, err := m.Actions.Update(id, p); err != nil {
		m.report("update", err)
		return nil
	}
	m.println("Updated.")
	return nil
}

func (m *Menu) delete(ctx context.Context) error {
	id, ok, err := m.readID(ctx, "Record ID to delete")
	if err != nil || !ok {
		return err
	}

	confirm, err := m.prompt(ctx, fmt.Sprintf("Type YES to confirm deletion of %d", id), "")
	if err != nil {
		return err
	}
	if confirm != "YES" {
		m.println("Aborted.")
		return nil
	}

	if err := m.Actions.Delete(id); err != nil {
		m.report("delete", err)
		return nil
	}
	m.println("Deleted.")
	return nil
}

func (m *Menu) scan(ctx context.Context) error {
	fmt.Fprintf(m.Out, "Waiting for card (%s)...\n", m.ScanTimeout)

	res, err := m.Actions.Scan(ctx)
	if err != nil {
		m.report("scan", err)
		return nil
	}

	fmt.Fprintf(m.Out, "UID: %s\n", res.UID)
	if res.Text != "" {
		fmt.Fprintf(m.Out, "Text: %s\n", res.Text)
	} else {
		m.println("Text: (none)")
	}

	if res.Person != nil {
		fmt.Fprintf(m.Out, "Existing record: %d %s\n", res.Person.ID, res.Person.Name)
		return nil
	}

	answer, err := m.prompt(ctx, "Register this UID? (y/N)", "N")
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") {
		return nil
	}

	p, err := m.readPerson(ctx, types.Person{Role: types.RoleStudent, RFIDUID: res.UID, Name: res.Text})
	if err != nil {
		return err
	}
	id, err := m.Actions.Add(p)
	if err != nil {
		m.report("register", err)
		return nil
	}
	fmt.Fprintf(m.Out, "Registered as record %d.\n", id)
	return nil
}

func (m *Menu) write(ctx context.Context) error {
	uid, err := m.prompt(ctx, "RFID UID to target (leave blank to tap any card)", "")
	if err != nil {
		return err
	}
	name, err := m.prompt(ctx, "Name to write (max 16 chars)", "")
	if err != nil {
		return err
	}

	if uid == "" {
		m.println("Tap the card to write to it")
	}
	if err := m.Actions.Write(ctx, uid, name); err != nil {
		m.report("write", err)
		return nil
	}
	m.println("Write OK")
	return nil
}
