// Package app is the application controller: the seven roster actions
// shared by every front-end.
//
// Each front-end (the text menu in internal/cli and the HTTP API in
// internal/http) is a thin adapter over the Actions interface. Blocking
// card work is routed through a single-slot supervisor so that two scans
// or writes never overlap, whichever front-end asked for them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/aanand-mishra/rfid-cards/internal/storage"
	"github.com/aanand-mishra/rfid-cards/internal/supervisor"
	"github.com/aanand-mishra/rfid-cards/internal/types"
)

var (
	// ErrWriteFailed means the card refused the write (wrong key, card
	// pulled away mid-write, ...). The block content is then unknown.
	ErrWriteFailed = errors.New("card rejected the write")

	// ErrUIDMismatch means the card in the field is not the one the
	// caller asked to write to.
	ErrUIDMismatch = errors.New("card in reader does not match the requested uid")

	// ErrNoUID means the reader could not read a UID from the card.
	ErrNoUID = errors.New("could not read card uid")
)

// Actions is the command surface offered to users.
type Actions interface {
	List() ([]types.Person, error)
	Search(query string) ([]types.Person, error)
	Get(id int64) (types.Person, error)
	Add(person types.Person) (int64, error)
	Update(id int64, person types.Person) (types.Person, error)
	Delete(id int64) error

	// Scan waits for a card, reads it and looks up its registration.
	Scan(ctx context.Context) (ScanResult, error)

	// Write stores name on a card. An empty uid writes to whichever card
	// is tapped next; a non-empty uid requires that card to be present now.
	Write(ctx context.Context, uid, name string) error
}

// ScanResult is what a scan found.
type ScanResult struct {
	UID  string    `json:"uid"`
	Text string    `json:"text,omitempty"`
	Kind string    `json:"kind"`
	At   time.Time `json:"scanned_at"`

	// Person is the registered owner of the card, nil if unregistered.
	Person *types.Person `json:"person,omitempty"`
}

// Options tunes reader access.
type Options struct {
	ReaderIndex   int
	ScanTimeout   time.Duration
	PollInterval  time.Duration
	WaitForReader bool
}

// Controller implements Actions over a store and a card transport.
type Controller struct {
	store     storage.Storage
	transport card.Transport
	tasks     *supervisor.Supervisor
	opts      Options
	log       *slog.Logger
}

var _ Actions = (*Controller)(nil)

// New builds a controller. log may be nil.
func New(store storage.Storage, transport card.Transport, opts Options, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:     store,
		transport: transport,
		tasks:     supervisor.New(log),
		opts:      opts,
		log:       log,
	}
}

func (c *Controller) List() ([]types.Person, error) {
	return c.store.GetPersons()
}

func (c *Controller) Search(query string) ([]types.Person, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.store.GetPersons()
	}
	return c.store.SearchPersons(query)
}

func (c *Controller) Get(id int64) (types.Person, error) {
	return c.store.GetPersonByID(id)
}

func (c *Controller) Add(person types.Person) (int64, error) {
	id, err := c.store.CreatePerson(person)
	if err != nil {
		return 0, err
	}
	c.log.Info("person added", slog.Int64("id", id), slog.String("uid", person.RFIDUID))
	return id, nil
}

func (c *Controller) Update(id int64, person types.Person) (types.Person, error) {
	updated, err := c.store.UpdatePersonByID(id, person)
	if err != nil {
		return types.Person{}, err
	}
	c.log.Info("person updated", slog.Int64("id", id))
	return updated, nil
}

func (c *Controller) Delete(id int64) error {
	if err := c.store.DeletePersonByID(id); err != nil {
		return err
	}
	c.log.Info("person deleted", slog.Int64("id", id))
	return nil
}

func (c *Controller) waitOptions() card.WaitOptions {
	return card.WaitOptions{
		Index:         c.opts.ReaderIndex,
		Timeout:       c.opts.ScanTimeout,
		PollInterval:  c.opts.PollInterval,
		WaitForReader: c.opts.WaitForReader,
	}
}

// Scan runs on the supervisor: wait for a card, read it, close the
// session, then look the UID up in the store.
func (c *Controller) Scan(ctx context.Context) (ScanResult, error) {
	v, err := c.tasks.Run(ctx, "scan", func(ctx context.Context) (any, error) {
		return c.scan(ctx)
	})
	if err != nil {
		return ScanResult{}, err
	}
	return v.(ScanResult), nil
}

func (c *Controller) scan(ctx context.Context) (ScanResult, error) {
	conn, err := card.WaitForCard(ctx, c.transport, c.waitOptions())
	if err != nil {
		return ScanResult{}, err
	}
	read, err := card.ReadCard(conn)
	conn.Close()
	if err != nil {
		return ScanResult{}, err
	}

	if read.TextErr != nil {
		c.log.Debug("card text unavailable",
			slog.String("uid", read.UID),
			slog.String("error", read.TextErr.Error()))
	}
	if read.Kind == card.ReadNone {
		return ScanResult{}, ErrNoUID
	}

	res := ScanResult{UID: read.UID, Text: read.Text, Kind: read.Kind.String(), At: time.Now().UTC()}

	person, err := c.store.GetPersonByUID(read.UID)
	switch {
	case err == nil:
		res.Person = &person
	case errors.Is(err, storage.ErrNotFound):
	default:
		return ScanResult{}, err
	}

	c.log.Info("card scanned",
		slog.String("uid", res.UID),
		slog.String("kind", res.Kind),
		slog.Bool("registered", res.Person != nil))
	return res, nil
}

// Write runs on the supervisor. See Actions.Write.
func (c *Controller) Write(ctx context.Context, uid, name string) error {
	uid = strings.TrimSpace(uid)
	name = strings.TrimSpace(name)
	if name == "" {
		return &storage.ConstraintError{Field: "name", Reason: "is required"}
	}

	_, err := c.tasks.Run(ctx, "write", func(ctx context.Context) (any, error) {
		return nil, c.write(ctx, uid, name)
	})
	return err
}

func (c *Controller) write(ctx context.Context, uid, name string) error {
	var (
		conn card.Conn
		err  error
	)
	if uid == "" {
		conn, err = card.WaitForCard(ctx, c.transport, c.waitOptions())
	} else {
		conn, err = card.Connect(c.transport, c.opts.ReaderIndex)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	read, err := card.ReadCard(conn)
	if err != nil {
		return err
	}
	if uid != "" {
		if read.Kind == card.ReadNone {
			return ErrNoUID
		}
		if !strings.EqualFold(read.UID, uid) {
			return fmt.Errorf("%w: want %s, found %s", ErrUIDMismatch, uid, read.UID)
		}
	}

	ok, err := card.WriteText(conn, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWriteFailed
	}

	c.log.Info("name written to card", slog.String("uid", read.UID), slog.String("name", name))
	return nil
}

// Probe scans cards in a loop until ctx is cancelled, passing every read
// to report. Gaps without a card are silent. It returns nil on
// cancellation and stops on any other error.
func (c *Controller) Probe(ctx context.Context, report func(card.ReadResult)) error {
	opts := c.waitOptions()
	opts.Timeout = 0
	opts.WaitForReader = true

	for {
		conn, err := card.WaitForCard(ctx, c.transport, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		read, err := card.ReadCard(conn)
		conn.Close()
		if err != nil {
			c.log.Warn("probe read failed", slog.String("error", err.Error()))
		} else if read.Kind != card.ReadNone {
			report(read)
		}

		// Give the holder time to move the card away before re-reading.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Describe maps an action error to a short cause for users.
func Describe(err error) string {
	var cerr *storage.ConstraintError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cerr):
		return cerr.Error()
	case errors.Is(err, storage.ErrNotFound):
		return "record not found"
	case errors.Is(err, supervisor.ErrBusy):
		return "operation in progress, try again when it finishes"
	case errors.Is(err, card.ErrTimeout) && errors.Is(err, card.ErrNoReader):
		return "no reader available (timed out)"
	case errors.Is(err, card.ErrNoReader):
		return "no reader available"
	case errors.Is(err, card.ErrNoCard):
		return "no card detected"
	case errors.Is(err, ErrUIDMismatch):
		return "the card on the reader is not the selected card"
	case errors.Is(err, ErrWriteFailed):
		return "failed to write to card"
	case errors.Is(err, ErrNoUID):
		return "failed to read card"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
