// Package pcsc implements card.Transport on the platform PC/SC stack
// (pcsc-lite on Linux/macOS, WinSCard on Windows) through
// github.com/ebfe/scard. It is the only package that calls into PC/SC.
package pcsc

import (
	"errors"
	"fmt"

	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/ebfe/scard"
)

// Transport opens a fresh PC/SC context for every call, so nothing is
// held between card operations.
type Transport struct{}

var _ card.Transport = Transport{}

// New returns a PC/SC transport.
func New() Transport {
	return Transport{}
}

// Readers lists attached readers. No readers is an empty list, not an error.
func (Transport) Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, serviceError("establish context", err)
	}
	defer ctx.Release()

	return listReaders(ctx)
}

// Open binds a connection to the reader at index. The PC/SC context stays
// open until the returned Conn is closed.
func (Transport) Open(index int) (card.Conn, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, serviceError("establish context", err)
	}

	readers, err := listReaders(ctx)
	if err != nil {
		ctx.Release()
		return nil, err
	}
	if index < 0 || index >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: reader %d of %d: %w", index, len(readers), card.ErrNoReader)
	}

	return &Conn{ctx: ctx, reader: readers[index]}, nil
}

func listReaders(ctx *scard.Context) ([]string, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		if errors.Is(err, scard.ErrNoReadersAvailable) {
			return []string{}, nil
		}
		return nil, serviceError("list readers", err)
	}
	return readers, nil
}

// serviceError wraps a PC/SC failure from op. pcscd not running (or
// stopping mid-call) looks the same as no reader to the user, so those
// errors match card.ErrNoReader and callers keep polling.
func serviceError(op string, err error) error {
	if errors.Is(err, scard.ErrNoService) || errors.Is(err, scard.ErrServiceStopped) {
		return fmt.Errorf("pcsc: %s: %w: %v", op, card.ErrNoReader, err)
	}
	return fmt.Errorf("pcsc: %s: %w", op, err)
}

// Conn is a session with one named reader.
type Conn struct {
	ctx    *scard.Context
	reader string
	card   *scard.Card
}

// Reader returns the PC/SC name of the bound reader.
func (c *Conn) Reader() string { return c.reader }

// Connect powers up the card in the field using whichever protocol the
// reader negotiates.
func (c *Conn) Connect() error {
	if c.card != nil {
		return nil
	}

	sc, err := c.ctx.Connect(c.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		switch {
		case errors.Is(err, scard.ErrNoSmartcard),
			errors.Is(err, scard.ErrRemovedCard),
			errors.Is(err, scard.ErrUnpoweredCard):
			return fmt.Errorf("pcsc: %s: %w", c.reader, card.ErrNoCard)
		case errors.Is(err, scard.ErrUnknownReader),
			errors.Is(err, scard.ErrReaderUnavailable):
			return fmt.Errorf("pcsc: %s: %w", c.reader, card.ErrNoReader)
		default:
			return fmt.Errorf("pcsc: connect %s: %w", c.reader, err)
		}
	}

	c.card = sc
	return nil
}

// Transmit sends cmd and splits off the status word.
func (c *Conn) Transmit(cmd []byte) ([]byte, byte, byte, error) {
	if c.card == nil {
		return nil, 0, 0, fmt.Errorf("pcsc: transmit on %s: %w", c.reader, card.ErrNoCard)
	}

	raw, err := c.card.Transmit(cmd)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("pcsc: transmit: %w", err)
	}

	return card.SplitResponse(raw)
}

// Close disconnects the card (leaving it powered) and releases the context.
func (c *Conn) Close() error {
	var errs []error
	if c.card != nil {
		if err := c.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("pcsc: disconnect: %w", err))
		}
		c.card = nil
	}
	if c.ctx != nil {
		if err := c.ctx.Release(); err != nil {
			errs = append(errs, fmt.Errorf("pcsc: release: %w", err))
		}
		c.ctx = nil
	}
	return errors.Join(errs...)
}
