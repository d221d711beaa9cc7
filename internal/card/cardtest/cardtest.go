// Package cardtest provides an in-memory card.Transport that behaves like
// a PC/SC contactless reader with a MIFARE Classic card, for tests.
package cardtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aanand-mishra/rfid-cards/internal/card"
)

// Card is a simulated card. Fields may be set before the card is inserted.
type Card struct {
	UID   []byte
	Block [card.BlockSize]byte

	// UIDFails makes GET UID answer 6A 81.
	UIDFails bool
	// AuthFails makes AUTHENTICATE answer 63 00 (wrong key).
	AuthFails bool
	// WriteFails makes UPDATE BINARY answer 63 00.
	WriteFails bool
	// FaultOn makes Transmit return an I/O error for the command with this
	// INS byte (0xCA, 0x86, 0xB0 or 0xD6). Zero disables it.
	FaultOn byte
}

// Reader is a fake card.Transport. It is safe for concurrent use.
type Reader struct {
	mu      sync.Mutex
	names   []string
	card    *Card
	opens   int
	history [][]byte
}

var _ card.Transport = (*Reader)(nil)

// NewReader returns a transport with one attached reader and no card.
func NewReader() *Reader {
	return &Reader{names: []string{"Fake Reader 00 00"}}
}

// Detach removes every reader.
func (r *Reader) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = nil
}

// Attach plugs in one reader.
func (r *Reader) Attach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = []string{"Fake Reader 00 00"}
}

// Insert places c in the reader field.
func (r *Reader) Insert(c *Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.card = c
}

// Remove takes the card out of the field.
func (r *Reader) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.card = nil
}

// Block returns a copy of the text block of the card in the field.
func (r *Reader) Block() [card.BlockSize]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return [card.BlockSize]byte{}
	}
	return r.card.Block
}

// Opens counts calls to Open.
func (r *Reader) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

// Commands returns every APDU transmitted so far.
func (r *Reader) Commands() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Reader) Readers() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.names...), nil
}

func (r *Reader) Open(index int) (card.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	if index < 0 || index >= len(r.names) {
		return nil, fmt.Errorf("cardtest: reader %d: %w", index, card.ErrNoReader)
	}
	return &conn{reader: r}, nil
}

type conn struct {
	reader    *Reader
	card      *Card
	connected bool
	authed    bool
	closed    bool
}

func (c *conn) Connect() error {
	c.reader.mu.Lock()
	defer c.reader.mu.Unlock()
	if c.reader.card == nil {
		return card.ErrNoCard
	}
	c.card = c.reader.card
	c.connected = true
	return nil
}

var errRemoved = errors.New("cardtest: card removed")

func (c *conn) Transmit(cmd []byte) ([]byte, byte, byte, error) {
	c.reader.mu.Lock()
	defer c.reader.mu.Unlock()

	c.reader.history = append(c.reader.history, append([]byte{}, cmd...))

	if c.closed || !c.connected {
		return nil, 0, 0, errors.New("cardtest: not connected")
	}
	if c.reader.card != c.card {
		return nil, 0, 0, errRemoved
	}
	if len(cmd) < 5 || cmd[0] != 0xFF {
		return nil, 0x6E, 0x00, nil
	}

	ins := cmd[1]
	if c.card.FaultOn != 0 && c.card.FaultOn == ins {
		return nil, 0, 0, fmt.Errorf("cardtest: i/o fault on %02X", ins)
	}

	switch ins {
	case 0xCA:
		if c.card.UIDFails {
			return nil, 0x6A, 0x81, nil
		}
		return append([]byte{}, c.card.UID...), 0x90, 0x00, nil

	case 0x86:
		if c.card.AuthFails {
			c.authed = false
			return nil, 0x63, 0x00, nil
		}
		c.authed = true
		return nil, 0x90, 0x00, nil

	case 0xB0:
		if !c.authed {
			return nil, 0x69, 0x82, nil
		}
		return append([]byte{}, c.card.Block[:]...), 0x90, 0x00, nil

	case 0xD6:
		if !c.authed || c.card.WriteFails {
			return nil, 0x63, 0x00, nil
		}
		if len(cmd) != 5+card.BlockSize {
			return nil, 0x67, 0x00, nil
		}
		copy(c.card.Block[:], cmd[5:])
		return nil, 0x90, 0x00, nil

	default:
		return nil, 0x6D, 0x00, nil
	}
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}
