// Package card talks to MIFARE Classic cards through a PC/SC reader.
//
// The package is split in two layers:
//
//   - Transport / Conn: the raw reader boundary (enumerate readers, open a
//     connection, power up the card, exchange one APDU). The production
//     implementation lives in card/pcsc; tests use card/cardtest.
//
//   - The protocol helpers in this package (ReadCard, WriteText,
//     WaitForCard) that compose fixed APDUs on top of a Conn.
package card

import "errors"

var (
	// ErrNoReader means the requested reader index does not exist,
	// including the case where no reader is attached at all.
	ErrNoReader = errors.New("no smartcard reader available")

	// ErrNoCard means a reader is present but no card is in its field.
	ErrNoCard = errors.New("no card in reader field")

	// ErrTimeout is returned by WaitForCard when the wait ran out.
	// It always comes wrapped together with ErrNoCard or ErrNoReader.
	ErrTimeout = errors.New("timed out waiting for card")
)

// Transport enumerates readers and opens connections to them.
type Transport interface {
	// Readers lists the attached readers in PC/SC order. An empty slice
	// (and nil error) means none are attached.
	Readers() ([]string, error)

	// Open binds a connection to the reader at index. It does not touch
	// the card; call Conn.Connect for that. Returns ErrNoReader when index
	// is out of range.
	Open(index int) (Conn, error)
}

// Conn is a session with one reader.
type Conn interface {
	// Connect powers up and selects the card in the field.
	// Returns ErrNoCard if there is none.
	Connect() error

	// Transmit sends one command APDU and returns the response data and
	// the two status bytes. It blocks on the hardware and never retries.
	Transmit(cmd []byte) (resp []byte, sw1, sw2 byte, err error)

	// Close ends the session and releases the reader.
	Close() error
}
