package card

import (
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the size of one MIFARE Classic data block.
const BlockSize = 16

// TextBlock is the block holding the display name.
const TextBlock = 0x04

// StatusOK is the SW1 value of a successful command (SW1 SW2 = 90 00).
const StatusOK = 0x90

// PC/SC pseudo-APDUs understood by contactless readers (ACR122U and
// friends). The authenticate command uses key type A (0x60) loaded in the
// reader's key slot 0, which holds the factory default key.
var (
	cmdGetUID       = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
	cmdAuthenticate = []byte{0xFF, 0x86, 0x00, 0x00, 0x05, 0x01, 0x00, TextBlock, 0x60, 0x00}
	cmdReadBlock    = []byte{0xFF, 0xB0, 0x00, TextBlock, BlockSize}
)

func writeBlockCommand(data [BlockSize]byte) []byte {
	cmd := make([]byte, 0, 5+BlockSize)
	cmd = append(cmd, 0xFF, 0xD6, 0x00, TextBlock, BlockSize)
	return append(cmd, data[:]...)
}

// StatusError is a command that completed with a non-success status word.
type StatusError struct {
	Command  string
	SW1, SW2 byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %02X %02X", e.Command, e.SW1, e.SW2)
}

// ReadKind tags what a ReadCard call recovered from the card.
type ReadKind int

const (
	// ReadNone: the reader would not return a UID.
	ReadNone ReadKind = iota
	// ReadUIDOnly: UID known, block text not recoverable.
	ReadUIDOnly
	// ReadUIDAndText: UID and block text both read.
	ReadUIDAndText
)

func (k ReadKind) String() string {
	switch k {
	case ReadUIDOnly:
		return "uid-only"
	case ReadUIDAndText:
		return "uid-and-text"
	default:
		return "none"
	}
}

// ReadResult is the outcome of ReadCard.
type ReadResult struct {
	Kind ReadKind
	UID  string
	Text string

	// TextErr records why the text could not be read when Kind is
	// ReadUIDOnly. A card without readable block text is normal, so this
	// is informational and never returned as an error.
	TextErr error
}

// ReadCard reads the card UID and, if the sector authenticates, the text
// stored in TextBlock.
//
// A transmit fault on the UID command is a transport problem and is
// returned as an error. Everything after the UID is best effort: failures
// there downgrade the result to ReadUIDOnly.
func ReadCard(conn Conn) (ReadResult, error) {
	uid, sw1, _, err := conn.Transmit(cmdGetUID)
	if err != nil {
		return ReadResult{}, fmt.Errorf("ReadCard: get uid: %w", err)
	}
	if sw1 != StatusOK || len(uid) == 0 {
		return ReadResult{Kind: ReadNone}, nil
	}

	res := ReadResult{Kind: ReadUIDOnly, UID: FormatUID(uid)}

	if err := authenticate(conn); err != nil {
		res.TextErr = err
		return res, nil
	}

	data, sw1, sw2, err := conn.Transmit(cmdReadBlock)
	if err != nil {
		res.TextErr = fmt.Errorf("read block: %w", err)
		return res, nil
	}
	if sw1 != StatusOK {
		res.TextErr = &StatusError{Command: "read block", SW1: sw1, SW2: sw2}
		return res, nil
	}

	res.Kind = ReadUIDAndText
	res.Text = DecodeText(data)
	return res, nil
}

// WriteText stores text in TextBlock. It reports true iff the card
// accepted the write (SW1 == 0x90). Any status failure, whether from the
// authenticate step or the write itself, collapses to false; only
// transmit faults are returned as errors. A failed write may leave the
// block partially written.
func WriteText(conn Conn, text string) (bool, error) {
	if err := authenticate(conn); err != nil {
		var serr *StatusError
		if errors.As(err, &serr) {
			return false, nil
		}
		return false, fmt.Errorf("WriteText: %w", err)
	}

	_, sw1, _, err := conn.Transmit(writeBlockCommand(EncodeText(text)))
	if err != nil {
		return false, fmt.Errorf("WriteText: write block: %w", err)
	}

	return sw1 == StatusOK, nil
}

func authenticate(conn Conn) error {
	_, sw1, sw2, err := conn.Transmit(cmdAuthenticate)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if sw1 != StatusOK {
		return &StatusError{Command: "authenticate", SW1: sw1, SW2: sw2}
	}
	return nil
}

// FormatUID renders raw UID bytes as colon-separated uppercase hex pairs,
// e.g. 04:1A:2B:3C.
func FormatUID(uid []byte) string {
	parts := make([]string, len(uid))
	for i, b := range uid {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// EncodeText lays text out as one block: bytes outside printable ASCII are
// replaced by '?', the result is cut at BlockSize and padded with spaces.
func EncodeText(text string) [BlockSize]byte {
	var block [BlockSize]byte
	for i := range block {
		block[i] = ' '
	}

	i := 0
	for _, r := range text {
		if i == BlockSize {
			break
		}
		if r < 32 || r > 126 {
			r = '?'
		}
		block[i] = byte(r)
		i++
	}
	return block
}

// DecodeText keeps only printable ASCII bytes (32–126) in order, then
// trims surrounding whitespace.
func DecodeText(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		}
	}
	return strings.TrimSpace(b.String())
}

// SplitResponse separates the trailing status word from a raw response
// APDU, for transports whose driver returns them together.
func SplitResponse(raw []byte) (resp []byte, sw1, sw2 byte, err error) {
	if len(raw) < 2 {
		return nil, 0, 0, fmt.Errorf("short response apdu: %d bytes", len(raw))
	}
	n := len(raw) - 2
	return raw[:n], raw[n], raw[n+1], nil
}
