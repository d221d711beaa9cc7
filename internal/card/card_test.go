package card_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aanand-mishra/rfid-cards/internal/card"
	"github.com/aanand-mishra/rfid-cards/internal/card/cardtest"
)

func connected(t *testing.T, c *cardtest.Card) (*cardtest.Reader, card.Conn) {
	t.Helper()

	reader := cardtest.NewReader()
	reader.Insert(c)
	conn, err := card.Connect(reader, 0)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return reader, conn
}

func TestFormatUID(t *testing.T) {
	tests := []struct {
		name string
		uid  []byte
		want string
	}{
		{"4 bytes", []byte{0x04, 0x1A, 0x2B, 0x3C}, "04:1A:2B:3C"},
		{"7 bytes", []byte{0x04, 0xA2, 0x0B, 0x9A, 0x6F, 0x61, 0x80}, "04:A2:0B:9A:6F:61:80"},
		{"single", []byte{0x00}, "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := card.FormatUID(tt.uid); got != tt.want {
				t.Errorf("FormatUID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"padded", "Jane Doe", "Jane Doe        "},
		{"exact", "0123456789ABCDEF", "0123456789ABCDEF"},
		{"truncated", "ABCDEFGHIJKLMNOPQRST", "ABCDEFGHIJKLMNOP"},
		{"empty", "", "                "},
		{"non ascii", "Zoë\n", "Zo??            "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := card.EncodeText(tt.text)
			if string(got[:]) != tt.want {
				t.Errorf("EncodeText(%q) = %q, want %q", tt.text, got[:], tt.want)
			}
		})
	}
}

func TestDecodeText(t *testing.T) {
	data := []byte{0x00, 'B', 'o', 0x07, 'b', ' ', ' ', 0xFF, 0x7F, ' '}
	if got := card.DecodeText(data); got != "Bob" {
		t.Errorf("DecodeText() = %q, want %q", got, "Bob")
	}
}

func TestSplitResponse(t *testing.T) {
	resp, sw1, sw2, err := card.SplitResponse([]byte{0x04, 0x1A, 0x90, 0x00})
	if err != nil {
		t.Fatalf("SplitResponse() error = %v", err)
	}
	if string(resp) != string([]byte{0x04, 0x1A}) || sw1 != 0x90 || sw2 != 0x00 {
		t.Errorf("SplitResponse() = % X %02X %02X", resp, sw1, sw2)
	}

	if _, _, _, err := card.SplitResponse([]byte{0x90}); err == nil {
		t.Error("SplitResponse() on 1 byte should fail")
	}
}

func TestReadCard(t *testing.T) {
	uid := []byte{0x04, 0x1A, 0x2B, 0x3C}
	var named [card.BlockSize]byte
	copy(named[:], "Alice           ")

	tests := []struct {
		name     string
		card     *cardtest.Card
		wantKind card.ReadKind
		wantUID  string
		wantText string
		wantErr  bool
	}{
		{"uid and text", &cardtest.Card{UID: uid, Block: named}, card.ReadUIDAndText, "04:1A:2B:3C", "Alice", false},
		{"blank block", &cardtest.Card{UID: uid}, card.ReadUIDAndText, "04:1A:2B:3C", "", false},
		{"auth rejected", &cardtest.Card{UID: uid, Block: named, AuthFails: true}, card.ReadUIDOnly, "04:1A:2B:3C", "", false},
		{"read fault", &cardtest.Card{UID: uid, Block: named, FaultOn: 0xB0}, card.ReadUIDOnly, "04:1A:2B:3C", "", false},
		{"auth fault", &cardtest.Card{UID: uid, Block: named, FaultOn: 0x86}, card.ReadUIDOnly, "04:1A:2B:3C", "", false},
		{"uid status", &cardtest.Card{UID: uid, UIDFails: true}, card.ReadNone, "", "", false},
		{"uid fault", &cardtest.Card{UID: uid, FaultOn: 0xCA}, card.ReadNone, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn := connected(t, tt.card)

			got, err := card.ReadCard(conn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadCard() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.wantKind)
			}
			if got.UID != tt.wantUID {
				t.Errorf("UID = %q, want %q", got.UID, tt.wantUID)
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.Kind == card.ReadUIDOnly && got.TextErr == nil {
				t.Error("TextErr should explain a uid-only result")
			}
		})
	}
}

func TestWriteThenRead(t *testing.T) {
	tests := []struct {
		name  string
		write string
		want  string
	}{
		{"short name", "Jane Doe", "Jane Doe"},
		{"twenty chars", "Maximilian Longname", "Maximilian Longn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn := connected(t, &cardtest.Card{UID: []byte{0x01, 0x02, 0x03, 0x04}})

			ok, err := card.WriteText(conn, tt.write)
			if err != nil || !ok {
				t.Fatalf("WriteText() = %v, %v", ok, err)
			}

			got, err := card.ReadCard(conn)
			if err != nil {
				t.Fatalf("ReadCard() error = %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("read back %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestWriteTextFailures(t *testing.T) {
	tests := []struct {
		name    string
		card    *cardtest.Card
		wantErr bool
	}{
		{"write rejected", &cardtest.Card{UID: []byte{1}, WriteFails: true}, false},
		{"wrong key", &cardtest.Card{UID: []byte{1}, AuthFails: true}, false},
		{"write fault", &cardtest.Card{UID: []byte{1}, FaultOn: 0xD6}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn := connected(t, tt.card)

			ok, err := card.WriteText(conn, "Bob")
			if ok {
				t.Error("WriteText() reported success")
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("WriteText() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectErrors(t *testing.T) {
	reader := cardtest.NewReader()

	if _, err := card.Connect(reader, 0); !errors.Is(err, card.ErrNoCard) {
		t.Errorf("no card: err = %v, want ErrNoCard", err)
	}
	if _, err := card.Connect(reader, 3); !errors.Is(err, card.ErrNoReader) {
		t.Errorf("bad index: err = %v, want ErrNoReader", err)
	}

	reader.Detach()
	if _, err := card.Connect(reader, 0); !errors.Is(err, card.ErrNoReader) {
		t.Errorf("no readers: err = %v, want ErrNoReader", err)
	}
}

func TestWaitForCardTimesOut(t *testing.T) {
	reader := cardtest.NewReader()

	start := time.Now()
	conn, err := card.WaitForCard(context.Background(), reader, card.WaitOptions{
		Timeout:      time.Second,
		PollInterval: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if conn != nil {
		t.Fatal("WaitForCard() returned a connection with no card present")
	}
	if !errors.Is(err, card.ErrTimeout) || !errors.Is(err, card.ErrNoCard) {
		t.Errorf("err = %v, want ErrTimeout and ErrNoCard", err)
	}
	if elapsed < time.Second || elapsed > 1250*time.Millisecond {
		t.Errorf("returned after %s, want between 1s and ~1.2s", elapsed)
	}
}

func TestWaitForCardFindsLateCard(t *testing.T) {
	reader := cardtest.NewReader()
	go func() {
		time.Sleep(120 * time.Millisecond)
		reader.Insert(&cardtest.Card{UID: []byte{0xAA}})
	}()

	conn, err := card.WaitForCard(context.Background(), reader, card.WaitOptions{
		Timeout:      2 * time.Second,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WaitForCard() error = %v", err)
	}
	defer conn.Close()

	if reader.Opens() < 2 {
		t.Errorf("expected several polls, got %d", reader.Opens())
	}
}

func TestWaitForCardNoReader(t *testing.T) {
	reader := cardtest.NewReader()
	reader.Detach()

	_, err := card.WaitForCard(context.Background(), reader, card.WaitOptions{
		Timeout:      100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	if !errors.Is(err, card.ErrTimeout) || !errors.Is(err, card.ErrNoReader) {
		t.Errorf("err = %v, want ErrTimeout and ErrNoReader", err)
	}
}

func TestWaitForCardWaitForReaderIgnoresTimeout(t *testing.T) {
	reader := cardtest.NewReader()
	reader.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := card.WaitForCard(ctx, reader, card.WaitOptions{
		Timeout:       50 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		WaitForReader: true,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context deadline", err)
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Error("WaitForReader should keep polling past Timeout")
	}
}

func TestWaitForCardCancelled(t *testing.T) {
	reader := cardtest.NewReader()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := card.WaitForCard(ctx, reader, card.WaitOptions{PollInterval: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
