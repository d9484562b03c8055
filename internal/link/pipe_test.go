package link

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

func TestPipe_ByteRoundTrip(t *testing.T) {
	a, b := Pipe(16)
	defer a.Close()
	defer b.Close()

	if err := a.WriteByte('R'); err != nil {
		t.Fatalf("WriteByte error: %v", err)
	}
	got, err := b.ReadByte(time.Second)
	if err != nil {
		t.Fatalf("ReadByte error: %v", err)
	}
	if got != 'R' {
		t.Errorf("ReadByte = %q, want 'R'", got)
	}
}

func TestPipe_BufferedScript(t *testing.T) {
	a, b := Pipe(128)
	defer a.Close()
	defer b.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if _, err := a.Write(payload); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var got [4]byte
	if err := protocol.ReadFull(b, got[:], time.Second); err != nil {
		t.Fatalf("ReadFull error: %v", err)
	}
	if !bytes.Equal(got[:], payload) {
		t.Errorf("ReadFull = % X, want % X", got, payload)
	}
}

func TestPipe_ReadTimeout(t *testing.T) {
	a, b := Pipe(16)
	defer a.Close()
	defer b.Close()

	_, err := b.ReadByte(20 * time.Millisecond)
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("ReadByte on idle pipe = %v, want protocol.ErrTimeout", err)
	}
}

func TestPipe_PeerCloseDrainsBufferedBytes(t *testing.T) {
	a, b := Pipe(16)
	defer b.Close()

	a.WriteByte('A')
	a.Close()

	got, err := b.ReadByte(time.Second)
	if err != nil {
		t.Fatalf("ReadByte after peer close: %v", err)
	}
	if got != 'A' {
		t.Errorf("ReadByte = %q, want 'A'", got)
	}

	if _, err := b.ReadByte(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadByte on drained closed pipe = %v, want ErrClosed", err)
	}
}

func TestPipe_WriteAfterCloseFails(t *testing.T) {
	a, b := Pipe(16)
	defer b.Close()

	a.Close()
	if err := a.WriteByte('X'); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteByte after Close = %v, want ErrClosed", err)
	}
}
