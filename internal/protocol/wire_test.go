package protocol

import (
	"bytes"
	"testing"
)

func TestPutUint32_LittleEndian(t *testing.T) {
	got := PutUint32(0x00000004)
	want := []byte{0x04, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("PutUint32(4) = % X, want % X", got, want)
	}
}

func TestUint32_RoundTrip(t *testing.T) {
	const v = 0xB9DDC7D8
	got, err := Uint32(PutUint32(v))
	if err != nil {
		t.Fatalf("Uint32() error: %v", err)
	}
	if got != v {
		t.Errorf("Uint32(PutUint32(0x%08X)) = 0x%08X", v, got)
	}
}

func TestUint32_ShortBuffer(t *testing.T) {
	if _, err := Uint32([]byte{0x01, 0x02}); err == nil {
		t.Error("Uint32 with 2 bytes: expected error, got nil")
	}
}

func TestAckCursor_InitialSequence(t *testing.T) {
	c := NewAckCursor()
	for i, want := range []byte{'A', 'B', 'C', 'D', 'E'} {
		if got := c.Next(); got != want {
			t.Errorf("Next() #%d = %q, want %q", i, got, want)
		}
	}
}

func TestAckCursor_WrapsZToA(t *testing.T) {
	c := NewAckCursor()

	// Consume the full alphabet once.
	for i := 0; i < 26; i++ {
		c.Next()
	}

	// The cycle restarts at 'A', not 'C'.
	if got := c.Next(); got != 'A' {
		t.Errorf("Next() after wrap = %q, want 'A'", got)
	}
	if got := c.Next(); got != 'B' {
		t.Errorf("Next() after wrap = %q, want 'B'", got)
	}
}

func TestAckCursor_NeverSkipsOrRepeats(t *testing.T) {
	c := NewAckCursor()
	prev := c.Next()
	for i := 1; i < 200; i++ {
		got := c.Next()
		want := prev + 1
		if prev == 'Z' {
			want = 'A'
		}
		if got != want {
			t.Fatalf("Next() #%d = %q, want %q", i, got, want)
		}
		prev = got
	}
}

func TestAckCursor_PeekDoesNotAdvance(t *testing.T) {
	c := NewAckCursor()
	if got := c.Peek(); got != 'A' {
		t.Errorf("Peek() = %q, want 'A'", got)
	}
	if got := c.Next(); got != 'A' {
		t.Errorf("Next() after Peek = %q, want 'A'", got)
	}
}

func TestIsReadyMarker(t *testing.T) {
	if !IsReadyMarker('R') || !IsReadyMarker('r') {
		t.Error("IsReadyMarker must accept 'R' and 'r'")
	}
	if IsReadyMarker('C') || IsReadyMarker(0x00) {
		t.Error("IsReadyMarker must reject unrelated bytes")
	}
}
