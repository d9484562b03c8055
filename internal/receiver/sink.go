package receiver

import (
	"fmt"
	"io"
)

// Sink is the byte-addressable destination for a transferred image.
// The receiver writes sequentially and never reads back; integrity is
// established by the CRC check alone.
type Sink interface {
	io.WriterAt

	// Capacity returns the writable size of the region in bytes.
	Capacity() uint32
}

// RAMSink is an in-memory Sink, standing in for the board's firmware
// region in the simulator and in tests.
type RAMSink struct {
	buf []byte
}

// NewRAMSink allocates a sink of the given capacity.
func NewRAMSink(capacity uint32) *RAMSink {
	return &RAMSink{buf: make([]byte, capacity)}
}

// WriteAt writes p at the given offset.
func (s *RAMSink) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.buf)) {
		return 0, fmt.Errorf("write offset 0x%X outside region of %d bytes", off, len(s.buf))
	}
	if off+int64(len(p)) > int64(len(s.buf)) {
		return 0, fmt.Errorf("write of %d bytes at 0x%X exceeds region of %d bytes",
			len(p), off, len(s.buf))
	}
	copy(s.buf[off:], p)
	return len(p), nil
}

// Capacity returns the size of the region.
func (s *RAMSink) Capacity() uint32 {
	return uint32(len(s.buf))
}

// Image returns the length bytes starting at base.
func (s *RAMSink) Image(base, length uint32) []byte {
	return s.buf[base : base+length]
}

// Bytes returns the whole backing region.
func (s *RAMSink) Bytes() []byte {
	return s.buf
}
