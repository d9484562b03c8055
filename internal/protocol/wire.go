package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// PutUint32 encodes v as 4 little-endian bytes.
func PutUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// Uint32 decodes 4 little-endian bytes.
// Out-of-range semantics (zero size, oversize) are the receiver's concern.
func Uint32(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("u32 field too short: %d bytes", len(buf))
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint32 reads a 4-byte little-endian integer from the channel,
// one byte at a time with a per-byte timeout.
func ReadUint32(ch ByteChannel, timeout time.Duration) (uint32, error) {
	var buf [4]byte
	if err := ReadFull(ch, buf[:], timeout); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes v as 4 little-endian bytes.
func WriteUint32(ch ByteChannel, v uint32) error {
	_, err := ch.Write(PutUint32(v))
	return err
}

// AckCursor is the single persistent acknowledgment character of a
// session. It is never reset between phases: ready consumes 'A', size
// consumes 'B', chunks consume 'C' onward, and the final post-CRC ack
// continues wherever the chunk cycle left off.
type AckCursor byte

// NewAckCursor returns a cursor positioned at 'A'.
func NewAckCursor() AckCursor {
	return AckFirst
}

// Next returns the cursor's current value and advances it, wrapping
// 'Z' back to 'A' (never back to 'C').
func (c *AckCursor) Next() byte {
	b := byte(*c)
	if *c == AckLast {
		*c = AckFirst
	} else {
		*c++
	}
	return b
}

// Peek returns the value the next Next call will emit.
func (c AckCursor) Peek() byte {
	return byte(c)
}
