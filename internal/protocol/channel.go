package protocol

import (
	"errors"
	"time"
)

// ErrTimeout is returned when no byte arrives within the allotted window.
var ErrTimeout = errors.New("read timed out")

// ByteChannel is the half-duplex byte link between sender and receiver.
// A zero or negative timeout means block until a byte is available.
type ByteChannel interface {
	// ReadByte returns the next byte, or ErrTimeout if none arrives
	// within the window.
	ReadByte(timeout time.Duration) (byte, error)

	// WriteByte sends one byte.
	WriteByte(b byte) error

	// Write sends a run of bytes.
	Write(p []byte) (int, error)
}

// ReadFull fills buf from the channel, applying the timeout per byte.
func ReadFull(ch ByteChannel, buf []byte, timeout time.Duration) error {
	for i := range buf {
		b, err := ch.ReadByte(timeout)
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// Logger is an optional logging interface the transfer engines accept.
// Wire any structured logger by adapting it to these three methods.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
