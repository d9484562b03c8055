// Package link provides an in-memory byte channel pair with the same
// timeout semantics as a serial port. It backs the engine tests and the
// loopback mode of the device simulator.
package link

import (
	"errors"
	"sync"
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

// ErrClosed is returned when reading from or writing to a closed pipe.
var ErrClosed = errors.New("link closed")

// Endpoint is one side of an in-memory byte link.
type Endpoint struct {
	rx <-chan byte
	tx chan<- byte

	closeOnce sync.Once
	done      chan struct{}
	peerDone  chan struct{}
}

// Pipe creates a connected endpoint pair. Each direction buffers up to
// buffer bytes, so scripted tests can queue a whole exchange before
// running the peer.
func Pipe(buffer int) (*Endpoint, *Endpoint) {
	if buffer <= 0 {
		buffer = protocol.ChunkSize
	}
	ab := make(chan byte, buffer)
	ba := make(chan byte, buffer)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &Endpoint{rx: ba, tx: ab, done: aDone, peerDone: bDone}
	b := &Endpoint{rx: ab, tx: ba, done: bDone, peerDone: aDone}
	return a, b
}

// ReadByte returns the next byte from the peer, or protocol.ErrTimeout
// if none arrives within the window. A zero or negative timeout blocks
// until a byte is available or the link closes.
func (e *Endpoint) ReadByte(timeout time.Duration) (byte, error) {
	if timeout <= 0 {
		select {
		case b := <-e.rx:
			return b, nil
		case <-e.done:
			return 0, ErrClosed
		case <-e.peerDone:
			// Drain anything the peer wrote before closing.
			select {
			case b := <-e.rx:
				return b, nil
			default:
				return 0, ErrClosed
			}
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-e.rx:
		return b, nil
	case <-timer.C:
		return 0, protocol.ErrTimeout
	case <-e.done:
		return 0, ErrClosed
	case <-e.peerDone:
		select {
		case b := <-e.rx:
			return b, nil
		default:
			return 0, ErrClosed
		}
	}
}

// WriteByte sends one byte to the peer.
func (e *Endpoint) WriteByte(b byte) error {
	select {
	case e.tx <- b:
		return nil
	case <-e.done:
		return ErrClosed
	case <-e.peerDone:
		return ErrClosed
	}
}

// Write sends a run of bytes to the peer.
func (e *Endpoint) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := e.WriteByte(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Close shuts down this endpoint. The peer's blocked reads return
// ErrClosed once the buffered bytes are drained.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	return nil
}
