// Package receiver implements the device side of the firmware upload
// protocol: a state machine that accepts a ready marker, negotiates the
// image size, streams chunked payload into a sink while acknowledging
// each chunk, and verifies a trailing CRC32 before reporting success.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

// State identifies a position in the receiver state machine.
type State int

const (
	StateIdle State = iota
	StateReadySent
	StateSizeWait
	StateDataReceive
	StateCrcCmdWait
	StateCrcValueWait
	StateVerify
	StateDone
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateReadySent:
		return "ReadySent"
	case StateSizeWait:
		return "SizeWait"
	case StateDataReceive:
		return "DataReceive"
	case StateCrcCmdWait:
		return "CrcCmdWait"
	case StateCrcValueWait:
		return "CrcValueWait"
	case StateVerify:
		return "Verify"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// session is the per-activation transfer state. It is created when the
// ready marker is observed and discarded on any terminal state; nothing
// outside the receiver mutates it.
type session struct {
	totalSize     uint32
	bytesReceived uint32
	ackCursor     protocol.AckCursor
	runningCRC    uint32
}

// Result describes a completed transfer.
type Result struct {
	Base   uint32
	Length uint32
	CRC    uint32
}

// Receiver runs upload sessions over a byte channel, writing verified
// images into a sink. It owns the channel for a session's duration;
// there is no concurrent access to the session or the sink while a
// transfer is active.
type Receiver struct {
	ch     protocol.ByteChannel
	sink   Sink
	config Config
	state  State
}

// New creates a Receiver for the given channel and sink.
func New(ch protocol.ByteChannel, sink Sink, opts ...Option) *Receiver {
	if ch == nil {
		panic("channel cannot be nil")
	}
	if sink == nil {
		panic("sink cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Receiver{
		ch:     ch,
		sink:   sink,
		config: cfg,
		state:  StateIdle,
	}
}

// State returns the receiver's current state.
func (r *Receiver) State() State {
	return r.state
}

// maxCapacity is the largest declared size this receiver accepts.
func (r *Receiver) maxCapacity() uint32 {
	limit := r.sink.Capacity()
	if r.config.DestinationBase >= limit {
		return 0
	}
	limit -= r.config.DestinationBase
	if r.config.MaxImageSize > 0 && r.config.MaxImageSize < limit {
		limit = r.config.MaxImageSize
	}
	return limit
}

// Receive runs one complete session: it blocks in Idle until a ready
// marker arrives, then drives the transfer to Done or Failed. Failed
// sessions return a *FailureError; an expired idle wait returns
// protocol.ErrTimeout and a Ctrl-C during idle returns ErrCancelled
// (interactive variant only). The context is checked between blocking
// reads.
func (r *Receiver) Receive(ctx context.Context) (*Result, error) {
	// Idle: ignore everything until the ready marker.
	r.state = StateIdle
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := r.ch.ReadByte(r.config.IdleTimeout)
		if err != nil {
			return nil, err
		}
		if protocol.IsReadyMarker(b) {
			break
		}
		if r.config.Recoverable && b == protocol.CancelByte {
			return nil, ErrCancelled
		}
		r.logDebug("ignoring byte in idle", "byte", fmt.Sprintf("0x%02X", b))
	}

	// Fresh session for this activation.
	s := &session{
		ackCursor:  protocol.NewAckCursor(),
		runningCRC: protocol.CRCInit(),
	}
	r.logDebug("session started", "max_capacity", r.maxCapacity())

	// ReadySent: ack 'A'.
	r.state = StateReadySent
	if err := r.ch.WriteByte(s.ackCursor.Next()); err != nil {
		return nil, fmt.Errorf("write ready ack: %w", err)
	}

	// SizeWait: 4-byte little-endian declared size.
	r.state = StateSizeWait
	var sizeBuf [protocol.SizeFieldLen]byte
	if err := protocol.ReadFull(r.ch, sizeBuf[:], r.config.ReadTimeout); err != nil {
		return r.fail(err, ReasonTimeout, errors.New("waiting for size field"))
	}
	s.totalSize, _ = protocol.Uint32(sizeBuf[:])

	if r.config.CRCScope == protocol.CRCSizeAndPayload {
		s.runningCRC = protocol.CRCUpdateBytes(s.runningCRC, sizeBuf[:])
	}

	// Validate before acking: an invalid size gets no 'B' and writes
	// nothing to the sink.
	if max := r.maxCapacity(); s.totalSize == 0 || s.totalSize > max {
		return r.fail(nil, ReasonInvalidSize,
			fmt.Errorf("declared size %d outside (0, %d]", s.totalSize, max))
	}
	if err := r.ch.WriteByte(s.ackCursor.Next()); err != nil {
		return nil, fmt.Errorf("write size ack: %w", err)
	}

	// DataReceive: stream chunks into the sink, ack each one.
	r.state = StateDataReceive
	chunk := make([]byte, protocol.ChunkSize)
	for s.bytesReceived < s.totalSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := 0
		for n < protocol.ChunkSize && s.bytesReceived+uint32(n) < s.totalSize {
			b, err := r.ch.ReadByte(r.config.ReadTimeout)
			if err != nil {
				return r.fail(err, ReasonTimeout,
					fmt.Errorf("waiting for payload at offset %d", s.bytesReceived+uint32(n)))
			}
			chunk[n] = b
			s.runningCRC = protocol.CRCUpdate(s.runningCRC, b)
			n++
		}

		offset := int64(r.config.DestinationBase) + int64(s.bytesReceived)
		if _, err := r.sink.WriteAt(chunk[:n], offset); err != nil {
			return nil, fmt.Errorf("sink write at 0x%X: %w", offset, err)
		}
		s.bytesReceived += uint32(n)

		if err := r.ch.WriteByte(s.ackCursor.Next()); err != nil {
			return nil, fmt.Errorf("write chunk ack: %w", err)
		}
	}

	// CrcCmdWait: exactly 'C', case-sensitive.
	r.state = StateCrcCmdWait
	cmd, err := r.ch.ReadByte(r.config.ReadTimeout)
	if err != nil {
		return r.fail(err, ReasonTimeout, errors.New("waiting for CRC marker"))
	}
	if cmd != protocol.MarkerCRC {
		return r.fail(nil, ReasonProtocolError,
			fmt.Errorf("expected CRC marker 'C', got 0x%02X", cmd))
	}

	// CrcValueWait: read the host CRC, reply with ack + our own.
	r.state = StateCrcValueWait
	expectedCRC, err := protocol.ReadUint32(r.ch, r.config.ReadTimeout)
	if err != nil {
		return r.fail(err, ReasonTimeout, errors.New("waiting for CRC value"))
	}

	computedCRC := protocol.CRCFinalize(s.runningCRC)
	if err := r.ch.WriteByte(s.ackCursor.Next()); err != nil {
		return nil, fmt.Errorf("write final ack: %w", err)
	}
	if err := protocol.WriteUint32(r.ch, computedCRC); err != nil {
		return nil, fmt.Errorf("write computed CRC: %w", err)
	}

	// Verify: the receiver's comparison is the authoritative one.
	r.state = StateVerify
	if computedCRC != expectedCRC {
		return r.fail(nil, ReasonCRCMismatch,
			fmt.Errorf("computed 0x%08X, host sent 0x%08X", computedCRC, expectedCRC))
	}

	r.state = StateDone
	res := &Result{
		Base:   r.config.DestinationBase,
		Length: s.totalSize,
		CRC:    computedCRC,
	}
	r.logInfo("transfer complete",
		"base", fmt.Sprintf("0x%X", res.Base),
		"length", res.Length,
		"crc32", fmt.Sprintf("0x%08X", res.CRC),
	)
	if r.config.OnComplete != nil {
		r.config.OnComplete(res.Base, res.Length)
	}
	return res, nil
}

// Serve runs sessions until the context is cancelled. A recoverable
// receiver reports each failure and re-arms; a non-recoverable one
// returns the first failure, which is terminal until an external reset.
func (r *Receiver) Serve(ctx context.Context) error {
	for {
		_, err := r.Receive(ctx)
		if err == nil {
			// Verified image delivered; re-arm for the next session.
			continue
		}
		if errors.Is(err, ErrCancelled) {
			return nil
		}
		var fe *FailureError
		if errors.As(err, &fe) && r.config.Recoverable {
			continue
		}
		return err
	}
}

// fail marks the session failed. Timeouts on the channel map to
// ReasonTimeout; every other caller passes its reason explicitly.
func (r *Receiver) fail(cause error, reason Reason, detail error) (*Result, error) {
	if cause != nil && !errors.Is(cause, protocol.ErrTimeout) {
		// Not a protocol failure: the channel itself broke.
		return nil, fmt.Errorf("channel read: %w", cause)
	}

	r.state = StateFailed
	fe := &FailureError{Reason: reason, Err: detail}
	r.logError("session failed", "reason", reason.String(), "detail", detail)
	if r.config.OnFailed != nil {
		r.config.OnFailed(reason)
	}
	return nil, fe
}

func (r *Receiver) logDebug(msg string, kv ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, kv...)
	}
}

func (r *Receiver) logInfo(msg string, kv ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Info(msg, kv...)
	}
}

func (r *Receiver) logError(msg string, kv ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Error(msg, kv...)
	}
}
