package receiver

import (
	"errors"
	"fmt"
)

// Reason classifies why a session reached the Failed state. Every
// failure is terminal for its session; recovery is a whole new session
// initiated by a fresh ready marker.
type Reason int

const (
	// ReasonInvalidSize means the declared size was zero or exceeded
	// the receiver's capacity.
	ReasonInvalidSize Reason = iota + 1

	// ReasonProtocolError means an unexpected byte arrived where a
	// specific marker was required.
	ReasonProtocolError

	// ReasonCRCMismatch means the integrity check failed.
	ReasonCRCMismatch

	// ReasonTimeout means no byte arrived within the allotted window.
	ReasonTimeout
)

// String returns the wire-level reason name.
func (r Reason) String() string {
	switch r {
	case ReasonInvalidSize:
		return "INVALID_SIZE"
	case ReasonProtocolError:
		return "PROTOCOL_ERROR"
	case ReasonCRCMismatch:
		return "CRC_MISMATCH"
	case ReasonTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}

// FailureError is returned when a session ends in the Failed state.
type FailureError struct {
	Reason Reason
	Err    error
}

func (e *FailureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transfer failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transfer failed (%s)", e.Reason)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// ErrCancelled is returned when the idle wait is abandoned by a Ctrl-C
// byte from the host (interactive loader only).
var ErrCancelled = errors.New("upload cancelled before start")
