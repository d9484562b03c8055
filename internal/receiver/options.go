package receiver

import (
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

// CompleteCallback is invoked after a verified image has been written.
// The device-specific action (jumping to the image, reporting to the
// shell) belongs to the callback, not the receiver.
type CompleteCallback func(base, length uint32)

// FailedCallback is invoked with the reason when a session fails.
type FailedCallback func(reason Reason)

// Config holds the receiver configuration.
type Config struct {
	// DestinationBase is the start address for the image in the sink.
	DestinationBase uint32

	// MaxImageSize caps the declared size below the sink capacity.
	// Zero means the sink capacity (minus DestinationBase) is the cap.
	MaxImageSize uint32

	// ReadTimeout bounds every blocking read after a session starts.
	ReadTimeout time.Duration

	// IdleTimeout bounds the wait for the ready marker. Zero blocks
	// forever (resident bootloader behavior).
	IdleTimeout time.Duration

	// Recoverable selects the Failed-state behavior: false halts
	// (the error is terminal for the receiver), true re-arms so a
	// fresh session may start.
	Recoverable bool

	// CRCScope selects the bytes covered by the session CRC.
	CRCScope protocol.CRCScope

	// OnComplete is called after each verified transfer (optional).
	OnComplete CompleteCallback

	// OnFailed is called with the reason for each failed session (optional).
	OnFailed FailedCallback

	// Logger receives session-level diagnostics (optional).
	Logger protocol.Logger
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ReadTimeout: 2 * time.Second,
		CRCScope:    protocol.CRCPayloadOnly,
	}
}

// Option is a functional option for configuring the Receiver.
type Option func(*Config)

// WithDestinationBase sets the image start address in the sink.
func WithDestinationBase(base uint32) Option {
	return func(c *Config) {
		c.DestinationBase = base
	}
}

// WithMaxImageSize caps the accepted image size below the sink capacity.
func WithMaxImageSize(max uint32) Option {
	return func(c *Config) {
		c.MaxImageSize = max
	}
}

// WithReadTimeout sets the in-session read timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithIdleTimeout bounds the wait for the ready marker.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.IdleTimeout = timeout
	}
}

// WithRecoverable selects re-arm (true) or halt (false) on failure.
func WithRecoverable(recoverable bool) Option {
	return func(c *Config) {
		c.Recoverable = recoverable
	}
}

// WithCRCScope selects the bytes covered by the session CRC.
func WithCRCScope(scope protocol.CRCScope) Option {
	return func(c *Config) {
		c.CRCScope = scope
	}
}

// WithCompleteCallback sets the callback for verified transfers.
func WithCompleteCallback(cb CompleteCallback) Option {
	return func(c *Config) {
		c.OnComplete = cb
	}
}

// WithFailedCallback sets the callback for failed sessions.
func WithFailedCallback(cb FailedCallback) Option {
	return func(c *Config) {
		c.OnFailed = cb
	}
}

// WithLogger sets a logger for session diagnostics.
func WithLogger(logger protocol.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
