// Package sender implements the host side of the firmware upload
// protocol, mirroring the receiver state machine chunk for chunk.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

// ProgressCallback is called after each acknowledged chunk.
type ProgressCallback func(sent, total int)

// Config holds the uploader configuration.
type Config struct {
	// ReadTimeout bounds every wait for an acknowledgment.
	ReadTimeout time.Duration

	// CRCScope must match the receiver's configured scope.
	CRCScope protocol.CRCScope

	// Progress is called after each acknowledged chunk (optional).
	Progress ProgressCallback

	// Logger receives transfer diagnostics (optional).
	Logger protocol.Logger
}

func defaultConfig() Config {
	return Config{
		ReadTimeout: 2 * time.Second,
		CRCScope:    protocol.CRCPayloadOnly,
	}
}

// Option is a functional option for configuring the Uploader.
type Option func(*Config)

// WithReadTimeout sets the acknowledgment timeout.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = timeout
	}
}

// WithCRCScope selects the bytes covered by the transfer CRC.
func WithCRCScope(scope protocol.CRCScope) Option {
	return func(c *Config) {
		c.CRCScope = scope
	}
}

// WithProgressCallback sets a per-chunk progress callback.
func WithProgressCallback(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// WithLogger sets a logger for transfer diagnostics.
func WithLogger(logger protocol.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Stats summarizes a finished upload.
type Stats struct {
	BytesSent int
	Chunks    int
	Elapsed   time.Duration
	LocalCRC  uint32
	DeviceCRC uint32
}

// Uploader streams an image to a receiver over a byte channel.
type Uploader struct {
	ch     protocol.ByteChannel
	config Config
}

// New creates an Uploader for the given channel.
func New(ch protocol.ByteChannel, opts ...Option) *Uploader {
	if ch == nil {
		panic("channel cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Uploader{ch: ch, config: cfg}
}

// Upload performs one complete transfer of data. It returns transfer
// statistics on success. A *DesyncError means the receiver's ack cycle
// drifted from ours; a *CRCReportError means the device reported a CRC
// different from the local one (the receiver has already failed the
// session on its side in that case). There is no retry primitive:
// recovery is a whole new Upload call.
func (u *Uploader) Upload(ctx context.Context, data []byte) (*Stats, error) {
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}

	start := time.Now()
	ack := protocol.NewAckCursor()

	// Ready handshake.
	if err := u.ch.WriteByte(protocol.MarkerReady); err != nil {
		return nil, fmt.Errorf("write ready marker: %w", err)
	}
	if err := u.expectAck(ack.Next()); err != nil {
		return nil, fmt.Errorf("ready handshake: %w", err)
	}

	// Declared size.
	size := uint32(len(data))
	sizeField := protocol.PutUint32(size)
	if _, err := u.ch.Write(sizeField); err != nil {
		return nil, fmt.Errorf("write size: %w", err)
	}
	if err := u.expectAck(ack.Next()); err != nil {
		return nil, fmt.Errorf("size handshake: %w", err)
	}

	crc := protocol.CRCInit()
	if u.config.CRCScope == protocol.CRCSizeAndPayload {
		crc = protocol.CRCUpdateBytes(crc, sizeField)
	}

	// Payload in acknowledged chunks.
	totalChunks := (len(data) + protocol.ChunkSize - 1) / protocol.ChunkSize
	chunks := 0
	for off := 0; off < len(data); off += protocol.ChunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := off + protocol.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		if _, err := u.ch.Write(chunk); err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", chunks+1, err)
		}
		crc = protocol.CRCUpdateBytes(crc, chunk)

		if err := u.expectAck(ack.Next()); err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", chunks+1, totalChunks, err)
		}
		chunks++
		u.reportProgress(end, len(data))
	}

	// CRC phase: marker, our CRC, then the device's ack and CRC echo.
	localCRC := protocol.CRCFinalize(crc)
	u.logDebug("sending CRC", "crc32", fmt.Sprintf("0x%08X", localCRC))

	if err := u.ch.WriteByte(protocol.MarkerCRC); err != nil {
		return nil, fmt.Errorf("write CRC marker: %w", err)
	}
	if err := protocol.WriteUint32(u.ch, localCRC); err != nil {
		return nil, fmt.Errorf("write CRC value: %w", err)
	}

	if err := u.expectAck(ack.Next()); err != nil {
		return nil, fmt.Errorf("CRC handshake: %w", err)
	}
	deviceCRC, err := protocol.ReadUint32(u.ch, u.config.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("read device CRC: %w", err)
	}

	stats := &Stats{
		BytesSent: len(data),
		Chunks:    chunks,
		Elapsed:   time.Since(start),
		LocalCRC:  localCRC,
		DeviceCRC: deviceCRC,
	}

	if deviceCRC != localCRC {
		u.logError("device CRC differs",
			"device", fmt.Sprintf("0x%08X", deviceCRC),
			"local", fmt.Sprintf("0x%08X", localCRC),
		)
		return stats, &CRCReportError{Local: localCRC, Device: deviceCRC}
	}

	u.logInfo("upload complete",
		"bytes", stats.BytesSent,
		"chunks", stats.Chunks,
		"elapsed", stats.Elapsed.String(),
	)
	return stats, nil
}

// expectAck reads one acknowledgment byte and checks it against the
// letter our own cursor predicts.
func (u *Uploader) expectAck(want byte) error {
	got, err := u.ch.ReadByte(u.config.ReadTimeout)
	if err != nil {
		return fmt.Errorf("waiting for ack %q: %w", want, err)
	}
	if got != want {
		return &DesyncError{Got: got, Want: want}
	}
	return nil
}

func (u *Uploader) reportProgress(sent, total int) {
	if u.config.Progress != nil {
		u.config.Progress(sent, total)
	}
}

func (u *Uploader) logDebug(msg string, kv ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, kv...)
	}
}

func (u *Uploader) logInfo(msg string, kv ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, kv...)
	}
}

func (u *Uploader) logError(msg string, kv ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, kv...)
	}
}
