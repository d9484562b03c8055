package sender

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/link"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/receiver"
)

// runAgainstReceiver drives a real receiver on the other end of an
// in-memory link and uploads data to it.
func runAgainstReceiver(t *testing.T, data []byte, upOpts []Option, rcvOpts []receiver.Option) (*Stats, error, *receiver.RAMSink) {
	t.Helper()

	host, dev := link.Pipe(1 << 16)
	defer host.Close()
	defer dev.Close()

	sink := receiver.NewRAMSink(1 << 16)
	rcvOpts = append([]receiver.Option{
		receiver.WithReadTimeout(time.Second),
		receiver.WithIdleTimeout(time.Second),
	}, rcvOpts...)
	r := receiver.New(dev, sink, rcvOpts...)

	rcvDone := make(chan error, 1)
	go func() {
		_, err := r.Receive(context.Background())
		rcvDone <- err
	}()

	u := New(host, append([]Option{WithReadTimeout(time.Second)}, upOpts...)...)
	stats, err := u.Upload(context.Background(), data)

	select {
	case <-rcvDone:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not finish")
	}
	return stats, err, sink
}

func TestUpload_RoundTripSizes(t *testing.T) {
	sizes := []int{1, 63, 64, 65, 130, 1000}
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i*7 + size)
		}

		stats, err, sink := runAgainstReceiver(t, data, nil, nil)
		if err != nil {
			t.Fatalf("Upload(%d bytes) error: %v", size, err)
		}
		if stats.BytesSent != size {
			t.Errorf("Stats.BytesSent = %d, want %d", stats.BytesSent, size)
		}
		wantChunks := (size + protocol.ChunkSize - 1) / protocol.ChunkSize
		if stats.Chunks != wantChunks {
			t.Errorf("Stats.Chunks = %d, want %d", stats.Chunks, wantChunks)
		}
		if stats.LocalCRC != stats.DeviceCRC {
			t.Errorf("CRC disagreement: local 0x%08X, device 0x%08X",
				stats.LocalCRC, stats.DeviceCRC)
		}
		if got := sink.Image(0, uint32(size)); !bytes.Equal(got, data) {
			t.Errorf("sink contents differ for size %d", size)
		}
	}
}

func TestUpload_SizeAndPayloadScopeRoundTrip(t *testing.T) {
	data := []byte("shell loader image with size in CRC scope")

	stats, err, sink := runAgainstReceiver(t, data,
		[]Option{WithCRCScope(protocol.CRCSizeAndPayload)},
		[]receiver.Option{receiver.WithCRCScope(protocol.CRCSizeAndPayload)},
	)
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	covered := append(protocol.PutUint32(uint32(len(data))), data...)
	if want := protocol.CRC32(covered); stats.LocalCRC != want {
		t.Errorf("Stats.LocalCRC = 0x%08X, want 0x%08X", stats.LocalCRC, want)
	}
	if !bytes.Equal(sink.Image(0, uint32(len(data))), data) {
		t.Error("sink contents differ from payload")
	}
}

func TestUpload_MismatchedScopesFailAtReceiver(t *testing.T) {
	data := []byte("scope mismatch")

	_, err, _ := runAgainstReceiver(t, data,
		[]Option{WithCRCScope(protocol.CRCPayloadOnly)},
		[]receiver.Option{receiver.WithCRCScope(protocol.CRCSizeAndPayload)},
	)

	// The receiver's CRC covers more bytes than ours, so it reports a
	// different value back.
	var re *CRCReportError
	if !errors.As(err, &re) {
		t.Fatalf("Upload() error = %v, want CRCReportError", err)
	}
	if re.Local == re.Device {
		t.Error("expected differing CRCs across mismatched scopes")
	}
}

func TestUpload_EmptyImage(t *testing.T) {
	host, dev := link.Pipe(64)
	defer host.Close()
	defer dev.Close()

	u := New(host, WithReadTimeout(50*time.Millisecond))
	if _, err := u.Upload(context.Background(), nil); err == nil {
		t.Fatal("Upload(nil) expected error, got nil")
	}
}

func TestUpload_ProgressCallback(t *testing.T) {
	data := make([]byte, 130)

	var reported []int
	_, err, _ := runAgainstReceiver(t, data,
		[]Option{WithProgressCallback(func(sent, total int) {
			if total != 130 {
				t.Errorf("progress total = %d, want 130", total)
			}
			reported = append(reported, sent)
		})},
		nil,
	)
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	want := []int{64, 128, 130}
	if len(reported) != len(want) {
		t.Fatalf("progress calls = %v, want %v", reported, want)
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, reported[i], want[i])
		}
	}
}

func TestUpload_DesyncDetection(t *testing.T) {
	// Scripted receiver acks the ready and size phases correctly,
	// then answers the first chunk with the wrong letter.
	host, dev := link.Pipe(1 << 12)
	defer host.Close()
	defer dev.Close()
	dev.Write([]byte{'A', 'B', 'X'})

	u := New(host, WithReadTimeout(100*time.Millisecond))
	_, err := u.Upload(context.Background(), make([]byte, 10))

	var de *DesyncError
	if !errors.As(err, &de) {
		t.Fatalf("Upload() error = %v, want DesyncError", err)
	}
	if de.Got != 'X' || de.Want != 'C' {
		t.Errorf("DesyncError = got %q want %q, expected got 'X' want 'C'", de.Got, de.Want)
	}
}

func TestUpload_DeviceCRCReportMismatch(t *testing.T) {
	// Scripted receiver completes the handshake but echoes a bogus CRC.
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	host, dev := link.Pipe(1 << 12)
	defer host.Close()
	defer dev.Close()
	script := []byte{'A', 'B', 'C', 'D'}
	script = append(script, protocol.PutUint32(0x12345678)...)
	dev.Write(script)

	u := New(host, WithReadTimeout(100*time.Millisecond))
	stats, err := u.Upload(context.Background(), data)

	var re *CRCReportError
	if !errors.As(err, &re) {
		t.Fatalf("Upload() error = %v, want CRCReportError", err)
	}
	if re.Device != 0x12345678 {
		t.Errorf("CRCReportError.Device = 0x%08X, want 0x12345678", re.Device)
	}
	if re.Local != protocol.CRC32(data) {
		t.Errorf("CRCReportError.Local = 0x%08X, want 0x%08X", re.Local, protocol.CRC32(data))
	}
	if stats == nil || stats.DeviceCRC != 0x12345678 {
		t.Error("Stats must still carry the device-reported CRC")
	}
}

func TestUpload_AckTimeout(t *testing.T) {
	host, dev := link.Pipe(1 << 12)
	defer host.Close()
	defer dev.Close()

	u := New(host, WithReadTimeout(30*time.Millisecond))
	_, err := u.Upload(context.Background(), []byte{0x01})

	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("Upload() with silent receiver = %v, want wrapped protocol.ErrTimeout", err)
	}
}

func TestUpload_ContextCancellation(t *testing.T) {
	host, dev := link.Pipe(1 << 12)
	defer host.Close()
	defer dev.Close()
	dev.Write([]byte{'A', 'B'})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u := New(host, WithReadTimeout(100*time.Millisecond))
	_, err := u.Upload(ctx, make([]byte, 200))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload() with cancelled context = %v, want context.Canceled", err)
	}
}
