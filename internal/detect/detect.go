// Package detect locates a board whose loader is armed and waiting for
// an upload.
package detect

import (
	"fmt"
	"time"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/serial"
)

// Result describes a port with a responsive loader.
type Result struct {
	Port string
}

// probeTimeout bounds the wait for the ready acknowledgment.
const probeTimeout = 500 * time.Millisecond

// DetectDevice scans all serial ports and returns the first one with a
// responsive loader.
//
// The probe starts a real session and aborts it with a zero size, which
// the interactive loader rejects and recovers from. The resident
// bootloader halts on that rejection, so only probe ports running the
// shell loader.
func DetectDevice(baudRate int) (*Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no armed loader found (last error: %w)", lastErr)
	}
	return nil, fmt.Errorf("no armed loader found")
}

// DetectOnPort probes a specific port for an armed loader.
func DetectOnPort(portName string, baudRate int) (*Result, error) {
	return tryPort(portName, baudRate)
}

// ListDevices scans all ports and returns every responsive loader.
func ListDevices(baudRate int) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for _, portName := range ports {
		result, err := tryPort(portName, baudRate)
		if err == nil {
			results = append(results, *result)
		}
	}

	return results, nil
}

func tryPort(portName string, baudRate int) (*Result, error) {
	port, err := serial.Open(portName, baudRate)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	// Discard any shell banner or echo sitting in the buffer.
	if err := port.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush: %w", err)
	}

	// Ready handshake: an armed loader answers 'R' with 'A'.
	if err := port.WriteByte(protocol.MarkerReady); err != nil {
		return nil, fmt.Errorf("failed to probe: %w", err)
	}
	ack, err := port.ReadByte(probeTimeout)
	if err != nil {
		return nil, fmt.Errorf("no ready ack: %w", err)
	}
	if ack != 'A' {
		return nil, fmt.Errorf("unexpected ready ack 0x%02X", ack)
	}

	// Abort the probe session with a zero size. The loader rejects it
	// as INVALID_SIZE and (in the recoverable variant) re-arms.
	if err := protocol.WriteUint32(port, 0); err != nil {
		return nil, fmt.Errorf("failed to abort probe session: %w", err)
	}

	return &Result{Port: portName}, nil
}
