// Package serial wraps a UART port as the protocol's byte channel.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/mikewolak/olimex-ice40hx8k-riscv-sub000/internal/protocol"
)

// Port wraps a serial port connected to the board's UART bridge.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate (8N1).
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// ReadByte reads one byte, waiting at most timeout for it to arrive.
// A zero or negative timeout blocks until a byte is available.
func (p *Port) ReadByte(timeout time.Duration) (byte, error) {
	if timeout <= 0 {
		if err := p.port.SetReadTimeout(serial.NoTimeout); err != nil {
			return 0, err
		}
	} else {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
	}

	var buf [1]byte
	for {
		n, err := p.port.Read(buf[:])
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return buf[0], nil
		}
		// Read returned without data: the driver timeout expired.
		if timeout > 0 {
			return 0, protocol.ErrTimeout
		}
	}
}

// WriteByte sends one byte.
func (p *Port) WriteByte(b byte) error {
	_, err := p.port.Write([]byte{b})
	return err
}

// Write sends data to the serial port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// Flush discards any buffered input (e.g. shell echo before a transfer).
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// Drain blocks until all written bytes have left the transmitter.
func (p *Port) Drain() error {
	return p.port.Drain()
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
