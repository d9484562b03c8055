package protocol

// Wire markers used by the upload protocol.
const (
	MarkerReady    = 'R'  // host requests a transfer ('r' is accepted too)
	MarkerReadyAlt = 'r'
	MarkerCRC      = 'C'  // CRC phase follows; case-sensitive, uppercase only
	CancelByte     = 0x03 // Ctrl-C aborts the idle wait (interactive loader)
)

// Acknowledgment range. The ack cursor starts at 'A' and cycles through
// uppercase letters for the whole session, wrapping 'Z' back to 'A'.
const (
	AckFirst = 'A'
	AckLast  = 'Z'
)

// Transfer parameters.
const (
	// ChunkSize is the maximum payload run acknowledged as a unit.
	ChunkSize = 64

	// DefaultMaxImageSize matches the 256KB firmware region on the
	// iCE40HX8K board (0x00000000-0x0003FFFF).
	DefaultMaxImageSize = 256 * 1024

	// DefaultBaudRate for the board's UART bridge.
	DefaultBaudRate = 115200
)

// SizeFieldLen and CRCFieldLen are both 4-byte little-endian integers.
const (
	SizeFieldLen = 4
	CRCFieldLen  = 4
)

// IsReadyMarker reports whether b initiates a transfer.
func IsReadyMarker(b byte) bool {
	return b == MarkerReady || b == MarkerReadyAlt
}
