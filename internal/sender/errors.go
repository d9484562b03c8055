package sender

import "fmt"

// DesyncError indicates the receiver acknowledged with an unexpected
// letter. The ack cycle is tracked independently on each side, so a
// wrong letter means the two ends disagree about how many chunks have
// been exchanged.
type DesyncError struct {
	Got  byte
	Want byte
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("acknowledgment desync: got 0x%02X (%q), want %q",
		e.Got, e.Got, e.Want)
}

// CRCReportError indicates the device-reported CRC differs from the
// locally computed one. The receiver's own verify step is the
// authoritative check; this report is diagnostic and the sender never
// retries on it.
type CRCReportError struct {
	Local  uint32
	Device uint32
}

func (e *CRCReportError) Error() string {
	return fmt.Sprintf("device reported CRC 0x%08X, local CRC 0x%08X",
		e.Device, e.Local)
}
