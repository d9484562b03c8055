package protocol

import "hash/crc32"

// Streaming CRC32 matching the loader hardware: reflected algorithm,
// polynomial 0xEDB88320, initial value 0xFFFFFFFF, final complement.
// The table is the stdlib IEEE table, which uses the same polynomial,
// so finalized results equal crc32.ChecksumIEEE over the same bytes.

var crcTable = crc32.MakeTable(crc32.IEEE)

// CRCInit returns the initial accumulator value.
func CRCInit() uint32 {
	return 0xFFFFFFFF
}

// CRCUpdate folds one byte into the accumulator.
func CRCUpdate(crc uint32, b byte) uint32 {
	return (crc >> 8) ^ crcTable[(crc^uint32(b))&0xFF]
}

// CRCUpdateBytes folds a run of bytes into the accumulator.
func CRCUpdateBytes(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = CRCUpdate(crc, b)
	}
	return crc
}

// CRCFinalize complements the accumulator, yielding the wire CRC32.
func CRCFinalize(crc uint32) uint32 {
	return ^crc
}

// CRC32 computes the finalized CRC32 of a whole buffer.
func CRC32(p []byte) uint32 {
	return CRCFinalize(CRCUpdateBytes(CRCInit(), p))
}

// CRCScope selects which wire bytes the session CRC covers. The original
// system shipped both: the resident bootloader checksums payload bytes
// only, while the shell loader's test harness also folds in the 4-byte
// size field. Sender and receiver must be configured with the same scope.
type CRCScope int

const (
	// CRCPayloadOnly covers the payload bytes (bootloader behavior).
	CRCPayloadOnly CRCScope = iota

	// CRCSizeAndPayload covers the little-endian size field followed
	// by the payload bytes (shell loader harness behavior).
	CRCSizeAndPayload
)

// String returns the scope name.
func (s CRCScope) String() string {
	switch s {
	case CRCPayloadOnly:
		return "payload-only"
	case CRCSizeAndPayload:
		return "size+payload"
	default:
		return "unknown"
	}
}
