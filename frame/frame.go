// Package frame implements the on-media record framing shared by the
// key-value and record stores.
//
// A framed record is a fixed-layout byte sequence:
//
//	version  : 1 byte
//	reserved : 3 bytes (zero on encode, ignored on decode)
//	checksum : 4 bytes little-endian, CRC-32 (IEEE) over the payload bytes
//	payload  : little-endian fixed-width encoding of the value
//
// The payload uses an explicit little-endian fixed-width encoding rather
// than the host's in-memory layout, so records written on one architecture
// decode on any other. Payload types must have a fixed encoded size per
// [encoding/binary.Size]: fixed-width numeric fields, arrays and nested
// structs thereof; no strings or maps.
//
// Decode never returns a partially decoded value: every validation failure
// is a typed error and leaves the output untouched, so torn or corrupted
// media reads degrade to "value absent" instead of garbage.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// HeaderSize is the number of bytes preceding the payload.
const HeaderSize = 8

// Byte offsets within the header.
const (
	versionOffset  = 0
	checksumOffset = 4
	payloadOffset  = HeaderSize
)

// Size returns the framed size in bytes for values of type T.
func Size[T any]() (int, error) {
	var zero T
	n := binary.Size(&zero)
	if n < 0 {
		return 0, fmt.Errorf("frame: type %T has no fixed encoded size", zero)
	}
	return HeaderSize + n, nil
}

// Encode frames value with the given format version.
func Encode[T any](value *T, version uint8) ([]byte, error) {
	payloadLen := binary.Size(value)
	if payloadLen < 0 {
		return nil, fmt.Errorf("frame: type %T has no fixed encoded size", value)
	}
	buf := make([]byte, HeaderSize+payloadLen)
	buf[versionOffset] = version
	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.LittleEndian, value); err != nil {
		return nil, fmt.Errorf("frame: encode payload: %w", err)
	}
	copy(buf[payloadOffset:], payload.Bytes())
	binary.LittleEndian.PutUint32(buf[checksumOffset:payloadOffset], crc32.ChecksumIEEE(buf[payloadOffset:]))
	return buf, nil
}

// Decode validates raw and, only on full success, decodes the payload into
// out. Checks run in order and short-circuit on the first failure: exact
// framed length for T ([ErrSizeMismatch]), format version equality
// ([ErrVersionMismatch]), then CRC-32 over the payload region
// ([ErrChecksumMismatch]). out is not modified unless every check passes.
func Decode[T any](raw []byte, expectedVersion uint8, out *T) error {
	payloadLen := binary.Size(out)
	if payloadLen < 0 {
		return fmt.Errorf("frame: type %T has no fixed encoded size", out)
	}
	if len(raw) != HeaderSize+payloadLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(raw), HeaderSize+payloadLen)
	}
	if v := raw[versionOffset]; v != expectedVersion {
		return fmt.Errorf("%w: stored %d, expected %d", ErrVersionMismatch, v, expectedVersion)
	}
	stored := binary.LittleEndian.Uint32(raw[checksumOffset:payloadOffset])
	if computed := crc32.ChecksumIEEE(raw[payloadOffset:]); computed != stored {
		return fmt.Errorf("%w: stored 0x%08X, computed 0x%08X", ErrChecksumMismatch, stored, computed)
	}
	if err := binary.Read(bytes.NewReader(raw[payloadOffset:]), binary.LittleEndian, out); err != nil {
		return fmt.Errorf("frame: decode payload: %w", err)
	}
	return nil
}
