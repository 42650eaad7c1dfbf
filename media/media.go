// Package media abstracts the raw non-volatile backing store consumed by
// the kv and record packages.
//
// The [Gateway] interface is the only surface the stores depend on: mount
// status, free-space accounting, and raw named-blob I/O. [FlashDir]
// implements it on a plain directory (one file per blob, a configured
// capacity standing in for the flash partition size). [Mem] implements it
// on a map, for tests and RAM-only hosts.
//
// Gateways make no atomic replace-on-write promise. A write interrupted
// mid-transfer leaves a short or torn blob behind; the frame package's
// length and checksum validation is the defense, so gateways deliberately
// write in place instead of staging through a temp file and rename.
package media

import "errors"

// ErrNotFound reports that no blob exists under the requested id.
var ErrNotFound = errors.New("media: blob not found")

// Gateway is the raw media surface the stores write through.
//
// Blob ids are slash-separated relative paths ("namespace/key",
// "state/telemetry"). A Gateway reports how much was written so callers
// can detect short writes; it never retries or buffers on their behalf.
type Gateway interface {
	// Mounted reports whether the backing media is usable.
	Mounted() bool
	// FreeBytes returns an estimate of the space left on the media.
	FreeBytes() int64
	// ReadBlob returns the full content of a blob, or ErrNotFound.
	ReadBlob(id string) ([]byte, error)
	// WriteBlob replaces the blob's content, returning the bytes written.
	WriteBlob(id string, data []byte) (int, error)
	// StatBlob returns the stored size of a blob, or ErrNotFound.
	StatBlob(id string) (int64, error)
	// DeleteBlob removes a blob. Returns ErrNotFound when absent.
	DeleteBlob(id string) error
	// ListBlobs returns the ids of all blobs whose id starts with prefix.
	ListBlobs(prefix string) ([]string, error)
	// EraseAll removes every blob, returning the media to its freshly
	// formatted state.
	EraseAll() error
}

// Stats describes media usage.
type Stats struct {
	TotalBytes  int64
	UsedBytes   int64
	FreeBytes   int64
	UsedPercent float64
}
