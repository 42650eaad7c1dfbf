package frame

import "errors"

// Integrity failures reported by [Decode]. All are recoverable: the caller
// treats the stored value as absent or corrupt, never as partially valid.
var (
	ErrSizeMismatch     = errors.New("frame: size mismatch")
	ErrVersionMismatch  = errors.New("frame: version mismatch")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
)
