package record

import "errors"

// Operational failures on the write path, in precondition order. Load
// failures surface as the frame package's sentinel errors or
// [ErrNotFound].
var (
	// ErrNotFound reports that no record exists at the store's path.
	ErrNotFound = errors.New("record: not found")
	// ErrBlocked reports that the write-inhibit gate is set.
	ErrBlocked = errors.New("record: writes inhibited")
	// ErrNotMounted reports that the backing media is unavailable.
	ErrNotMounted = errors.New("record: media not mounted")
	// ErrNoSpace reports free space below the framed size plus safety
	// margin.
	ErrNoSpace = errors.New("record: insufficient free space")
	// ErrWriteFailed reports a failed or short media write. The store
	// stays dirty so a later tick or flush retries.
	ErrWriteFailed = errors.New("record: write failed")
)
