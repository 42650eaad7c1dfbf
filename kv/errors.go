package kv

import "errors"

// Policy rejections and lookup failures. Integrity failures surface as the
// frame package's sentinel errors.
var (
	// ErrNotFound reports that no record is stored under the key.
	ErrNotFound = errors.New("kv: key not found")
	// ErrTooLarge reports a framed record above the namespace capacity
	// ceiling. The write was skipped.
	ErrTooLarge = errors.New("kv: record too large")
	// ErrThrottled reports a save inside the minimum save interval. The
	// write was skipped; the caller's data is unchanged.
	ErrThrottled = errors.New("kv: save throttled")
)
