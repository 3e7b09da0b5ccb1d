// Package sentinel holds the storage-level facts that key, claim and
// verification stores report. The service layer maps them to domain codes.
package sentinel

import "errors"

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness guard rejected the write, such as a
	// second live key with the same normalized value.
	ErrConflict = errors.New("conflict")
	// ErrStaleWrite means the state/version compare-and-swap lost a race.
	ErrStaleWrite = errors.New("stale write")
)
