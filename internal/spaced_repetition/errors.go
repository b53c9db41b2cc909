package spaced_repetition

import "errors"

// Sentinel errors for the engine and its stores.
// Use errors.Is to check: errors.Is(err, spaced_repetition.ErrInvalidInput)
var (
	// ErrNotFound is returned by ProgressStore.Get for a card that was never reviewed.
	// The engine never surfaces it: an absent record is the zero-state.
	ErrNotFound = errors.New("srs: progress record not found")
	// ErrInvalidInput rejects malformed identifiers or levels before any store access
	ErrInvalidInput = errors.New("srs: invalid input")
	// ErrStoreUnavailable wraps I/O failures of the underlying store
	ErrStoreUnavailable = errors.New("srs: progress store unavailable")
	// ErrConflict signals that a single optimistic commit lost a race.
	// Stores return it to RetryPolicy.Run, callers only ever see ErrConflictExhausted.
	ErrConflict = errors.New("srs: concurrent modification")
	// ErrConflictExhausted is returned when an atomic update could not commit within the retry budget
	ErrConflictExhausted = errors.New("srs: conflict retry budget exhausted")
)
