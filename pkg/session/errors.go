package session

import "errors"

var (
	// ErrCapacityExceeded is returned when creating a session would push the
	// live count past the configured maximum. It is not retryable with the
	// same parameters; callers must back off or queue externally.
	ErrCapacityExceeded = errors.New("session capacity exceeded")

	// ErrSessionExists is returned when creating a session under an id that
	// is already live.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned for operations referencing an unknown
	// or already-removed session id. Never retried automatically.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when an operation reaches a session that
	// is closing or closed but not yet removed.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionExhausted is returned when a session has served its full
	// request allowance. The session is closed; a fresh one is required.
	ErrSessionExhausted = errors.New("session request limit reached")

	// ErrOperationTimeout marks an operation that hit its deadline. The
	// owning session is force-closed because the handle's state after a
	// timed-out operation is unreliable.
	ErrOperationTimeout = errors.New("operation timed out")
)
