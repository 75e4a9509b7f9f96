// -----------------------------------------------------------------------
// Sentinel errors shared across services and handlers
// -----------------------------------------------------------------------

package common

import "errors"

var (
	// ErrNotFound - requested entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrOverloaded - submission queue is at capacity
	ErrOverloaded = errors.New("node overloaded")

	// ErrStatusConflict - conditional status transition lost the race
	ErrStatusConflict = errors.New("job status conflict")

	// ErrJobTerminal - job already reached a terminal state
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrKindNotAllowed - script kind is not on this node's allow-list
	ErrKindNotAllowed = errors.New("script kind not allowed")

	// ErrRateLimited - requester exceeded the submission rate limit
	ErrRateLimited = errors.New("rate limit exceeded")
)
