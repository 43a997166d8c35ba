package store

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrNoQueuedTasks indicates that no task is available to claim.
	ErrNoQueuedTasks = errors.New("no queued tasks")

	// ErrTaskTerminal indicates an attempted transition out of a terminal state.
	ErrTaskTerminal = errors.New("task already terminal")

	// ErrNotQueued indicates an operation that requires a queued task
	// (cancellation) was attempted on a task that has already been claimed.
	ErrNotQueued = errors.New("task is not queued")

	// ErrDuplicateInFlight indicates a queued or started task already exists
	// for the same (organization, url) pair.
	ErrDuplicateInFlight = errors.New("task already in flight for this url")
)
