package exchange

import "errors"

// Sentinel errors returned by Exchange operations. Callers match them with
// errors.Is; the HTTP layer maps each to a status code in one place.
var (
	// ErrValidation marks a malformed registration or request. Not retryable.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownWorker means the worker id is not registered, or was demoted
	// to OFFLINE. The station must re-register.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrNoWorkerAvailable means no ONLINE worker advertises the requested
	// tool. Retryable once a station registers.
	ErrNoWorkerAvailable = errors.New("no worker available")

	// ErrInstanceNotBound means the instance id has no live patch: it was
	// never created, was released, or its worker was swept.
	ErrInstanceNotBound = errors.New("instance not bound")

	// ErrInstanceBound means a patch already exists for the instance id.
	ErrInstanceBound = errors.New("instance already bound")
)
