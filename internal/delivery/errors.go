package delivery

import "errors"

// Error taxonomy for synchronous operations. Handlers map these onto the
// client-visible error events; anything else is a storage failure
// propagated as-is.
var (
	// ErrInvalidInput marks a request missing required fields, rejected
	// before any persistence.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccessDenied marks an attempt to act on a message the requester
	// does not own.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound marks a reference to a message or conversation that does
	// not exist.
	ErrNotFound = errors.New("not found")
)
