package service

import "errors"

// Error taxonomy shared by the messaging services. Handlers map these to HTTP
// statuses; the sync engine retries only ErrTransient.
var (
	// ErrValidation indicates malformed input. Recovered locally, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks permission for the operation.
	ErrForbidden = errors.New("operation forbidden")
	// ErrNotFound indicates a referenced conversation, message, or parent is missing.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict indicates a unique-constraint race, e.g. concurrent reaction
	// toggles. Callers treat it as a no-op success.
	ErrConflict = errors.New("conflicting write")
	// ErrTransient indicates the store or feed is temporarily unavailable.
	ErrTransient = errors.New("transient failure")
)
