package interfaces

import "errors"

// Common interface errors used across components
// ARCHITECTURAL DISCOVERY: The error taxonomy drives retry decisions -
// transient errors are retried, the rest clear local state immediately
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionEnded        = errors.New("session already ended")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrTransient           = errors.New("transient server error")
	ErrMissingCredentials  = errors.New("no credential supplied for channel connect")
	ErrUnsupportedEndpoint = errors.New("no endpoint for this role/scope combination")
)
