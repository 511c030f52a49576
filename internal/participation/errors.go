package participation

import "errors"

// Coordinator-related errors
var (
	ErrNoJoinableSession = errors.New("no joinable session for lesson")
	ErrJoinGaveUp        = errors.New("join failed after retries")
	ErrNotJoined         = errors.New("no active participation")
)
