package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidEventType    = errors.New("invalid event type")
	ErrInvalidStatus       = errors.New("invalid session status")
	ErrInvalidScope        = errors.New("channel scope must be 'session' or 'lesson'")
	ErrInvalidDeliveryMode = errors.New("delivery mode must be 'cast' or 'unicast'")
	ErrInvalidRole         = errors.New("role must be 'student', 'teacher' or 'admin'")
	ErrMissingEventID      = errors.New("event is missing an event_id")
	ErrInvalidSessionID    = errors.New("session id must be positive")
)
