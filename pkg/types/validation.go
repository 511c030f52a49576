package types

// Validate ensures an inbound envelope is well-formed enough to dispatch.
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across all components without duplicating validation logic
func (e *Event) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}
	if !IsValidEventType(e.Type) {
		return ErrInvalidEventType
	}
	if !IsValidScope(e.Channel.Scope) {
		return ErrInvalidScope
	}
	// FUNCTIONAL DISCOVERY: Delivery mode defaulting happens during
	// validation so every dispatch path sees a populated field
	if e.DeliveryMode == "" {
		e.DeliveryMode = DeliveryCast
	}
	if e.DeliveryMode != DeliveryCast && e.DeliveryMode != DeliveryUnicast {
		return ErrInvalidDeliveryMode
	}
	return nil
}

// IsValidEventType checks the type against the allowed wire set.
func IsValidEventType(t string) bool {
	switch t {
	case EventBootstrap,
		EventCellChanged,
		EventDisplayModeChanged,
		EventSessionStatusChange,
		EventSessionEnded,
		EventActivityStarted,
		EventActivityEnded,
		EventError,
		EventPing,
		EventUpdateProgress,
		EventRequestStatistics,
		EventReconnectFailed:
		return true
	default:
		return false
	}
}

// IsValidStatus checks a session status against the lifecycle set.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusActive, StatusPaused, StatusEnded:
		return true
	default:
		return false
	}
}

// IsValidScope checks a channel scope.
func IsValidScope(s string) bool {
	return s == ScopeSession || s == ScopeLesson
}

// IsValidRole checks a connection role.
func IsValidRole(r string) bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// ClampPercent bounds a progress percentage to [0, 100].
func ClampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
