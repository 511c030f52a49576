package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ARCHITECTURAL DISCOVERY: Event type constants defined exactly as carried on
// the wire to ensure compatibility with every routing decision in the system
const (
	EventBootstrap           = "bootstrap"
	EventCellChanged         = "cell_changed"
	EventDisplayModeChanged  = "display_mode_changed"
	EventSessionStatusChange = "session_status_changed"
	EventSessionEnded        = "session_ended"
	EventActivityStarted     = "activity_started"
	EventActivityEnded       = "activity_ended"
	EventError               = "error"
	EventPing                = "ping"
	EventUpdateProgress      = "update_progress"
	EventRequestStatistics   = "request_statistics"
)

// EventReconnectFailed is synthesized locally when the reconnection budget is
// exhausted; it never arrives from the server but flows through the same
// dispatch path so subscribers can switch to polling.
const EventReconnectFailed = "reconnect_failed"

// EventAny subscribes a handler to every event type (cross-cutting concerns
// such as journaling and debug logging).
const EventAny = "*"

// Session status lifecycle
// FUNCTIONAL DISCOVERY: "ended" is terminal - no event may revert it
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusEnded   = "ended"
)

// Display and sync modes
const (
	DisplayModeFullscreen = "fullscreen"
	DisplayModeWindow     = "window"

	SyncModeStrict  = "strict"
	SyncModeRelaxed = "relaxed"
)

// Channel scopes and delivery modes
const (
	ScopeSession = "session"
	ScopeLesson  = "lesson"

	DeliveryCast    = "cast"
	DeliveryUnicast = "unicast"
)

// Connection roles
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// End reasons carried in session_ended payloads
const (
	EndReasonTeacherEnded        = "teacher_ended"
	EndReasonTeacherDisconnected = "teacher_disconnected"
)

// ChannelDescriptor identifies one logical topic: a (scope, id) pair.
// ARCHITECTURAL DISCOVERY: The descriptor key is the unit of channel
// multiplexing - every consumer of the same topic shares one connection
type ChannelDescriptor struct {
	Scope string `json:"scope"`
	ID    int64  `json:"id"`
}

// Key returns the registry key for this descriptor.
func (d ChannelDescriptor) Key() string {
	return fmt.Sprintf("%s:%d", d.Scope, d.ID)
}

// Event is the wire envelope for every message in both directions.
// ARCHITECTURAL DISCOVERY: Data kept as raw JSON so the envelope can be
// classified and deduplicated before any type-specific decoding happens
type Event struct {
	EventID      string            `json:"event_id"`
	Version      int64             `json:"version"`
	Type         string            `json:"type"`
	Timestamp    time.Time         `json:"timestamp"`
	Channel      ChannelDescriptor `json:"channel"`
	DeliveryMode string            `json:"delivery_mode"`
	Data         json.RawMessage   `json:"data,omitempty"`
	AckToken     string            `json:"ack_token,omitempty"`
}

// SessionSnapshot is the canonical local view of one live classroom
// occurrence. All mutation goes through the projector; consumers read copies.
// FUNCTIONAL DISCOVERY: Denormalized name fields may arrive late via the
// bootstrap event and must be merged non-destructively
type SessionSnapshot struct {
	SessionID   int64 `json:"session_id"`
	LessonID    int64 `json:"lesson_id"`
	ClassroomID int64 `json:"classroom_id"`
	TeacherID   int64 `json:"teacher_id"`

	Status string `json:"status"`

	CurrentCellID    *int64  `json:"current_cell_id,omitempty"`
	DisplayOrders    []int   `json:"display_orders,omitempty"`
	LegacyDisplayIDs []int64 `json:"display_cell_ids,omitempty"`
	DisplayMode      string  `json:"display_mode,omitempty"`
	SyncMode         string  `json:"sync_mode,omitempty"`

	TeacherName   string `json:"teacher_name,omitempty"`
	LessonTitle   string `json:"lesson_title,omitempty"`
	ClassroomName string `json:"classroom_name,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Clone returns a deep copy so reducer output never aliases reducer input.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CurrentCellID != nil {
		v := *s.CurrentCellID
		cp.CurrentCellID = &v
	}
	if s.DisplayOrders != nil {
		cp.DisplayOrders = append([]int(nil), s.DisplayOrders...)
	}
	if s.LegacyDisplayIDs != nil {
		cp.LegacyDisplayIDs = append([]int64(nil), s.LegacyDisplayIDs...)
	}
	return &cp
}

// InClassroomMode reports whether display is constrained to teacher-selected
// cells (session pending or active).
func (s *SessionSnapshot) InClassroomMode() bool {
	if s == nil {
		return false
	}
	return s.Status == StatusPending || s.Status == StatusActive
}

// EffectiveDisplayCellID returns the cell students should display, or nil
// when outside classroom mode.
func (s *SessionSnapshot) EffectiveDisplayCellID() *int64 {
	if s == nil || !s.InClassroomMode() {
		return nil
	}
	return s.CurrentCellID
}

// ShouldStrictlySync reports whether students are locked to the teacher's
// display. An unset sync mode counts as strict.
func (s *SessionSnapshot) ShouldStrictlySync() bool {
	if s == nil || !s.InClassroomMode() {
		return false
	}
	return s.SyncMode == "" || s.SyncMode == SyncModeStrict
}

// HasDisplayableContent distinguishes "session not started" from "nothing
// currently selected".
// FUNCTIONAL DISCOVERY: the ended branch deliberately falls through to the
// legacy display-id rule instead of returning false; compatibility tests
// depend on the fallthrough, so it is preserved as-is
func (s *SessionSnapshot) HasDisplayableContent() bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case StatusPending:
		return false
	case StatusActive, StatusPaused:
		return true
	}
	if len(s.DisplayOrders) > 0 || len(s.LegacyDisplayIDs) > 0 {
		return true
	}
	return s.CurrentCellID != nil
}

// ParticipationRecord represents one student's membership in a session.
type ParticipationRecord struct {
	ParticipationID int64 `json:"participation_id"`
	SessionID       int64 `json:"session_id"`
	StudentID       int64 `json:"student_id"`

	JoinedAt     time.Time  `json:"joined_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	IsActive     bool       `json:"is_active"`

	CurrentCellID    *int64  `json:"current_cell_id,omitempty"`
	CompletedCellIDs []int64 `json:"completed_cell_ids,omitempty"`
	ProgressPercent  float64 `json:"progress_percentage"`
}

// Clone returns a deep copy of the participation record.
func (p *ParticipationRecord) Clone() *ParticipationRecord {
	if p == nil {
		return nil
	}
	cp := *p
	if p.LeftAt != nil {
		v := *p.LeftAt
		cp.LeftAt = &v
	}
	if p.CurrentCellID != nil {
		v := *p.CurrentCellID
		cp.CurrentCellID = &v
	}
	if p.CompletedCellIDs != nil {
		cp.CompletedCellIDs = append([]int64(nil), p.CompletedCellIDs...)
	}
	return &cp
}

// IsStaffRole reports whether a role is exempt from the end-of-session
// notice shown to students.
func IsStaffRole(role string) bool {
	return role == RoleTeacher || role == RoleAdmin
}

// EndNotice maps a session end reason to the human-readable notice text
// shown to students exactly once.
func EndNotice(reason string) string {
	switch reason {
	case EndReasonTeacherEnded:
		return "The teacher has ended the session."
	case EndReasonTeacherDisconnected:
		return "The teacher's connection was lost and the session has ended."
	default:
		return "The session has ended."
	}
}
