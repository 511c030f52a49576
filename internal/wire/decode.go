package wire

import (
	"encoding/json"
	"fmt"

	"lessonsync/pkg/types"
)

// DecodeEvent parses a raw frame into the envelope. The payload stays raw
// for type-specific decoding after dedup/classification.
func DecodeEvent(raw []byte) (*types.Event, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}

	ev := &types.Event{}
	ev.EventID, _ = o.str("event_id", "eventId", "id")
	ev.Type, _ = o.str("type")
	ev.Version, _ = o.int64("version")
	ev.DeliveryMode, _ = o.str("delivery_mode", "deliveryMode")
	ev.AckToken, _ = o.str("ack_token", "ackToken")
	if ts, ok := o.timestamp("timestamp"); ok {
		ev.Timestamp = ts
	}
	if ch, ok := o.raw("channel"); ok {
		co, err := parse(ch)
		if err != nil {
			return nil, fmt.Errorf("malformed channel descriptor: %w", err)
		}
		ev.Channel.Scope, _ = co.str("scope")
		ev.Channel.ID, _ = co.int64("id")
	}
	if data, ok := o.raw("data", "payload"); ok {
		ev.Data = json.RawMessage(data)
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// SnapshotPatch carries the fields a bootstrap payload or REST response
// provided. Pointer fields distinguish "absent" from zero values so merges
// stay non-destructive.
type SnapshotPatch struct {
	SessionID   *int64
	LessonID    *int64
	ClassroomID *int64
	TeacherID   *int64

	Status *string

	CurrentCellID    *int64
	CurrentCellSet   bool
	DisplayOrders    []int
	DisplayOrdersSet bool
	LegacyDisplayIDs []int64
	LegacySet        bool
	DisplayMode      *string
	SyncMode         *string

	TeacherName   *string
	LessonTitle   *string
	ClassroomName *string
}

// DecodeBootstrap normalizes the full-state payload sent on connect.
func DecodeBootstrap(raw []byte) (*SnapshotPatch, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return decodeSnapshotPatch(o), nil
}

func decodeSnapshotPatch(o object) *SnapshotPatch {
	p := &SnapshotPatch{}

	if n, ok := o.int64("session_id", "sessionId", "id"); ok {
		p.SessionID = &n
	}
	if n, ok := o.int64("lesson_id", "lessonId"); ok {
		p.LessonID = &n
	}
	if n, ok := o.int64("classroom_id", "classroomId"); ok {
		p.ClassroomID = &n
	}
	if n, ok := o.int64("teacher_id", "teacherId"); ok {
		p.TeacherID = &n
	}
	if s, ok := o.str("status"); ok {
		p.Status = &s
	}
	if o.has("current_cell_id", "currentCellId") {
		p.CurrentCellSet = true
		if n, ok := o.int64("current_cell_id", "currentCellId"); ok {
			p.CurrentCellID = &n
		}
	}
	if o.has("display_orders", "displayOrders") {
		p.DisplayOrdersSet = true
		p.DisplayOrders, _ = o.ints("display_orders", "displayOrders")
	}
	if o.has("display_cell_ids", "displayCellIds") {
		p.LegacySet = true
		p.LegacyDisplayIDs, _ = o.int64s("display_cell_ids", "displayCellIds")
	}
	if s, ok := o.str("display_mode", "displayMode"); ok {
		p.DisplayMode = &s
	}
	if s, ok := o.str("sync_mode", "syncMode"); ok {
		p.SyncMode = &s
	}
	// FUNCTIONAL DISCOVERY: empty strings are treated as absent for the
	// denormalized names so a late bootstrap never blanks a known field
	if s, ok := o.str("teacher_name", "teacherName"); ok && s != "" {
		p.TeacherName = &s
	}
	if s, ok := o.str("lesson_title", "lessonTitle"); ok && s != "" {
		p.LessonTitle = &s
	}
	if s, ok := o.str("classroom_name", "classroomName"); ok && s != "" {
		p.ClassroomName = &s
	}
	return p
}

// CellChangedPatch is the display-only patch carried by cell_changed.
// Status is decoded solely so the projector can detect and discard an
// illegal attempt to mutate it.
type CellChangedPatch struct {
	CurrentCellID    *int64
	CurrentCellSet   bool
	DisplayOrders    []int
	DisplayOrdersSet bool
	LegacyDisplayIDs []int64
	LegacySet        bool

	IllegalStatus *string
}

// DecodeCellChanged normalizes a cell_changed payload.
func DecodeCellChanged(raw []byte) (*CellChangedPatch, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}
	p := &CellChangedPatch{}
	if o.has("current_cell_id", "currentCellId", "cell_id", "cellId") {
		p.CurrentCellSet = true
		if n, ok := o.int64("current_cell_id", "currentCellId", "cell_id", "cellId"); ok {
			p.CurrentCellID = &n
		}
	}
	if o.has("display_orders", "displayOrders") {
		p.DisplayOrdersSet = true
		p.DisplayOrders, _ = o.ints("display_orders", "displayOrders")
	}
	if o.has("display_cell_ids", "displayCellIds") {
		p.LegacySet = true
		p.LegacyDisplayIDs, _ = o.int64s("display_cell_ids", "displayCellIds")
	}
	if s, ok := o.str("status"); ok {
		p.IllegalStatus = &s
	}
	return p, nil
}

// DecodeDisplayModeChanged returns the new display mode.
func DecodeDisplayModeChanged(raw []byte) (string, error) {
	o, err := parse(raw)
	if err != nil {
		return "", err
	}
	mode, ok := o.str("display_mode", "displayMode", "mode")
	if !ok {
		return "", fmt.Errorf("display_mode_changed payload missing mode")
	}
	return mode, nil
}

// DecodeStatusChanged returns the new session status.
func DecodeStatusChanged(raw []byte) (string, error) {
	o, err := parse(raw)
	if err != nil {
		return "", err
	}
	status, ok := o.str("status", "session_status", "sessionStatus")
	if !ok {
		return "", fmt.Errorf("session_status_changed payload missing status")
	}
	if !types.IsValidStatus(status) {
		return "", types.ErrInvalidStatus
	}
	return status, nil
}

// SessionEndedPayload identifies which session ended and why.
type SessionEndedPayload struct {
	SessionID int64
	Reason    string
}

// DecodeSessionEnded normalizes a session_ended payload.
func DecodeSessionEnded(raw []byte) (*SessionEndedPayload, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}
	p := &SessionEndedPayload{}
	id, ok := o.int64("session_id", "sessionId")
	if !ok {
		return nil, fmt.Errorf("session_ended payload missing session_id")
	}
	p.SessionID = id
	p.Reason, _ = o.str("reason", "end_reason", "endReason")
	return p, nil
}

// DecodeErrorPayload extracts the surfaced message from an error event.
func DecodeErrorPayload(raw []byte) string {
	o, err := parse(raw)
	if err != nil {
		return "unknown error"
	}
	if msg, ok := o.str("message", "error", "detail"); ok {
		return msg
	}
	return "unknown error"
}

// DecodeSession normalizes a REST session response into a full snapshot.
func DecodeSession(raw []byte) (*types.SessionSnapshot, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}
	p := decodeSnapshotPatch(o)
	if p.SessionID == nil {
		return nil, fmt.Errorf("session response missing session_id")
	}

	s := &types.SessionSnapshot{SessionID: *p.SessionID}
	if p.LessonID != nil {
		s.LessonID = *p.LessonID
	}
	if p.ClassroomID != nil {
		s.ClassroomID = *p.ClassroomID
	}
	if p.TeacherID != nil {
		s.TeacherID = *p.TeacherID
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	s.CurrentCellID = p.CurrentCellID
	s.DisplayOrders = p.DisplayOrders
	s.LegacyDisplayIDs = p.LegacyDisplayIDs
	if p.DisplayMode != nil {
		s.DisplayMode = *p.DisplayMode
	}
	if p.SyncMode != nil {
		s.SyncMode = *p.SyncMode
	}
	if p.TeacherName != nil {
		s.TeacherName = *p.TeacherName
	}
	if p.LessonTitle != nil {
		s.LessonTitle = *p.LessonTitle
	}
	if p.ClassroomName != nil {
		s.ClassroomName = *p.ClassroomName
	}
	if ts, ok := o.timestamp("created_at", "createdAt"); ok {
		s.CreatedAt = ts
	}
	if ts, ok := o.timestamp("updated_at", "updatedAt"); ok {
		s.UpdatedAt = ts
	}
	return s, nil
}

// DecodeParticipation normalizes a REST participation response.
func DecodeParticipation(raw []byte) (*types.ParticipationRecord, error) {
	o, err := parse(raw)
	if err != nil {
		return nil, err
	}
	rec := &types.ParticipationRecord{}
	id, ok := o.int64("participation_id", "participationId", "id")
	if !ok {
		return nil, fmt.Errorf("participation response missing participation_id")
	}
	rec.ParticipationID = id
	rec.SessionID, _ = o.int64("session_id", "sessionId")
	rec.StudentID, _ = o.int64("student_id", "studentId")
	if ts, ok := o.timestamp("joined_at", "joinedAt"); ok {
		rec.JoinedAt = ts
	}
	if ts, ok := o.timestamp("last_active_at", "lastActiveAt"); ok {
		rec.LastActiveAt = ts
	}
	if ts, ok := o.timestamp("left_at", "leftAt"); ok {
		rec.LeftAt = &ts
	}
	rec.IsActive, _ = o.boolean("is_active", "isActive")
	if n, ok := o.int64("current_cell_id", "currentCellId"); ok {
		rec.CurrentCellID = &n
	}
	rec.CompletedCellIDs, _ = o.int64s("completed_cell_ids", "completedCellIds")
	if f, ok := o.float64("progress_percentage", "progressPercentage", "progress"); ok {
		rec.ProgressPercent = types.ClampPercent(f)
	}
	return rec, nil
}
