// Package projector applies inbound events onto the local session snapshot.
//
// The state machine is a pure reducer: (snapshot, event) -> (snapshot,
// effects). Both the push path and the poll path reduce through the same
// transitions, so downstream consumers are channel-agnostic.
package projector

import (
	"log"

	"lessonsync/internal/wire"
	"lessonsync/pkg/types"
)

// Reduce applies one inbound event to a snapshot and returns the next
// snapshot plus the side effects the caller must execute. The input
// snapshot is never mutated.
//
// A nil snapshot means no session is tracked locally: only bootstrap may
// create one; every other event is ignored.
func Reduce(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	switch ev.Type {
	case types.EventBootstrap:
		return reduceBootstrap(s, ev)
	case types.EventCellChanged:
		return reduceCellChanged(s, ev)
	case types.EventDisplayModeChanged:
		return reduceDisplayMode(s, ev)
	case types.EventSessionStatusChange:
		return reduceStatusChanged(s, ev)
	case types.EventSessionEnded:
		return reduceSessionEnded(s, ev)
	case types.EventError:
		// Pass-through: no state mutation.
		msg := wire.DecodeErrorPayload(ev.Data)
		return s, []Effect{{Kind: EffectSurfaceError, Message: msg}}, nil
	default:
		// Activity, ping and telemetry events carry no snapshot state.
		return s, nil, nil
	}
}

// reduceBootstrap merges the server's full state into the snapshot.
// FUNCTIONAL DISCOVERY: merge is non-destructive - already-known
// denormalized fields are never overwritten by absent or empty values
func reduceBootstrap(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	patch, err := wire.DecodeBootstrap(ev.Data)
	if err != nil {
		return s, nil, err
	}

	next := s.Clone()
	if next == nil {
		next = &types.SessionSnapshot{}
	}
	if patch.SessionID != nil {
		next.SessionID = *patch.SessionID
	}
	if patch.LessonID != nil {
		next.LessonID = *patch.LessonID
	}
	if patch.ClassroomID != nil {
		next.ClassroomID = *patch.ClassroomID
	}
	if patch.TeacherID != nil {
		next.TeacherID = *patch.TeacherID
	}
	if patch.Status != nil && types.IsValidStatus(*patch.Status) {
		// Terminal status is monotonic even across a bootstrap replay.
		if next.Status != types.StatusEnded {
			next.Status = *patch.Status
		}
	}
	if patch.CurrentCellSet {
		next.CurrentCellID = patch.CurrentCellID
	}
	if patch.DisplayOrdersSet {
		next.DisplayOrders = patch.DisplayOrders
	}
	if patch.LegacySet {
		next.LegacyDisplayIDs = patch.LegacyDisplayIDs
	}
	if patch.SyncMode != nil {
		next.SyncMode = *patch.SyncMode
	}
	if patch.TeacherName != nil {
		next.TeacherName = *patch.TeacherName
	}
	if patch.LessonTitle != nil {
		next.LessonTitle = *patch.LessonTitle
	}
	if patch.ClassroomName != nil {
		next.ClassroomName = *patch.ClassroomName
	}
	next.UpdatedAt = ev.Timestamp

	var effects []Effect
	if patch.DisplayMode != nil && *patch.DisplayMode != next.DisplayMode {
		next.DisplayMode = *patch.DisplayMode
		effects = append(effects, Effect{Kind: EffectDisplayModeChanged, Mode: next.DisplayMode})
	}
	return next, effects, nil
}

// reduceCellChanged updates display fields only.
// FUNCTIONAL DISCOVERY: status is explicitly re-asserted after the patch to
// guard against accidental coupling; an attempted status mutation is the
// upstream contract violation, logged loudly and discarded
func reduceCellChanged(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	if s == nil {
		return nil, nil, nil
	}
	patch, err := wire.DecodeCellChanged(ev.Data)
	if err != nil {
		return s, nil, err
	}

	if patch.IllegalStatus != nil && *patch.IllegalStatus != s.Status {
		log.Printf("CONTRACT VIOLATION: cell_changed attempted status mutation: event=%s session=%d status=%q discarded",
			ev.EventID, s.SessionID, *patch.IllegalStatus)
	}

	next := s.Clone()
	if patch.CurrentCellSet {
		next.CurrentCellID = patch.CurrentCellID
	}
	if patch.DisplayOrdersSet {
		next.DisplayOrders = patch.DisplayOrders
	}
	if patch.LegacySet {
		next.LegacyDisplayIDs = patch.LegacyDisplayIDs
	}
	next.UpdatedAt = ev.Timestamp
	next.Status = s.Status // display events never touch status
	return next, nil, nil
}

func reduceDisplayMode(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	if s == nil {
		return nil, nil, nil
	}
	mode, err := wire.DecodeDisplayModeChanged(ev.Data)
	if err != nil {
		return s, nil, err
	}
	next := s.Clone()
	next.DisplayMode = mode
	next.UpdatedAt = ev.Timestamp
	next.Status = s.Status
	return next, []Effect{{Kind: EffectDisplayModeChanged, Mode: mode}}, nil
}

func reduceStatusChanged(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	if s == nil {
		return nil, nil, nil
	}
	status, err := wire.DecodeStatusChanged(ev.Data)
	if err != nil {
		return s, nil, err
	}
	// FUNCTIONAL DISCOVERY: ended is terminal - a late status event must
	// not resurrect the session
	if s.Status == types.StatusEnded && status != types.StatusEnded {
		log.Printf("CONTRACT VIOLATION: status change after session end ignored: session=%d status=%q", s.SessionID, status)
		return s, nil, nil
	}

	next := s.Clone()
	next.Status = status
	next.UpdatedAt = ev.Timestamp

	var effects []Effect
	if status == types.StatusEnded && s.Status != types.StatusEnded {
		effects = append(effects,
			Effect{Kind: EffectChannelTeardown},
			Effect{Kind: EffectSessionEnded, Notice: types.EndNotice("")},
		)
	}
	return next, effects, nil
}

// reduceSessionEnded terminates the tracked session after validating the
// event targets it.
// FUNCTIONAL DISCOVERY: a stale or cross-session end event must not
// terminate the wrong session - mismatched ids leave the snapshot untouched
func reduceSessionEnded(s *types.SessionSnapshot, ev *types.Event) (*types.SessionSnapshot, []Effect, error) {
	if s == nil {
		return nil, nil, nil
	}
	payload, err := wire.DecodeSessionEnded(ev.Data)
	if err != nil {
		return s, nil, err
	}
	if payload.SessionID != s.SessionID {
		log.Printf("Stale session_ended ignored: event session=%d tracking session=%d", payload.SessionID, s.SessionID)
		return s, nil, nil
	}

	next := s.Clone()
	alreadyEnded := next.Status == types.StatusEnded
	next.Status = types.StatusEnded
	next.UpdatedAt = ev.Timestamp

	if alreadyEnded {
		return next, nil, nil
	}
	return next, []Effect{
		{Kind: EffectChannelTeardown},
		{Kind: EffectSessionEnded, Reason: payload.Reason, Notice: types.EndNotice(payload.Reason)},
	}, nil
}
