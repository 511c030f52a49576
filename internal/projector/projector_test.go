package projector

import (
	"encoding/json"
	"testing"

	"lessonsync/pkg/types"
)

var eventCounter int

func event(t *testing.T, eventType string, payload map[string]interface{}) *types.Event {
	t.Helper()
	eventCounter++
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return &types.Event{
		EventID: "evt-" + eventType + "-" + string(rune('a'+eventCounter%26)),
		Type:    eventType,
		Channel: types.ChannelDescriptor{Scope: types.ScopeSession, ID: 1},
		Data:    data,
	}
}

func trackedProjector(status string) *Projector {
	p := New(NewEmitter())
	p.Track(&types.SessionSnapshot{
		SessionID:   1,
		LessonID:    2,
		Status:      status,
		TeacherName: "Ada",
	})
	return p
}

func TestReduce_CellChangedNeverTouchesStatus(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusActive}

	payloads := []map[string]interface{}{
		{"current_cell_id": 4},
		{"display_orders": []int{1, 2, 3}},
		{"current_cell_id": nil, "display_orders": []int{}},
		{"cell_id": 9, "status": "paused"}, // illegal status, must be discarded
	}
	for _, payload := range payloads {
		next, _, err := Reduce(snapshot, event(t, types.EventCellChanged, payload))
		if err != nil {
			t.Fatalf("Reduce failed: %v", err)
		}
		if next.Status != types.StatusActive {
			t.Fatalf("cell_changed mutated status to %q", next.Status)
		}
		snapshot = next
	}
	if snapshot.CurrentCellID == nil || *snapshot.CurrentCellID != 9 {
		t.Error("display portion of the patch should still apply")
	}
}

func TestReduce_SessionEndedTerminal(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusActive}

	next, effects, err := Reduce(snapshot, event(t, types.EventSessionEnded, map[string]interface{}{
		"session_id": 1,
		"reason":     types.EndReasonTeacherEnded,
	}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next.Status != types.StatusEnded {
		t.Fatalf("expected ended, got %q", next.Status)
	}
	if len(effects) != 2 {
		t.Fatalf("expected teardown + notice effects, got %d", len(effects))
	}

	// Subsequent display events are still accepted for display fields but
	// status remains ended.
	next, _, err = Reduce(next, event(t, types.EventCellChanged, map[string]interface{}{"current_cell_id": 7}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next.Status != types.StatusEnded {
		t.Error("cell_changed after end must not revert status")
	}
	if next.CurrentCellID == nil || *next.CurrentCellID != 7 {
		t.Error("display fields should still update after end")
	}

	next, _, err = Reduce(next, event(t, types.EventDisplayModeChanged, map[string]interface{}{"display_mode": "window"}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next.Status != types.StatusEnded {
		t.Error("display_mode_changed after end must not revert status")
	}
	if next.DisplayMode != types.DisplayModeWindow {
		t.Error("display mode should still update after end")
	}
}

func TestReduce_MismatchedSessionEndedIgnored(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusActive, TeacherName: "Ada"}

	next, effects, err := Reduce(snapshot, event(t, types.EventSessionEnded, map[string]interface{}{
		"session_id": 99,
	}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if len(effects) != 0 {
		t.Error("mismatched session_ended must produce no effects")
	}
	if next != snapshot {
		t.Error("mismatched session_ended must leave the snapshot completely unchanged")
	}
}

func TestReduce_StatusChangeAfterEndIgnored(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusEnded}
	next, _, err := Reduce(snapshot, event(t, types.EventSessionStatusChange, map[string]interface{}{"status": "active"}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next.Status != types.StatusEnded {
		t.Error("ended is terminal; a late status change must not resurrect the session")
	}
}

func TestReduce_BootstrapNonDestructiveMerge(t *testing.T) {
	snapshot := &types.SessionSnapshot{
		SessionID:   1,
		Status:      types.StatusActive,
		TeacherName: "Ada",
		LessonTitle: "Loops",
	}
	next, _, err := Reduce(snapshot, event(t, types.EventBootstrap, map[string]interface{}{
		"session_id":     1,
		"teacher_name":   "",
		"classroom_name": "5B",
		"display_orders": []int{2, 5},
		"sync_mode":      "relaxed",
	}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next.TeacherName != "Ada" {
		t.Error("bootstrap must not overwrite a known denormalized field with an empty value")
	}
	if next.LessonTitle != "Loops" {
		t.Error("absent fields must stay untouched")
	}
	if next.ClassroomName != "5B" {
		t.Error("new denormalized fields should merge in")
	}
	if len(next.DisplayOrders) != 2 || next.SyncMode != types.SyncModeRelaxed {
		t.Error("display state should merge from bootstrap")
	}
}

func TestReduce_BootstrapDisplayModeEffect(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusActive}
	_, effects, err := Reduce(snapshot, event(t, types.EventBootstrap, map[string]interface{}{
		"session_id":   1,
		"display_mode": "fullscreen",
	}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	found := false
	for _, eff := range effects {
		if eff.Kind == EffectDisplayModeChanged && eff.Mode == types.DisplayModeFullscreen {
			found = true
		}
	}
	if !found {
		t.Error("bootstrap carrying a display mode should emit the display-mode effect")
	}
}

func TestReduce_ErrorPassThrough(t *testing.T) {
	snapshot := &types.SessionSnapshot{SessionID: 1, Status: types.StatusActive}
	next, effects, err := Reduce(snapshot, event(t, types.EventError, map[string]interface{}{"message": "boom"}))
	if err != nil {
		t.Fatalf("Reduce failed: %v", err)
	}
	if next != snapshot {
		t.Error("error events must not mutate state")
	}
	if len(effects) != 1 || effects[0].Kind != EffectSurfaceError || effects[0].Message != "boom" {
		t.Errorf("expected surface-error effect, got %+v", effects)
	}
}

func TestProjector_DisplayModeObserver(t *testing.T) {
	p := trackedProjector(types.StatusActive)
	var modes []string
	p.Emitter().OnDisplayModeChanged(func(mode string) { modes = append(modes, mode) })

	p.HandleEvent(event(t, types.EventDisplayModeChanged, map[string]interface{}{"mode": "window"}))
	if len(modes) != 1 || modes[0] != types.DisplayModeWindow {
		t.Errorf("expected one window notification, got %v", modes)
	}
}

func TestProjector_EndNoticeFiresOnce(t *testing.T) {
	p := trackedProjector(types.StatusActive)
	var notices []string
	var teardowns int
	p.Emitter().OnSessionEnded(func(_, notice string) { notices = append(notices, notice) })
	p.Emitter().OnChannelTeardown(func() { teardowns++ })

	p.HandleEvent(event(t, types.EventSessionEnded, map[string]interface{}{
		"session_id": 1, "reason": types.EndReasonTeacherDisconnected,
	}))
	// A duplicate end arriving over the poll path must not re-notify.
	p.Reconcile(&types.SessionSnapshot{SessionID: 1, Status: types.StatusEnded})

	if len(notices) != 1 {
		t.Fatalf("expected exactly one end notice, got %d", len(notices))
	}
	if notices[0] != types.EndNotice(types.EndReasonTeacherDisconnected) {
		t.Errorf("unexpected notice wording: %q", notices[0])
	}
	if teardowns != 1 {
		t.Errorf("expected exactly one teardown request, got %d", teardowns)
	}
}

func TestProjector_MalformedEventDropped(t *testing.T) {
	p := trackedProjector(types.StatusActive)
	before := p.Snapshot()

	p.HandleEvent(&types.Event{
		EventID: "evt-bad",
		Type:    types.EventSessionEnded,
		Channel: types.ChannelDescriptor{Scope: types.ScopeSession, ID: 1},
		Data:    json.RawMessage(`{broken`),
	})

	after := p.Snapshot()
	if after.Status != before.Status || after.SessionID != before.SessionID {
		t.Error("a malformed event must be dropped without mutating state")
	}

	// The projector keeps working afterwards.
	p.HandleEvent(event(t, types.EventCellChanged, map[string]interface{}{"current_cell_id": 3}))
	if got := p.Snapshot().CurrentCellID; got == nil || *got != 3 {
		t.Error("projector must continue processing after a malformed event")
	}
}

func TestProjector_ReconcileDoesNotResurrectEnded(t *testing.T) {
	p := trackedProjector(types.StatusEnded)

	// An out-of-order poll snapshot claiming the session is active lands
	// after the ended event; the merge invariants still hold.
	status := p.Reconcile(&types.SessionSnapshot{SessionID: 1, Status: types.StatusActive, DisplayOrders: []int{4}})
	if status != types.StatusEnded {
		t.Errorf("reconcile must keep terminal status, got %q", status)
	}
	if got := p.Snapshot(); got.Status != types.StatusEnded {
		t.Errorf("snapshot status reverted to %q", got.Status)
	}
}

func TestProjector_ReconcileKeepsDenormalizedFields(t *testing.T) {
	p := trackedProjector(types.StatusActive)
	p.Reconcile(&types.SessionSnapshot{SessionID: 1, Status: types.StatusActive, ClassroomName: "5B"})

	s := p.Snapshot()
	if s.TeacherName != "Ada" {
		t.Error("reconcile must not blank out known denormalized fields")
	}
	if s.ClassroomName != "5B" {
		t.Error("reconcile should adopt newly provided fields")
	}
}

func TestProjector_ReconcileIgnoresStaleSession(t *testing.T) {
	p := trackedProjector(types.StatusActive)
	p.Reconcile(&types.SessionSnapshot{SessionID: 42, Status: types.StatusEnded})

	s := p.Snapshot()
	if s == nil || s.SessionID != 1 || s.Status != types.StatusActive {
		t.Error("a cross-session poll result must leave state untouched")
	}
}
