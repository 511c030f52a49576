// Package progress pushes participant progress deltas outward over the
// transport channel. Fire-and-forget telemetry: no queueing, no ack wait.
package progress

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"lessonsync/internal/participation"
	"lessonsync/internal/projector"
	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// Reporter sends update_progress envelopes for the tracked session.
type Reporter struct {
	channel     interfaces.Channel
	projector   *projector.Projector
	coordinator *participation.Coordinator
}

// NewReporter creates a reporter. The coordinator may be nil when no local
// record mirroring is wanted.
func NewReporter(ch interfaces.Channel, proj *projector.Projector, coord *participation.Coordinator) *Reporter {
	return &Reporter{channel: ch, projector: proj, coordinator: coord}
}

// UpdateProgress reports completed cells, the current cell and an optional
// explicit percentage. When the percentage is absent it is derived as
// completed/total*100 against the display list; an unknown display list
// falls back to the completed count itself as denominator so the derivation
// never divides by zero.
func (r *Reporter) UpdateProgress(completedCellIDs []int64, currentCellID *int64, percentage *float64) {
	snapshot := r.projector.Snapshot()
	if snapshot == nil {
		return // not in a session
	}

	percent := derivePercent(completedCellIDs, snapshot, percentage)

	if r.coordinator != nil {
		r.coordinator.UpdateLocalProgress(completedCellIDs, currentCellID, percent)
	}

	if !r.channel.Connected() {
		// Progress is best-effort telemetry: dropped, not queued.
		log.Printf("Channel down, dropping progress update: session=%d", snapshot.SessionID)
		return
	}

	payload := map[string]interface{}{
		"session_id":          snapshot.SessionID,
		"completed_cell_ids":  completedCellIDs,
		"progress_percentage": percent,
	}
	if currentCellID != nil {
		payload["current_cell_id"] = *currentCellID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Dropping unencodable progress update: err=%v", err)
		return
	}

	r.channel.Send(&types.Event{
		EventID:      uuid.NewString(),
		Type:         types.EventUpdateProgress,
		Timestamp:    time.Now().UTC(),
		Channel:      types.ChannelDescriptor{Scope: types.ScopeSession, ID: snapshot.SessionID},
		DeliveryMode: types.DeliveryUnicast,
		Data:         data,
	})
}

// derivePercent computes the reported percentage.
func derivePercent(completed []int64, snapshot *types.SessionSnapshot, explicit *float64) float64 {
	if explicit != nil {
		return types.ClampPercent(*explicit)
	}
	total := len(snapshot.DisplayOrders)
	if total == 0 {
		// FUNCTIONAL DISCOVERY: unknown display list falls back to the
		// completed count as denominator (100% when anything is done)
		total = len(completed)
	}
	if total == 0 {
		return 0
	}
	return types.ClampPercent(float64(len(completed)) / float64(total) * 100)
}
