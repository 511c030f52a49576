package projector

import (
	"log"
	"sync"

	"lessonsync/pkg/types"
)

// Projector owns the canonical session snapshot and feeds every accepted
// event through the pure reducer. Both the push channel (via dispatch
// subscription) and the fallback poller (via Reconcile) mutate state here
// and nowhere else.
type Projector struct {
	mu            sync.Mutex
	snapshot      *types.SessionSnapshot
	emitter       *Emitter
	endedNotified bool
}

// New creates a projector publishing through the given emitter.
func New(emitter *Emitter) *Projector {
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &Projector{emitter: emitter}
}

// Emitter returns the observer set for subscription.
func (p *Projector) Emitter() *Emitter {
	return p.emitter
}

// Track adopts an initial snapshot, typically from session discovery.
func (p *Projector) Track(s *types.SessionSnapshot) {
	p.mu.Lock()
	p.snapshot = s.Clone()
	p.endedNotified = false
	p.mu.Unlock()
	if s != nil {
		p.emitter.emitSnapshot(s)
	}
}

// Snapshot returns a copy of the current state, nil when no session is
// tracked.
func (p *Projector) Snapshot() *types.SessionSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot.Clone()
}

// SessionID returns the tracked session id, zero when none.
func (p *Projector) SessionID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot == nil {
		return 0
	}
	return p.snapshot.SessionID
}

// Clear destroys the local snapshot (explicit leave or confirmed end).
func (p *Projector) Clear() {
	p.mu.Lock()
	p.snapshot = nil
	p.mu.Unlock()
}

// HandleEvent applies one inbound event. Matches dispatch.Handler so the
// projector subscribes directly to the dispatcher.
func (p *Projector) HandleEvent(ev *types.Event) {
	p.mu.Lock()
	next, effects, err := Reduce(p.snapshot, ev)
	if err != nil {
		p.mu.Unlock()
		// Malformed payloads are logged and dropped; the dispatch loop
		// and subsequent events are unaffected.
		log.Printf("Event rejected: type=%s id=%s err=%v", ev.Type, ev.EventID, err)
		return
	}
	changed := next != p.snapshot
	p.snapshot = next
	effects = p.filterEndedLocked(effects)
	p.mu.Unlock()

	if changed && next != nil {
		p.emitter.emitSnapshot(next)
	}
	p.runEffects(effects)
}

// Reconcile merges a full snapshot fetched by the fallback poller using the
// same invariants as the event transitions. No ordering is guaranteed
// between channel and poller, so an out-of-order poll result must not
// resurrect an ended session or blank out known denormalized fields.
// Returns the status after reconciliation.
func (p *Projector) Reconcile(remote *types.SessionSnapshot) string {
	if remote == nil {
		return ""
	}
	p.mu.Lock()
	local := p.snapshot
	if local != nil && local.SessionID != 0 && remote.SessionID != local.SessionID {
		// Stale cross-session fetch; leave state untouched.
		p.mu.Unlock()
		log.Printf("Stale poll result ignored: got session=%d tracking session=%d", remote.SessionID, local.SessionID)
		return local.Status
	}

	next := remote.Clone()
	wasEnded := local != nil && local.Status == types.StatusEnded
	if local != nil {
		if wasEnded {
			next.Status = types.StatusEnded
		}
		// Non-destructive merge of late-arriving denormalized fields.
		if next.TeacherName == "" {
			next.TeacherName = local.TeacherName
		}
		if next.LessonTitle == "" {
			next.LessonTitle = local.LessonTitle
		}
		if next.ClassroomName == "" {
			next.ClassroomName = local.ClassroomName
		}
	}
	p.snapshot = next

	var effects []Effect
	if next.Status == types.StatusEnded && !wasEnded {
		effects = append(effects,
			Effect{Kind: EffectChannelTeardown},
			Effect{Kind: EffectSessionEnded, Notice: types.EndNotice("")},
		)
	}
	effects = p.filterEndedLocked(effects)
	status := next.Status
	p.mu.Unlock()

	p.emitter.emitSnapshot(next)
	p.runEffects(effects)
	return status
}

// filterEndedLocked enforces the one-time end notice. Caller holds mu.
func (p *Projector) filterEndedLocked(effects []Effect) []Effect {
	if len(effects) == 0 {
		return effects
	}
	out := effects[:0]
	for _, eff := range effects {
		if eff.Kind == EffectSessionEnded {
			if p.endedNotified {
				continue
			}
			p.endedNotified = true
		}
		out = append(out, eff)
	}
	return out
}

func (p *Projector) runEffects(effects []Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectChannelTeardown:
			p.emitter.emitTeardown()
		case EffectSessionEnded:
			p.emitter.emitSessionEnded(eff.Reason, eff.Notice)
		case EffectDisplayModeChanged:
			p.emitter.emitDisplayMode(eff.Mode)
		case EffectSurfaceError:
			p.emitter.emitError(eff.Message)
		}
	}
}
