// Package poller re-fetches full session state over the request/response
// surface when the push channel is unusable, reconciling into the same
// projector so downstream consumers are channel-agnostic.
package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"lessonsync/internal/projector"
	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// DefaultInterval is deliberately coarser than the channel heartbeat to
// keep fallback load low.
const DefaultInterval = 5 * time.Second

// Poller periodically reconciles the tracked session from the REST surface.
type Poller struct {
	api       interfaces.SessionAPI
	projector *projector.Projector
	interval  time.Duration

	// onTerminal runs once when polling discovers the session is gone
	// (ended or deleted); the owner clears participation state there.
	onTerminal func()

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a poller feeding the given projector.
func New(api interfaces.SessionAPI, proj *projector.Projector, interval time.Duration, onTerminal func()) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		api:        api,
		projector:  proj,
		interval:   interval,
		onTerminal: onTerminal,
	}
}

// Start begins polling. Calling Start while running is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	log.Printf("Fallback poller started: interval=%s", p.interval)
	go p.loop(ctx)
}

// Stop halts polling. Idempotent; safe to call from inside a tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Printf("Fallback poller stopped")
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// One immediate poll so fallback state converges before the first
	// full interval elapses.
	p.tick(ctx)

	for {
		select {
		case <-ticker.C:
			// TECHNICAL DISCOVERY: timers can fire after a logical stop;
			// every tick re-checks the running flag before acting
			if !p.Running() {
				return
			}
			p.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	sessionID := p.projector.SessionID()
	if sessionID == 0 {
		p.Stop()
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	snapshot, err := p.api.FetchSession(fetchCtx, sessionID)
	cancel()

	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			// The session no longer exists server-side.
			log.Printf("Polled session gone: session=%d", sessionID)
			p.terminate()
			return
		}
		// Transient failures are absorbed by the next tick.
		log.Printf("Poll failed, retrying next tick: session=%d err=%v", sessionID, err)
		return
	}

	status := p.projector.Reconcile(snapshot)
	if status == types.StatusEnded {
		p.terminate()
	}
}

// terminate stops polling and clears local session state.
func (p *Poller) terminate() {
	p.Stop()
	p.projector.Clear()
	if p.onTerminal != nil {
		p.onTerminal()
	}
}
