// Package client wires the sync components into one consumer-facing
// object: registry -> channel -> dispatcher -> projector, with the
// fallback poller taking over whenever the push channel is unusable.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"lessonsync/internal/api"
	"lessonsync/internal/channel"
	"lessonsync/internal/config"
	"lessonsync/internal/dispatch"
	"lessonsync/internal/participation"
	"lessonsync/internal/poller"
	"lessonsync/internal/progress"
	"lessonsync/internal/projector"
	"lessonsync/internal/registry"
	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// Client synchronizes one participant with a live classroom session.
// Component construction follows strict dependency order:
// API -> Dispatcher -> Projector -> Registry -> Coordinator -> Poller -> Reporter
type Client struct {
	cfg   *config.Config
	role  string
	creds interfaces.Credentials

	sessionAPI  interfaces.SessionAPI
	journal     interfaces.EventJournal
	dispatcher  *dispatch.Dispatcher
	projector   *projector.Projector
	registry    *registry.Registry
	coordinator *participation.Coordinator
	poller      *poller.Poller
	reporter    *progress.Reporter

	mu           sync.Mutex
	channel      *channel.Channel
	descriptor   types.ChannelDescriptor
	acquired     bool
	unsubscribes []func()
	roster       []*types.ParticipationRecord
	started      bool

	noticeFn func(notice string)
}

// New creates a client for one participant. journal may be nil to disable
// local event recording.
func New(cfg *config.Config, token, role string, journal interfaces.EventJournal) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !types.IsValidRole(role) {
		return nil, types.ErrInvalidRole
	}

	c := &Client{
		cfg:        cfg,
		role:       role,
		creds:      interfaces.Credentials{Token: token},
		sessionAPI: api.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout),
		journal:    journal,
		dispatcher: dispatch.NewDispatcher(dispatch.DefaultDedupCapacity),
		projector:  projector.New(projector.NewEmitter()),
		noticeFn:   func(notice string) { log.Printf("Session notice: %s", notice) },
	}

	c.registry = registry.NewRegistry(func(descriptor types.ChannelDescriptor) (*channel.Channel, error) {
		policy := channel.NewReconnectPolicy(
			cfg.Reconnect.BaseDelay,
			cfg.Reconnect.MaxDelay,
			cfg.Reconnect.MaxAttempts,
		)
		return channel.NewChannel(channel.Options{
			BaseURL:          cfg.Channel.BaseURL,
			PingInterval:     cfg.Channel.PingInterval,
			HandshakeTimeout: cfg.Channel.HandshakeTimeout,
			WriteTimeout:     cfg.Channel.WriteTimeout,
			BufferSize:       cfg.Channel.BufferSize,
		}, policy, c.dispatcher), nil
	})

	// Leave must release channel and poller before the server is notified.
	c.coordinator = participation.NewCoordinator(c.sessionAPI, c.releaseResources)
	c.poller = poller.New(c.sessionAPI, c.projector, cfg.Poll.Interval, c.coordinator.Clear)

	return c, nil
}

// SetNoticeHandler overrides where the one-time end-of-session notice goes.
func (c *Client) SetNoticeHandler(fn func(notice string)) {
	if fn != nil {
		c.noticeFn = fn
	}
}

// Projector exposes the snapshot and observer surface.
func (c *Client) Projector() *projector.Projector {
	return c.projector
}

// Snapshot returns a copy of the current session state.
func (c *Client) Snapshot() *types.SessionSnapshot {
	return c.projector.Snapshot()
}

// Participation returns a copy of the local participation record.
func (c *Client) Participation() *types.ParticipationRecord {
	return c.coordinator.Record()
}

// Roster returns the participant list captured at join time.
func (c *Client) Roster() []*types.ParticipationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.ParticipationRecord(nil), c.roster...)
}

// Start discovers the joinable session for a lesson, joins it and brings
// up the push channel, falling back to polling when the channel cannot be
// established.
func (c *Client) Start(ctx context.Context, lessonID, studentID int64) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("client already started")
	}
	c.started = true
	c.mu.Unlock()

	session, err := c.coordinator.Discover(ctx, lessonID)
	if err != nil {
		return err
	}
	c.projector.Track(session)
	c.subscribe()

	// Join and roster prefetch are independent; run them together.
	g, gctx := errgroup.WithContext(ctx)
	if c.role == types.RoleStudent {
		g.Go(func() error {
			_, joinErr := c.coordinator.Join(gctx, session.SessionID, studentID)
			return joinErr
		})
	}
	g.Go(func() error {
		roster, rosterErr := c.sessionAPI.ListParticipants(gctx, session.SessionID)
		if rosterErr != nil {
			// Roster is cosmetic; sync works without it.
			log.Printf("Participant roster unavailable: %v", rosterErr)
			return nil
		}
		c.mu.Lock()
		c.roster = roster
		c.mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, interfaces.ErrPermissionDenied) || errors.Is(err, interfaces.ErrSessionEnded) || errors.Is(err, interfaces.ErrSessionNotFound) {
			// Terminal: no participation, no channel. The caller can
			// still render lesson content outside synced mode.
			c.projector.Clear()
			return err
		}
		// FUNCTIONAL DISCOVERY: transient join exhaustion is non-fatal -
		// sync proceeds without an active participation record
		log.Printf("Continuing without participation: %v", err)
	}

	if c.journal != nil {
		if err := c.journal.RecordSessionNote(ctx, session.SessionID, session.Status, "joined"); err != nil {
			log.Printf("Journal note failed: %v", err)
		}
	}

	descriptor := types.ChannelDescriptor{Scope: types.ScopeSession, ID: session.SessionID}
	ch, err := c.registry.Acquire(descriptor)
	if err != nil {
		log.Printf("Channel unavailable, falling back to polling: %v", err)
		c.poller.Start()
		return nil
	}

	c.mu.Lock()
	c.channel = ch
	c.descriptor = descriptor
	c.acquired = true
	c.reporter = progress.NewReporter(ch, c.projector, c.coordinator)
	c.mu.Unlock()

	if err := ch.Connect(ctx, descriptor, c.creds, c.role); err != nil {
		// FUNCTIONAL DISCOVERY: a rejected connect activates the fallback
		// poller immediately rather than waiting for a reconnect cycle
		log.Printf("Channel connect failed, falling back to polling: %v", err)
		c.poller.Start()
	}
	return nil
}

// subscribe registers the projector and journal against the dispatcher and
// wires the emitter effects back into resource management.
func (c *Client) subscribe() {
	var subs []func()

	for _, eventType := range []string{
		types.EventBootstrap,
		types.EventCellChanged,
		types.EventDisplayModeChanged,
		types.EventSessionStatusChange,
		types.EventSessionEnded,
		types.EventError,
	} {
		subs = append(subs, c.dispatcher.Subscribe(eventType, c.projector.HandleEvent))
	}

	// reconnect_failed is the explicit switch-to-polling signal.
	subs = append(subs, c.dispatcher.Subscribe(types.EventReconnectFailed, func(*types.Event) {
		log.Printf("Push channel failed permanently, switching to polling")
		c.poller.Start()
	}))

	// The server opens every (re)connect with a bootstrap frame, so its
	// arrival means the push channel is live and polling is redundant.
	subs = append(subs, c.dispatcher.Subscribe(types.EventBootstrap, func(*types.Event) {
		c.poller.Stop()
	}))

	if c.journal != nil {
		subs = append(subs, c.dispatcher.Subscribe(types.EventAny, func(ev *types.Event) {
			sessionID := c.projector.SessionID()
			if err := c.journal.RecordEvent(context.Background(), sessionID, ev); err != nil {
				log.Printf("Journal record failed: %v", err)
			}
		}))
	}

	emitter := c.projector.Emitter()
	subs = append(subs, emitter.OnChannelTeardown(c.releaseChannel))
	subs = append(subs, emitter.OnSessionEnded(func(reason, notice string) {
		if c.journal != nil {
			sessionID := c.projector.SessionID()
			if err := c.journal.RecordSessionNote(context.Background(), sessionID, types.StatusEnded, reason); err != nil {
				log.Printf("Journal note failed: %v", err)
			}
		}
		c.coordinator.Clear()
		// Staff roles never see the end-of-session notice.
		if !types.IsStaffRole(c.role) {
			c.noticeFn(notice)
		}
	}))

	c.mu.Lock()
	c.unsubscribes = append(c.unsubscribes, subs...)
	c.mu.Unlock()
}

// UpdateProgress reports a progress delta. No-op before Start or after the
// session ends.
func (c *Client) UpdateProgress(completedCellIDs []int64, currentCellID *int64, percentage *float64) {
	c.mu.Lock()
	reporter := c.reporter
	c.mu.Unlock()
	if reporter == nil {
		return
	}
	reporter.UpdateProgress(completedCellIDs, currentCellID, percentage)
}

// Stop leaves the session: resources are torn down first, then the server
// is notified best-effort.
func (c *Client) Stop(ctx context.Context) error {
	sessionID := c.projector.SessionID()

	if sessionID != 0 {
		if err := c.coordinator.Leave(ctx, sessionID); err != nil && !errors.Is(err, participation.ErrNotJoined) {
			log.Printf("Leave error (ignored): %v", err)
		}
	} else {
		c.releaseResources()
	}

	c.mu.Lock()
	subs := c.unsubscribes
	c.unsubscribes = nil
	c.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}

	c.projector.Clear()

	if c.journal != nil && sessionID != 0 {
		if err := c.journal.RecordSessionNote(ctx, sessionID, "", "left"); err != nil {
			log.Printf("Journal note failed: %v", err)
		}
	}
	return nil
}

// releaseResources stops the poller and releases the channel. Runs before
// any leave notification so navigation away never leaks timers.
func (c *Client) releaseResources() {
	c.poller.Stop()
	c.releaseChannel()
}

func (c *Client) releaseChannel() {
	c.mu.Lock()
	acquired := c.acquired
	descriptor := c.descriptor
	c.acquired = false
	c.channel = nil
	c.mu.Unlock()

	if acquired {
		c.registry.Release(descriptor)
	}
}
