// Package channel owns the bidirectional message connection between this
// client and one server-side topic: connect/close, heartbeat, raw
// send/receive, and the reconnection policy wrapping it.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lessonsync/internal/wire"
	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// Options configure one channel instance.
type Options struct {
	BaseURL          string        // ws:// or wss:// origin
	PingInterval     time.Duration // heartbeat interval, default 30s
	HandshakeTimeout time.Duration // dial timeout, default 10s
	WriteTimeout     time.Duration // per-frame write deadline, default 5s
	BufferSize       int           // outbound frame buffer, default 100
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	return opts
}

// Channel is the WebSocket transport for one (descriptor, role) topic.
// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates
// races; all outbound frames funnel through writeCh
type Channel struct {
	opts   Options
	sink   interfaces.EventSink
	policy *ReconnectPolicy

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu          sync.Mutex
	conn        *websocket.Conn
	writeCh     chan []byte
	connCancel  context.CancelFunc
	open        bool
	disposed    bool
	manualClose bool

	// Connect parameters retained for reconnect attempts
	descriptor types.ChannelDescriptor
	creds      interfaces.Credentials
	role       string
}

var _ interfaces.Channel = (*Channel)(nil)

// NewChannel creates an unconnected channel delivering decoded events to
// the sink.
func NewChannel(opts Options, policy *ReconnectPolicy, sink interfaces.EventSink) *Channel {
	if policy == nil {
		policy = NewReconnectPolicy(0, 0, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		opts:       opts.withDefaults(),
		sink:       sink,
		policy:     policy,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// endpointPath maps a (role, scope) pair to its connection endpoint.
// FUNCTIONAL DISCOVERY: an unsupported combination must fail the connect
// call immediately with a descriptive error rather than hang
func endpointPath(role, scope string) (string, error) {
	switch {
	case role == types.RoleStudent && scope == types.ScopeSession:
		return "/ws/student/session", nil
	case role == types.RoleTeacher && scope == types.ScopeSession:
		return "/ws/teacher/session", nil
	case role == types.RoleTeacher && scope == types.ScopeLesson:
		return "/ws/teacher/lesson", nil
	default:
		return "", fmt.Errorf("%w: role=%q scope=%q", interfaces.ErrUnsupportedEndpoint, role, scope)
	}
}

// Connect establishes the connection and starts the read, write and
// heartbeat loops.
func (c *Channel) Connect(ctx context.Context, descriptor types.ChannelDescriptor, creds interfaces.Credentials, role string) error {
	if creds.Token == "" {
		return interfaces.ErrMissingCredentials
	}
	if _, err := endpointPath(role, descriptor.Scope); err != nil {
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrChannelDisposed
	}
	if c.open {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.descriptor = descriptor
	c.creds = creds
	c.role = role
	c.manualClose = false
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		return err
	}
	c.policy.Reset()
	return nil
}

// dial performs one connection attempt using the retained parameters.
func (c *Channel) dial(ctx context.Context) error {
	c.mu.Lock()
	descriptor, creds, role := c.descriptor, c.creds, c.role
	c.mu.Unlock()

	path, err := endpointPath(role, descriptor.Scope)
	if err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: bearer token rides a query parameter because
	// a socket upgrade cannot carry custom headers from browser clients
	q := url.Values{}
	q.Set("token", creds.Token)
	switch descriptor.Scope {
	case types.ScopeSession:
		q.Set("session_id", fmt.Sprintf("%d", descriptor.ID))
	case types.ScopeLesson:
		q.Set("lesson_id", fmt.Sprintf("%d", descriptor.ID))
	}
	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + path + "?" + q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDialFailed, path, err)
	}

	connCtx, connCancel := context.WithCancel(c.rootCtx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		connCancel()
		_ = conn.Close()
		return ErrChannelDisposed
	}
	c.conn = conn
	c.writeCh = make(chan []byte, c.opts.BufferSize)
	c.connCancel = connCancel
	c.open = true
	writeCh := c.writeCh
	c.mu.Unlock()

	go c.writeLoop(conn, writeCh, connCtx)
	go c.readLoop(conn, connCtx)
	go c.heartbeatLoop(connCtx)

	log.Printf("Channel connected: topic=%s role=%s", descriptor.Key(), role)
	return nil
}

// Send transmits an envelope. Silently no-ops when the channel is closed,
// manually closed or disposed - teardown races never surface as errors.
func (c *Channel) Send(event *types.Event) {
	c.mu.Lock()
	if !c.open || c.disposed || c.manualClose {
		c.mu.Unlock()
		return
	}
	writeCh := c.writeCh
	c.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Dropping unencodable outbound event: type=%s err=%v", event.Type, err)
		return
	}

	select {
	case writeCh <- data:
	default:
		// Buffer full: drop rather than block the caller.
		log.Printf("Outbound buffer full, dropping event: type=%s", event.Type)
	}
}

// Connected reports whether the channel is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.disposed
}

// Disconnect marks the channel disposed, stops the heartbeat and read
// loops synchronously and releases all resources. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.manualClose = true
	c.open = false
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	// Root cancel stops the heartbeat, reconnect backoff and loops before
	// Disconnect returns - a caller that navigates away leaks no timers.
	c.rootCancel()
	if conn != nil {
		_ = conn.Close()
	}
	log.Printf("Channel disconnected: topic=%s", c.descriptor.Key())
}

// writeLoop is the single writer for one connection.
func (c *Channel) writeLoop(conn *websocket.Conn, writeCh chan []byte, ctx context.Context) {
	for {
		select {
		case data := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop decodes inbound frames and feeds the sink until the connection
// drops, then decides between reconnect, fallback and termination.
func (c *Channel) readLoop(conn *websocket.Conn, ctx context.Context) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		event, decodeErr := wire.DecodeEvent(data)
		if decodeErr != nil {
			// Malformed inbound frames are logged and dropped; the
			// loop and later frames are unaffected.
			log.Printf("Dropping malformed frame: err=%v", decodeErr)
			continue
		}
		if event.Type == types.EventPing {
			continue // server heartbeat, not for subscribers
		}
		c.sink.Dispatch(event)
	}
}

// heartbeatLoop sends an application-level ping on a fixed interval.
// TECHNICAL DISCOVERY: every tick re-checks the disposed/open flags so a
// stale timer can never resurrect a dead connection
func (c *Channel) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			ok := c.open && !c.disposed
			descriptor := c.descriptor
			c.mu.Unlock()
			if !ok {
				return
			}
			c.Send(&types.Event{
				EventID:      uuid.NewString(),
				Type:         types.EventPing,
				Timestamp:    time.Now().UTC(),
				Channel:      descriptor,
				DeliveryMode: types.DeliveryUnicast,
			})
		case <-ctx.Done():
			return
		}
	}
}

// handleClose classifies an unexpected connection loss.
func (c *Channel) handleClose(err error) {
	c.mu.Lock()
	if c.disposed || c.manualClose {
		c.mu.Unlock()
		return
	}
	c.open = false
	if c.connCancel != nil {
		c.connCancel()
	}
	descriptor := c.descriptor
	c.mu.Unlock()

	// FUNCTIONAL DISCOVERY: a policy-violation close whose reason says the
	// session legitimately ended must not trigger reconnection. An
	// ambiguous or empty reason falls back to polling instead - favor
	// availability over premature termination.
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.ClosePolicyViolation {
		if reason, ended := sessionEndReason(closeErr.Text); ended {
			log.Printf("Server closed channel, session ended: topic=%s reason=%s", descriptor.Key(), reason)
			c.synthesizeSessionEnded(descriptor, reason)
			return
		}
	}

	log.Printf("Channel closed unexpectedly: topic=%s err=%v", descriptor.Key(), err)
	go c.reconnectLoop()
}

// sessionEndReason inspects a close reason text. Returns the normalized end
// reason and whether the text indicates a legitimate session end.
func sessionEndReason(text string) (string, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "disconnect"):
		return types.EndReasonTeacherDisconnected, true
	case strings.Contains(lower, "ended") || strings.Contains(lower, "session_ended"):
		return types.EndReasonTeacherEnded, true
	default:
		return "", false
	}
}

// synthesizeSessionEnded injects a session_ended event so the projector
// tears down through its normal path.
func (c *Channel) synthesizeSessionEnded(descriptor types.ChannelDescriptor, reason string) {
	data, _ := json.Marshal(map[string]interface{}{
		"session_id": descriptor.ID,
		"reason":     reason,
	})
	c.sink.Dispatch(&types.Event{
		EventID:      uuid.NewString(),
		Type:         types.EventSessionEnded,
		Timestamp:    time.Now().UTC(),
		Channel:      descriptor,
		DeliveryMode: types.DeliveryUnicast,
		Data:         data,
	})
}

// reconnectLoop retries the dial under the policy's backoff schedule and
// emits a single synthetic reconnect_failed once the budget is exhausted.
func (c *Channel) reconnectLoop() {
	for {
		delay, ok := c.policy.NextDelay()
		if !ok {
			if c.policy.MarkFailed() {
				log.Printf("Reconnect budget exhausted: topic=%s attempts=%d", c.descriptor.Key(), c.policy.Attempts())
				c.sink.Dispatch(&types.Event{
					EventID:      uuid.NewString(),
					Type:         types.EventReconnectFailed,
					Timestamp:    time.Now().UTC(),
					Channel:      c.descriptor,
					DeliveryMode: types.DeliveryUnicast,
				})
			}
			return
		}

		select {
		case <-time.After(delay):
		case <-c.rootCtx.Done():
			return
		}

		c.mu.Lock()
		stop := c.disposed || c.manualClose
		c.mu.Unlock()
		if stop {
			return
		}

		if err := c.dial(c.rootCtx); err != nil {
			log.Printf("Reconnect attempt failed: topic=%s attempt=%d err=%v", c.descriptor.Key(), c.policy.Attempts(), err)
			continue
		}
		c.policy.Reset()
		log.Printf("Reconnected: topic=%s", c.descriptor.Key())
		return
	}
}
