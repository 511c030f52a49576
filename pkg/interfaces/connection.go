package interfaces

import (
	"context"

	"lessonsync/pkg/types"
)

// Credentials authenticate a channel connect. The token is pre-issued;
// token issuance is out of scope for the sync core.
type Credentials struct {
	Token string
}

// Channel is one bidirectional message connection between this client and a
// server-side topic.
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between transport infrastructure and state logic
type Channel interface {
	// Connect establishes the connection for a (descriptor, role) pair.
	// Fails fast on missing credentials or an unsupported endpoint
	// combination rather than hanging.
	Connect(ctx context.Context, descriptor types.ChannelDescriptor, creds Credentials, role string) error

	// Send transmits an envelope. Silently no-ops when the channel is
	// closed or disposed - teardown races must not surface as errors.
	Send(event *types.Event)

	// Connected reports whether the channel is currently open.
	Connected() bool

	// Disconnect is idempotent: marks the channel disposed, stops the
	// heartbeat and releases all listeners.
	Disconnect()
}

// EventSink receives decoded inbound envelopes from a channel or a local
// synthesizer.
// FUNCTIONAL DISCOVERY: The sink is the single seam between transport and
// dispatch, so tests can observe delivery without a live socket
type EventSink interface {
	Dispatch(event *types.Event)
}

// EventJournal records delivered events and session lifecycle notes.
// Recording is best-effort; failures never affect dispatch.
type EventJournal interface {
	RecordEvent(ctx context.Context, sessionID int64, event *types.Event) error
	RecordSessionNote(ctx context.Context, sessionID int64, status, note string) error
	Close() error
}
