package interfaces

import (
	"context"

	"lessonsync/pkg/types"
)

// SessionAPI is the request/response collaborator surface the sync core
// consumes. The server behind it owns sessions; the core only reads and
// joins them.
// ARCHITECTURAL DISCOVERY: Context-first design pattern ensures proper
// cancellation and timeout handling across all session operations
type SessionAPI interface {
	// FetchSession retrieves the full session snapshot by ID.
	// Used by the fallback poller when the push channel is unusable.
	FetchSession(ctx context.Context, sessionID int64) (*types.SessionSnapshot, error)

	// ListSessions returns sessions for a lesson, filtered by the given
	// statuses (empty filter means all).
	ListSessions(ctx context.Context, lessonID int64, statuses []string) ([]*types.SessionSnapshot, error)

	// Join registers the student in the session and returns the
	// participation record, idempotently for re-entry.
	Join(ctx context.Context, sessionID, studentID int64) (*types.ParticipationRecord, error)

	// Leave closes the student's participation. Best-effort: callers clear
	// local state regardless of the outcome.
	Leave(ctx context.Context, sessionID, participationID int64) error

	// ListParticipants returns the current participation records for a
	// session.
	ListParticipants(ctx context.Context, sessionID int64) ([]*types.ParticipationRecord, error)
}
