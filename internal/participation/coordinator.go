// Package participation manages the join/leave lifecycle of one student
// against a session, with bounded retries and idempotent re-entry.
package participation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// Join retry parameters
// FUNCTIONAL DISCOVERY: retries are suppressed for permission and
// terminal-session failures - only genuinely transient errors burn attempts
const (
	DefaultJoinAttempts = 3
	DefaultRetryDelay   = 2 * time.Second
)

// Coordinator owns the participation record for one student.
type Coordinator struct {
	api          interfaces.SessionAPI
	joinAttempts int
	retryDelay   time.Duration

	// teardown releases channel/poller resources before a leave notifies
	// the server, so navigation away never leaks timers.
	teardown func()

	mu     sync.Mutex
	record *types.ParticipationRecord
}

// NewCoordinator creates a coordinator. teardown may be nil.
func NewCoordinator(api interfaces.SessionAPI, teardown func()) *Coordinator {
	return &Coordinator{
		api:          api,
		joinAttempts: DefaultJoinAttempts,
		retryDelay:   DefaultRetryDelay,
		teardown:     teardown,
	}
}

// SetRetry overrides the retry parameters (tests use short delays).
func (c *Coordinator) SetRetry(attempts int, delay time.Duration) {
	if attempts > 0 {
		c.joinAttempts = attempts
	}
	if delay > 0 {
		c.retryDelay = delay
	}
}

// Discover finds the session to join for a lesson: active sessions first,
// falling back to pending+active when none are active.
// FUNCTIONAL DISCOVERY: with multiple candidates the most recently created
// wins (id desc, then created_at desc) so a stale session left over from a
// previous class is never joined
func (c *Coordinator) Discover(ctx context.Context, lessonID int64) (*types.SessionSnapshot, error) {
	sessions, err := c.api.ListSessions(ctx, lessonID, []string{types.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("session discovery failed: %w", err)
	}
	if len(sessions) == 0 {
		sessions, err = c.api.ListSessions(ctx, lessonID, []string{types.StatusPending, types.StatusActive})
		if err != nil {
			return nil, fmt.Errorf("session discovery failed: %w", err)
		}
	}
	if len(sessions) == 0 {
		return nil, ErrNoJoinableSession
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].SessionID != sessions[j].SessionID {
			return sessions[i].SessionID > sessions[j].SessionID
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions[0], nil
}

// Join establishes participation with bounded retry. Permission-denied and
// session-ended responses never retry: both clear local state and return.
// Transient failures retry up to the cap, then give up non-fatally - the
// caller can still render content outside synced mode.
func (c *Coordinator) Join(ctx context.Context, sessionID, studentID int64) (*types.ParticipationRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= c.joinAttempts; attempt++ {
		record, err := c.api.Join(ctx, sessionID, studentID)
		if err == nil {
			// Idempotent re-entry: a repeat join refreshes the record.
			c.mu.Lock()
			c.record = record.Clone()
			c.mu.Unlock()
			log.Printf("Joined session: session=%d participation=%d", sessionID, record.ParticipationID)
			return record, nil
		}

		if errors.Is(err, interfaces.ErrPermissionDenied) {
			// Do not retry access problems.
			c.Clear()
			return nil, err
		}
		if errors.Is(err, interfaces.ErrSessionEnded) || errors.Is(err, interfaces.ErrSessionNotFound) {
			// Do not retry a terminal condition.
			c.Clear()
			return nil, err
		}

		lastErr = err
		log.Printf("Join attempt failed: session=%d attempt=%d/%d err=%v", sessionID, attempt, c.joinAttempts, err)
		if attempt < c.joinAttempts {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: session=%d: %v", ErrJoinGaveUp, sessionID, lastErr)
}

// Leave tears down channel/poll resources first, then best-effort notifies
// the server. Local state is cleared regardless of the server outcome.
func (c *Coordinator) Leave(ctx context.Context, sessionID int64) error {
	if c.teardown != nil {
		c.teardown()
	}

	c.mu.Lock()
	record := c.record
	c.record = nil
	c.mu.Unlock()

	if record == nil {
		return ErrNotJoined
	}

	if err := c.api.Leave(ctx, sessionID, record.ParticipationID); err != nil {
		// Best-effort: the server evicts inactive participants anyway.
		log.Printf("Leave notification failed (ignored): session=%d err=%v", sessionID, err)
	}
	log.Printf("Left session: session=%d participation=%d", sessionID, record.ParticipationID)
	return nil
}

// Record returns a copy of the current participation record, nil when not
// joined.
func (c *Coordinator) Record() *types.ParticipationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

// UpdateLocalProgress applies a reported progress delta to the local
// record. Out-of-order updates are last-write-wins on the monotone field,
// not errors.
func (c *Coordinator) UpdateLocalProgress(completed []int64, currentCellID *int64, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return
	}
	c.record.CompletedCellIDs = append([]int64(nil), completed...)
	if currentCellID != nil {
		v := *currentCellID
		c.record.CurrentCellID = &v
	}
	c.record.ProgressPercent = types.ClampPercent(percent)
	c.record.LastActiveAt = time.Now().UTC()
}

// Clear drops local participation state (server eviction, terminal errors).
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record != nil {
		now := time.Now().UTC()
		c.record.IsActive = false
		c.record.LeftAt = &now
	}
	c.record = nil
}
