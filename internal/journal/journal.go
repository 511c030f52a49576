// Package journal keeps a local, replayable record of what the channel
// delivered and how each session lifecycle unfolded. Best-effort: journal
// failures never affect dispatch.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id    TEXT PRIMARY KEY,
	session_id  INTEGER NOT NULL,
	type        TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 0,
	timestamp   TEXT NOT NULL,
	payload     TEXT,
	received_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, received_at);

CREATE TABLE IF NOT EXISTS session_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	status     TEXT NOT NULL,
	note       TEXT,
	at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_log_session ON session_log(session_id, at);
`

// Entry is one journaled event row.
type Entry struct {
	EventID    string
	SessionID  int64
	Type       string
	Version    int64
	Timestamp  time.Time
	Payload    string
	ReceivedAt time.Time
}

// writeOperation represents one queued database write.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Manager implements interfaces.EventJournal over SQLite.
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
// contention; reads go straight to the pooled connection
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

var _ interfaces.EventJournal = (*Manager)(nil)

// NewManager opens (and initializes) the journal database at path.
func NewManager(path string) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.writeLoop()
	return m, nil
}

// writeLoop processes all write operations in a single goroutine.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				// FUNCTIONAL DISCOVERY: Retry exactly once after a short
				// delay - journal writes are best-effort
				log.Printf("Journal write failed, retrying: %v", err)
				time.Sleep(2 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Journal write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("journal is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return fmt.Errorf("journal is shutting down")
	}
}

// RecordEvent journals one delivered event. Duplicate event ids are
// ignored: dedup already happened at dispatch, and a replay after restart
// must not fail.
func (m *Manager) RecordEvent(ctx context.Context, sessionID int64, event *types.Event) error {
	if event == nil {
		return nil
	}
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO events (event_id, session_id, type, version, timestamp, payload, received_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.EventID,
			sessionID,
			event.Type,
			event.Version,
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			string(event.Data),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// RecordSessionNote journals a lifecycle transition (joined, left, ended).
func (m *Manager) RecordSessionNote(ctx context.Context, sessionID int64, status, note string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO session_log (session_id, status, note, at) VALUES (?, ?, ?, ?)`,
			sessionID, status, note, time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// RecentEvents returns the newest events for a session, newest first.
func (m *Manager) RecentEvents(ctx context.Context, sessionID int64, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT event_id, session_id, type, version, timestamp, payload, received_at
		 FROM events WHERE session_id = ? ORDER BY received_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts, received string
		var payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Type, &e.Version, &ts, &payload, &received); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, received)
		e.Payload = payload.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close drains the writer and closes the database. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}
