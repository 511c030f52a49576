// Package api is the HTTP client for the collaborator surface the sync
// core consumes: session fetch/list, join/leave and participant listing.
// The server owning these endpoints is outside the core.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lessonsync/internal/wire"
	"lessonsync/pkg/interfaces"
	"lessonsync/pkg/types"
)

// Client implements interfaces.SessionAPI over net/http.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ interfaces.SessionAPI = (*Client)(nil)

// NewClient creates a client for the given REST origin. The bearer token
// rides the Authorization header here; the query-parameter form is only
// for the socket upgrade.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchSession retrieves the full session snapshot.
func (c *Client) FetchSession(ctx context.Context, sessionID int64) (*types.SessionSnapshot, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d", sessionID), nil)
	if err != nil {
		return nil, err
	}
	return wire.DecodeSession(body)
}

// ListSessions returns sessions for a lesson filtered by status.
func (c *Client) ListSessions(ctx context.Context, lessonID int64, statuses []string) ([]*types.SessionSnapshot, error) {
	q := url.Values{}
	q.Set("lesson_id", fmt.Sprintf("%d", lessonID))
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	body, err := c.do(ctx, http.MethodGet, "/api/sessions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		// FUNCTIONAL DISCOVERY: one backend path wraps the list in a
		// results envelope
		var wrapped struct {
			Results []json.RawMessage `json:"results"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil {
			return nil, fmt.Errorf("malformed session list: %w", err)
		}
		raws = wrapped.Results
	}

	sessions := make([]*types.SessionSnapshot, 0, len(raws))
	for _, raw := range raws {
		s, err := wire.DecodeSession(raw)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Join registers the student and returns the participation record.
func (c *Client) Join(ctx context.Context, sessionID, studentID int64) (*types.ParticipationRecord, error) {
	payload, _ := json.Marshal(map[string]int64{"student_id": studentID})
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%d/join", sessionID), payload)
	if err != nil {
		return nil, err
	}
	return wire.DecodeParticipation(body)
}

// Leave closes the participation. Treated as best-effort by callers.
func (c *Client) Leave(ctx context.Context, sessionID, participationID int64) error {
	payload, _ := json.Marshal(map[string]int64{"participation_id": participationID})
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%d/leave", sessionID), payload)
	return err
}

// ListParticipants returns the current participation records.
func (c *Client) ListParticipants(ctx context.Context, sessionID int64) ([]*types.ParticipationRecord, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d/participants", sessionID), nil)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("malformed participant list: %w", err)
	}
	records := make([]*types.ParticipationRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := wire.DecodeParticipation(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// do executes one request and maps the response status onto the shared
// error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures are transient for retry decisions.
		return nil, fmt.Errorf("%w: %v", interfaces.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s %s", interfaces.ErrPermissionDenied, method, path)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", interfaces.ErrSessionNotFound, method, path)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
		// ARCHITECTURAL DISCOVERY: the server answers 409/410 for joins
		// against a terminal session
		return nil, fmt.Errorf("%w: %s %s", interfaces.ErrSessionEnded, method, path)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s %s: status %d", interfaces.ErrTransient, method, path, resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected response: %s %s: status %d: %s", method, path, resp.StatusCode, truncate(body))
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
