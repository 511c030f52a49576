package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lessonsync/pkg/interfaces"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-token", time.Second)
}

func TestClient_FetchSessionDecodesAliases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/7" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		// camelCase aliases from the alternate backend path
		_, _ = w.Write([]byte(`{
			"id": 7,
			"lessonId": 3,
			"status": "active",
			"currentCellId": 5,
			"displayOrders": [1, 2, 3],
			"teacherName": "Rivera"
		}`))
	})

	s, err := c.FetchSession(context.Background(), 7)
	if err != nil {
		t.Fatalf("FetchSession failed: %v", err)
	}
	if s.SessionID != 7 || s.LessonID != 3 || s.Status != "active" {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if s.CurrentCellID == nil || *s.CurrentCellID != 5 {
		t.Errorf("current cell not decoded: %+v", s.CurrentCellID)
	}
	if len(s.DisplayOrders) != 3 || s.TeacherName != "Rivera" {
		t.Errorf("aliased fields not decoded: %+v", s)
	}
}

func TestClient_ListSessionsPlainArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("lesson_id"); got != "3" {
			t.Errorf("unexpected lesson_id %q", got)
		}
		if got := r.URL.Query().Get("status"); got != "pending,active" {
			t.Errorf("unexpected status filter %q", got)
		}
		_, _ = w.Write([]byte(`[{"session_id": 1, "status": "active"}, {"session_id": 2, "status": "pending"}]`))
	})

	sessions, err := c.ListSessions(context.Background(), 3, []string{"pending", "active"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestClient_ListSessionsResultsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"session_id": 4, "status": "active"}]}`))
	})

	sessions, err := c.ListSessions(context.Background(), 3, nil)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != 4 {
		t.Errorf("envelope form not decoded: %+v", sessions)
	}
}

func TestClient_JoinPostsStudentID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/7/join" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"participation_id": 55, "session_id": 7, "student_id": 9, "is_active": true, "progress_percentage": 0}`))
	})

	record, err := c.Join(context.Background(), 7, 9)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if record.ParticipationID != 55 || record.StudentID != 9 {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestClient_StatusTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, interfaces.ErrPermissionDenied},
		{http.StatusForbidden, interfaces.ErrPermissionDenied},
		{http.StatusNotFound, interfaces.ErrSessionNotFound},
		{http.StatusConflict, interfaces.ErrSessionEnded},
		{http.StatusGone, interfaces.ErrSessionEnded},
		{http.StatusInternalServerError, interfaces.ErrTransient},
		{http.StatusBadGateway, interfaces.ErrTransient},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		})
		_, err := c.FetchSession(context.Background(), 1)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestClient_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on
	c := NewClient(server.URL, "tok", time.Second)

	_, err := c.FetchSession(context.Background(), 1)
	if !errors.Is(err, interfaces.ErrTransient) {
		t.Errorf("expected ErrTransient on network failure, got %v", err)
	}
}

func TestClient_LeaveBestEffort(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/7/leave" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.Leave(context.Background(), 7, 55); err != nil {
		t.Errorf("Leave failed: %v", err)
	}
}

func TestClient_ListParticipants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"participation_id": 1, "session_id": 7, "student_id": 9, "progress_percentage": 120},
			{"participation_id": 2, "session_id": 7, "student_id": 10, "progress_percentage": 40}
		]`))
	})

	records, err := c.ListParticipants(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ProgressPercent != 100 {
		t.Errorf("oversized percent must be clamped, got %v", records[0].ProgressPercent)
	}
}
