package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/wire"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, 5*time.Second)
	c.SetToken("test-token")
	return c
}

func TestGetSessions_SendsBearerTokenAndPaging(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "/v1/sessions", r.URL.Path)
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		require.Equal(t, "100", r.URL.Query().Get("offset"))
		json.NewEncoder(w).Encode(wire.ListSessionsResponse{
			Sessions: []wire.SessionSummary{{ID: "s1"}},
			Total:    150,
			HasMore:  false,
		})
	})

	resp, err := c.GetSessions(context.Background(), 50, 100)
	require.NoError(t, err)
	require.Len(t, resp.Sessions, 1)
	require.Equal(t, "s1", resp.Sessions[0].ID)
	require.Equal(t, 150, resp.Total)
}

func TestGetSessionMessages_NotFoundMapsToSentinel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	})

	_, err := c.GetSessionMessages(context.Background(), "gone", 20, 0)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRun_ConflictMapsToAlreadyRunning(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "turn in progress", http.StatusConflict)
	})

	_, err := c.Run(context.Background(), &wire.RunRequest{Text: "hi", Mode: wire.RunModeResume, SessionID: "s1"})
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRun_PostsBodyAndParsesSessionID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/run", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req wire.RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, wire.RunModeNew, req.Mode)
		require.Equal(t, "hello", req.Text)

		json.NewEncoder(w).Encode(wire.RunResponse{SessionID: "fresh-1"})
	})

	resp, err := c.Run(context.Background(), &wire.RunRequest{Text: "hello", Mode: wire.RunModeNew})
	require.NoError(t, err)
	require.Equal(t, "fresh-1", resp.SessionID)
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status", r.URL.Path)
		json.NewEncoder(w).Encode(wire.StatusResponse{AgentState: "thinking", Workspace: "/w"})
	})

	status, err := c.FetchStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "thinking", status.AgentState)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	})

	_, err := c.FetchStatus(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestDeleteSession_EscapesID(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v1/sessions/s%2F1", r.URL.EscapedPath())
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.DeleteSession(context.Background(), "s/1"))
}

func TestStopAgent(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/s1/stop", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.StopAgent(context.Background(), "s1"))
}

func TestContextCancellation(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.FetchStatus(ctx)
	require.Error(t, err)
}
