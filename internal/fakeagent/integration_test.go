// ABOUTME: End-to-end tests: backend client and session controller against the reference backend
// ABOUTME: Covers streaming reconciliation, persistence round-trip and session reload

package fakeagent_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mahakaal/internal/backend"
	"github.com/2389/mahakaal/internal/config"
	"github.com/2389/mahakaal/internal/dedupe"
	"github.com/2389/mahakaal/internal/fakeagent"
	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/metrics"
	"github.com/2389/mahakaal/internal/session"
	"github.com/2389/mahakaal/internal/store"
)

func newStack(t *testing.T) (*backend.Client, *session.Controller) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := httptest.NewServer(fakeagent.New(st, config.FakeBackendConfig{WordsPerSecond: 500}))
	t.Cleanup(srv.Close)

	client := backend.New(config.BackendConfig{BaseURL: srv.URL})

	cache := dedupe.New(time.Minute, 1000)
	t.Cleanup(cache.Close)

	ctrl := session.New(client,
		session.WithPersister(client),
		session.WithHistoryLoader(client),
		session.WithDedupe(cache),
		session.WithMetrics(metrics.New()),
	)
	t.Cleanup(ctrl.Close)

	return client, ctrl
}

func TestEndToEnd_CalendarExchangeIsPersisted(t *testing.T) {
	client, ctrl := newStack(t)
	ctx := t.Context()

	info, err := client.CreateSession(ctx, "")
	require.NoError(t, err)
	ctrl.SetSession(string(info.ID))

	res, err := ctrl.SendAndWait(ctx, "What's on my calendar tomorrow?")
	require.NoError(t, err)
	require.Equal(t, session.StateCompleted, res.State, "err: %v", res.Err)

	live := ctrl.Transcript()
	require.Len(t, live, 4)
	assert.Equal(t, message.RoleUser, live[0].Role)
	assert.Len(t, live[1].ToolCalls, 1)
	assert.Equal(t, message.RoleTool, live[2].Role)
	assert.Equal(t, "You have no events tomorrow.", live[3].Text())
	assert.False(t, ctrl.Activity().Active)

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, ctrl.Flush(flushCtx))

	// Saves run concurrently, so compare as a set and then reload.
	stored, err := client.GetSession(ctx, string(info.ID))
	require.NoError(t, err)
	require.Len(t, stored, 4)

	var texts []string
	for _, m := range stored {
		texts = append(texts, m.Text())
	}
	assert.ElementsMatch(t, []string{"What's on my calendar tomorrow?", "", "[]", "You have no events tomorrow."}, texts)

	sessions := client.SessionsOrEmpty(ctx)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].MessageCount)
	assert.Equal(t, 4, *sessions[0].MessageCount)

	require.NoError(t, ctrl.Load(ctx, string(info.ID)))
	assert.Len(t, ctrl.Transcript(), 4)
}

func TestEndToEnd_FollowUpSendsFullHistory(t *testing.T) {
	_, ctrl := newStack(t)
	ctx := t.Context()

	_, err := ctrl.SendAndWait(ctx, "hello")
	require.NoError(t, err)
	res, err := ctrl.SendAndWait(ctx, "and again")
	require.NoError(t, err)
	require.Equal(t, session.StateCompleted, res.State)

	msgs := ctrl.Transcript()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[1].Text(), "hello")
	assert.Contains(t, msgs[3].Text(), "and again")
}

func TestEndToEnd_LoadUnknownSessionDegrades(t *testing.T) {
	_, ctrl := newStack(t)

	err := ctrl.Load(t.Context(), "404")
	require.ErrorIs(t, err, backend.ErrNotFound)
	assert.Empty(t, ctrl.Transcript())
}
