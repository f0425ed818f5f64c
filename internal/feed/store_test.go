package feed_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oshiro-ai/hotaru/internal/api"
	"github.com/oshiro-ai/hotaru/internal/feed"
	"github.com/oshiro-ai/hotaru/internal/push"
)

var discard = slog.New(slog.DiscardHandler)

func rawEmission(id, issueID string, ts time.Time) map[string]any {
	return map[string]any{
		"id":          id,
		"source_type": "agent",
		"source_id":   "agent-7",
		"kind":        "status",
		"summary":     "working on " + id,
		"timestamp":   ts.Format(time.RFC3339),
		"scope":       map[string]any{"issue_id": issueID},
	}
}

func snapshotHandler(t *testing.T, items []map[string]any) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/emissions/recent", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
}

func newStore(t *testing.T, handler http.Handler, f feed.Filter) (*feed.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := api.NewClient(api.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return feed.NewStore(client, f, discard), srv
}

func envelopeFor(t *testing.T, payload any) push.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return push.Envelope{Type: feed.TypeEmissionReceived, Data: data}
}

func TestRefresh_ReplacesBuffer(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	store, _ := newStore(t, snapshotHandler(t, []map[string]any{
		rawEmission("em-1", "issue-1", now),
		rawEmission("em-2", "issue-1", now.Add(-time.Minute)),
		map[string]any{"id": "broken"},
	}), feed.Filter{OrgID: "org-1", Limit: 10})

	require.NoError(t, store.Refresh(context.Background()))
	got := store.Emissions()
	require.Len(t, got, 2, "the malformed record is dropped, the batch survives")
	assert.Equal(t, "em-1", got[0].ID)
	assert.Empty(t, store.Err())
	assert.False(t, store.Loading())
}

func TestRefresh_FailureKeepsPreviousBuffer(t *testing.T) {
	now := time.Now().UTC()
	var fail atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "upstream exploded"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{rawEmission("em-1", "issue-1", now)}})
	})
	store, _ := newStore(t, handler, feed.Filter{OrgID: "org-1", Limit: 10})

	require.NoError(t, store.Refresh(context.Background()))
	require.Len(t, store.Emissions(), 1)

	fail.Store(true)
	err := store.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, store.Emissions(), 1, "failed refresh must not touch the buffer")
	assert.Equal(t, "upstream exploded", store.Err())

	fail.Store(false)
	require.NoError(t, store.Refresh(context.Background()))
	assert.Empty(t, store.Err())
}

func TestRefresh_LateResponseIsDiscarded(t *testing.T) {
	now := time.Now().UTC()
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	var reqs atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqs.Add(1) == 1 {
			close(firstArrived)
			<-releaseFirst
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{rawEmission("stale", "issue-1", now)}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{rawEmission("fresh", "issue-1", now)}})
	})
	store, _ := newStore(t, handler, feed.Filter{OrgID: "org-1", Limit: 10})

	done := make(chan error, 1)
	go func() { done <- store.Refresh(context.Background()) }()
	<-firstArrived

	// A second refresh supersedes the first while it is still in flight.
	require.NoError(t, store.Refresh(context.Background()))
	close(releaseFirst)
	require.NoError(t, <-done)

	got := store.Emissions()
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID, "the superseded snapshot must not overwrite the newer one")
}

func TestApplyPush_UpsertDedupAtLimit(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	store, _ := newStore(t, snapshotHandler(t, []map[string]any{
		rawEmission("em-1", "issue-1", now),
		rawEmission("em-2", "issue-1", now.Add(-time.Minute)),
		rawEmission("em-3", "issue-1", now.Add(-2*time.Minute)),
	}), feed.Filter{OrgID: "org-1", Limit: 3})
	require.NoError(t, store.Refresh(context.Background()))

	// Re-pushing an existing ID promotes it to the front without growing.
	store.ApplyPush(envelopeFor(t, rawEmission("em-2", "issue-1", now.Add(time.Second))))
	got := store.Emissions()
	require.Len(t, got, 3)
	assert.Equal(t, "em-2", got[0].ID)
	ids := map[string]int{}
	for _, e := range got {
		ids[e.ID]++
	}
	assert.Equal(t, 1, ids["em-2"], "no duplicate IDs after upsert")

	// A new ID at capacity evicts the oldest.
	store.ApplyPush(envelopeFor(t, rawEmission("em-4", "issue-1", now.Add(2*time.Second))))
	got = store.Emissions()
	require.Len(t, got, 3)
	assert.Equal(t, "em-4", got[0].ID)
	for _, e := range got {
		assert.NotEqual(t, "em-3", e.ID, "oldest entry is evicted")
	}
}

func TestApplyPush_WrappedAndFilteredAndInvalid(t *testing.T) {
	store, _ := newStore(t, snapshotHandler(t, nil), feed.Filter{OrgID: "org-1", IssueID: "issue-1", Limit: 5})
	now := time.Now().UTC()

	// Wrapped {"emission": {...}} shape is accepted.
	store.ApplyPush(envelopeFor(t, map[string]any{"emission": rawEmission("em-1", "issue-1", now)}))
	require.Len(t, store.Emissions(), 1)

	// Out-of-scope emissions are dropped silently.
	store.ApplyPush(envelopeFor(t, rawEmission("em-2", "issue-2", now)))
	assert.Len(t, store.Emissions(), 1)

	// Invalid records are dropped silently.
	store.ApplyPush(envelopeFor(t, map[string]any{"id": "em-3"}))
	assert.Len(t, store.Emissions(), 1)

	// Unrelated envelope types are ignored.
	store.ApplyPush(push.Envelope{Type: "TaskCreated", Data: json.RawMessage(`{}`)})
	assert.Len(t, store.Emissions(), 1)
}

func TestBindAndClose_SymmetricTopics(t *testing.T) {
	store, _ := newStore(t, snapshotHandler(t, nil), feed.Filter{
		OrgID: "org-1", ProjectID: "proj-1", IssueID: "issue-1", Limit: 5,
	})
	ch := push.New("ws://unused", "", discard)
	ctx := context.Background()

	store.Bind(ctx, ch)
	assert.ElementsMatch(t, []string{"project:proj-1", "issue:issue-1"}, ch.Topics())

	store.SetFilter(ctx, feed.Filter{OrgID: "org-1", ProjectID: "proj-1", IssueID: "issue-2", Limit: 5})
	assert.ElementsMatch(t, []string{"project:proj-1", "issue:issue-2"}, ch.Topics())

	store.Close(ctx)
	assert.Empty(t, ch.Topics(), "every subscribe must have its matching unsubscribe")
}

func TestSetFilter_ReFiltersBufferAndStalesInFlight(t *testing.T) {
	now := time.Now().UTC()
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	var reqs atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := reqs.Add(1)
		if n == 1 {
			close(firstArrived)
			<-releaseFirst
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{
			rawEmission(fmt.Sprintf("em-%d", n), "issue-1", now),
			rawEmission(fmt.Sprintf("other-%d", n), "issue-2", now),
		}})
	})
	store, _ := newStore(t, handler, feed.Filter{OrgID: "org-1", Limit: 5})

	done := make(chan error, 1)
	go func() { done <- store.Refresh(context.Background()) }()
	<-firstArrived

	store.SetFilter(context.Background(), feed.Filter{OrgID: "org-1", IssueID: "issue-2", Limit: 5})
	close(releaseFirst)
	require.NoError(t, <-done)
	assert.Empty(t, store.Emissions(), "snapshot issued under the old scope is stale")

	require.NoError(t, store.Refresh(context.Background()))
	got := store.Emissions()
	require.Len(t, got, 1)
	assert.Equal(t, "issue-2", got[0].Scope.IssueID)
}
