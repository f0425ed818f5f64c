package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/oshiro-ai/hotaru/internal/api"
	"github.com/oshiro-ai/hotaru/internal/model"
	"github.com/oshiro-ai/hotaru/internal/push"
	"github.com/oshiro-ai/hotaru/internal/telemetry"
)

// TypeEmissionReceived is the push envelope type carrying one emission.
const TypeEmissionReceived = "EmissionReceived"

// Store reconciles snapshot loads with push-channel upserts into one bounded
// buffer for a fixed scope. Multiple stores can coexist on one channel; a
// wider org-scoped store (badge feeding) decides its own matches
// independently of a narrower one.
type Store struct {
	client *api.Client
	logger *slog.Logger

	mu        sync.Mutex
	filter    Filter
	emissions []model.Emission
	loading   bool
	errMsg    string
	closed    bool

	// gen is bumped per Refresh and per filter change. A snapshot response
	// is applied only while its generation is still the latest issued, so a
	// late response can never clobber newer push-derived state.
	gen uint64

	channel    *push.Channel
	unregister func()
	topics     []string
}

// NewStore creates a Store bound to filter. Call Bind to attach it to a push
// channel and Refresh to load the initial snapshot.
func NewStore(client *api.Client, filter Filter, logger *slog.Logger) *Store {
	return &Store{client: client, filter: filter, logger: logger}
}

// Refresh issues one snapshot request and, on success, replaces the buffer
// with the validated, limit-truncated result. On failure the previous buffer
// stays intact and Err surfaces a human-readable message. There is no retry;
// the consumer calls Refresh again.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.loading = true
	f := s.filter
	s.mu.Unlock()

	items, err := s.client.RecentEmissions(ctx, api.EmissionQuery{
		OrgID:     f.OrgID,
		ProjectID: f.ProjectID,
		IssueID:   f.IssueID,
		SourceID:  f.SourceID,
		Limit:     f.limit(),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		// Torn down or superseded while in flight; the response is stale.
		telemetry.RecordSnapshot(ctx, "stale")
		return nil
	}
	s.loading = false
	if err != nil {
		s.errMsg = api.Reason(err)
		s.logger.Warn("feed: snapshot refresh failed", "error", err)
		telemetry.RecordSnapshot(ctx, "error")
		return err
	}
	s.errMsg = ""
	s.emissions = Select(items, f, f.limit())
	telemetry.RecordSnapshot(ctx, "ok")
	return nil
}

// ApplyPush runs one push envelope through the validator and, when the
// emission matches this store's scope, upserts it: any prior entry with the
// same ID is removed, the new one goes to the front, and the buffer is
// truncated to the configured limit. Everything else is dropped silently.
func (s *Store) ApplyPush(env push.Envelope) {
	if env.Type != TypeEmissionReceived {
		return
	}
	raw := unwrapEmission(env.Data)
	e, err := model.ParseEmission(raw)
	if err != nil {
		telemetry.RecordDropped(context.Background(), "emission", dropReason(err), 1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.filter.Matches(e) {
		return
	}

	buf := make([]model.Emission, 0, len(s.emissions)+1)
	buf = append(buf, e)
	for _, old := range s.emissions {
		if old.ID != e.ID {
			buf = append(buf, old)
		}
	}
	if limit := s.filter.limit(); len(buf) > limit {
		buf = buf[:limit]
	}
	s.emissions = buf
	telemetry.RecordPushApplied(context.Background())
}

// Bind registers the store on ch and subscribes the topics its scope needs.
// Close sends the matching unsubscribes.
func (s *Store) Bind(ctx context.Context, ch *push.Channel) {
	s.mu.Lock()
	if s.closed || s.channel != nil {
		s.mu.Unlock()
		return
	}
	s.channel = ch
	s.topics = topicsFor(s.filter)
	topics := s.topics
	s.unregister = ch.Register(s.ApplyPush)
	s.mu.Unlock()

	for _, topic := range topics {
		ch.Subscribe(ctx, topic)
	}
}

// SetFilter retargets the store to a new scope: topic subscriptions are
// swapped symmetrically, any in-flight snapshot is marked stale, and the
// buffer is re-filtered through the new scope. The caller refreshes after.
func (s *Store) SetFilter(ctx context.Context, f Filter) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	old := s.topics
	s.filter = f
	s.gen++
	s.loading = false
	if s.channel != nil {
		s.topics = topicsFor(f)
	}
	next := s.topics
	s.emissions = Select(s.emissions, f, f.limit())
	ch := s.channel
	s.mu.Unlock()

	if ch == nil {
		return
	}
	for _, topic := range diff(next, old) {
		ch.Subscribe(ctx, topic)
	}
	for _, topic := range diff(old, next) {
		ch.Unsubscribe(ctx, topic)
	}
}

// Close tears the store down: the buffer is discarded, in-flight snapshots
// become stale, the push registration is removed, and every subscribed topic
// gets its matching unsubscribe.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	topics := s.topics
	s.topics = nil
	s.emissions = nil
	ch := s.channel
	s.channel = nil
	unregister := s.unregister
	s.unregister = nil
	s.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	if ch != nil {
		for _, topic := range topics {
			ch.Unsubscribe(ctx, topic)
		}
	}
}

// Emissions returns a copy of the current buffer, newest first.
func (s *Store) Emissions() []model.Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Emission, len(s.emissions))
	copy(out, s.emissions)
	return out
}

// Loading reports whether a snapshot request is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the message from the last failed refresh, or "" after a
// successful one.
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Filter returns the store's current scope.
func (s *Store) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func topicsFor(f Filter) []string {
	var topics []string
	if f.ProjectID != "" {
		topics = append(topics, push.ProjectTopic(f.ProjectID))
	}
	if f.IssueID != "" {
		topics = append(topics, push.IssueTopic(f.IssueID))
	}
	return topics
}

func diff(a, b []string) []string {
	var out []string
	for _, x := range a {
		found := false
		for _, y := range b {
			if x == y {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}

// unwrapEmission handles both inbound shapes: the emission directly in data,
// or wrapped as {"emission": {...}}.
func unwrapEmission(data json.RawMessage) any {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	if obj, ok := raw.(map[string]any); ok {
		if inner, ok := obj["emission"].(map[string]any); ok {
			return inner
		}
	}
	return raw
}

func dropReason(err error) string {
	if pe, ok := err.(*model.ParseError); ok {
		return pe.Field
	}
	return "unknown"
}
