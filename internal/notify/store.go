package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oshiro-ai/hotaru/internal/api"
	"github.com/oshiro-ai/hotaru/internal/model"
	"github.com/oshiro-ai/hotaru/internal/push"
)

// Store owns the notification list. Reads come from the snapshot endpoint;
// appends come from the router via the push channel. Mutations apply locally
// first and sync to the server best-effort: a failed sync is logged and the
// local state stands, because these are idempotent low-stakes actions the
// user can repeat.
type Store struct {
	client *api.Client
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	items      []model.Notification
	errMsg     string
	unregister func()
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow injects the router's time source for tests.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty Store. Call Load for the initial snapshot and
// Bind to receive push-derived notifications.
func NewStore(client *api.Client, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{client: client, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the snapshot and replaces the list. Invalid records were
// already dropped by the client. On failure the previous list stays intact.
func (s *Store) Load(ctx context.Context) error {
	items, err := s.client.Notifications(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errMsg = api.Reason(err)
		s.logger.Warn("notify: snapshot load failed", "error", err)
		return err
	}
	s.errMsg = ""
	s.items = items
	return nil
}

// Ingest prepends one notification.
func (s *Store) Ingest(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]model.Notification{n}, s.items...)
}

// HandlePush routes one push envelope; recognized kinds become notifications,
// everything else is ignored.
func (s *Store) HandlePush(env push.Envelope) {
	kind := KindOf(env.Type)
	if kind == KindUnrecognized {
		return
	}
	var payload map[string]any
	if len(env.Data) > 0 {
		// A payload that is not an object routes as an empty one; the
		// router falls back to its generic titles.
		_ = json.Unmarshal(env.Data, &payload)
	}
	if n, ok := Route(kind, payload, s.now()); ok {
		s.Ingest(n)
	}
}

// Bind registers the store's push handler on ch. Close removes it.
func (s *Store) Bind(ch *push.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unregister != nil {
		return
	}
	s.unregister = ch.Register(s.HandlePush)
}

// Close releases the push registration and discards the list.
func (s *Store) Close() {
	s.mu.Lock()
	unregister := s.unregister
	s.unregister = nil
	s.items = nil
	s.mu.Unlock()
	if unregister != nil {
		unregister()
	}
}

// MarkAsRead marks one notification read: locally at once, then on the
// server best-effort.
func (s *Store) MarkAsRead(ctx context.Context, id string) {
	s.setRead(id, true)
	if err := s.client.MarkNotificationRead(ctx, id); err != nil {
		s.logger.Warn("notify: mark-read sync failed", "id", id, "error", err)
	}
}

// MarkAsUnread marks one notification unread, same sync policy.
func (s *Store) MarkAsUnread(ctx context.Context, id string) {
	s.setRead(id, false)
	if err := s.client.MarkNotificationUnread(ctx, id); err != nil {
		s.logger.Warn("notify: mark-unread sync failed", "id", id, "error", err)
	}
}

// MarkAllAsRead marks every notification read, same sync policy.
func (s *Store) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].Read = true
	}
	s.mu.Unlock()
	if err := s.client.MarkAllNotificationsRead(ctx); err != nil {
		s.logger.Warn("notify: mark-all-read sync failed", "error", err)
	}
}

// Delete removes one notification locally and on the server best-effort.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	kept := s.items[:0]
	for _, n := range s.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.items = kept
	s.mu.Unlock()
	if err := s.client.DeleteNotification(ctx, id); err != nil {
		s.logger.Warn("notify: delete sync failed", "id", id, "error", err)
	}
}

// Notifications returns a copy of the current list, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Err returns the message from the last failed load, or "".
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

func (s *Store) setRead(id string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Read = read
			return
		}
	}
}
