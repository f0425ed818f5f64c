// Package push maintains the websocket push channel: it dials, forwards
// inbound event envelopes to registered handlers, and sends topic
// subscribe/unsubscribe control frames. Delivery is best-effort end to end —
// a dropped connection loses whatever was in flight and consumers reconcile
// via their next snapshot.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Envelope is one inbound push message. Data stays raw; each handler decodes
// only the types it recognizes.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives every inbound envelope. Handlers must not block.
type Handler func(Envelope)

// controlFrame is the outbound subscribe/unsubscribe message.
type controlFrame struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

// ProjectTopic is the channel topic for one project's traffic.
func ProjectTopic(projectID string) string { return "project:" + projectID }

// IssueTopic is the channel topic for one issue's traffic.
func IssueTopic(issueID string) string { return "issue:" + issueID }

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Channel is a reconnecting websocket client. Topic subscriptions are
// refcounted so independent stores can share one connection: the subscribe
// frame goes out on the first reference, the unsubscribe on the last release,
// and the full topic set is replayed after every reconnect.
type Channel struct {
	url    string
	token  string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[int]Handler
	nextID   int
	topics   map[string]int
}

// New creates a Channel. Call Run to connect.
func New(url, token string, logger *slog.Logger) *Channel {
	return &Channel{
		url:      url,
		token:    token,
		logger:   logger,
		handlers: make(map[int]Handler),
		topics:   make(map[string]int),
	}
}

// Register adds a handler for inbound envelopes and returns its remove
// function. The remove function is idempotent.
func (c *Channel) Register(h Handler) (unregister func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, id)
			c.mu.Unlock()
		})
	}
}

// Subscribe adds one reference to topic, sending the subscribe frame when
// this is the first. While disconnected the topic is only recorded; Run
// replays it on connect.
func (c *Channel) Subscribe(ctx context.Context, topic string) {
	if topic == "" {
		return
	}
	c.mu.Lock()
	c.topics[topic]++
	first := c.topics[topic] == 1
	conn := c.conn
	c.mu.Unlock()

	if first && conn != nil {
		c.writeControl(ctx, conn, "subscribe", topic)
	}
}

// Unsubscribe drops one reference to topic, sending the unsubscribe frame
// when the last reference is released. Every Subscribe must be paired with
// an Unsubscribe on teardown or scope change.
func (c *Channel) Unsubscribe(ctx context.Context, topic string) {
	if topic == "" {
		return
	}
	c.mu.Lock()
	n, ok := c.topics[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	last := n == 1
	if last {
		delete(c.topics, topic)
	} else {
		c.topics[topic] = n - 1
	}
	conn := c.conn
	c.mu.Unlock()

	if last && conn != nil {
		c.writeControl(ctx, conn, "unsubscribe", topic)
	}
}

// Topics returns the currently referenced topic set, for diagnostics.
func (c *Channel) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		out = append(out, topic)
	}
	return out
}

// Run connects and reads until ctx is cancelled, reconnecting with capped
// backoff after failures. Messages lost across a reconnect are gone; the
// stores tolerate the gap.
func (c *Channel) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("push: connection lost, reconnecting",
			"error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Channel) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(dialCtx, c.url, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c.mu.Lock()
	c.conn = conn
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	for _, topic := range topics {
		c.writeControl(ctx, conn, "subscribe", topic)
	}
	c.logger.Info("push: connected", "topics", len(topics))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and fans it out. A frame that is not a valid
// envelope is dropped with a debug log, not an error: unknown traffic on the
// channel is normal.
func (c *Channel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.logger.Debug("push: dropping undecodable frame", "bytes", len(data))
		return
	}

	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
}

func (c *Channel) writeControl(ctx context.Context, conn *websocket.Conn, typ, topic string) {
	frame, err := json.Marshal(controlFrame{Type: typ, Topic: topic})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(withoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		c.logger.Warn("push: control frame failed", "type", typ, "topic", topic, "error", err)
	}
}

// withoutCancel keeps values but detaches cancellation so an unsubscribe
// issued during teardown still reaches the server.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
