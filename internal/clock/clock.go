// Package clock provides a single shared ticking service multiplexed across
// any number of subscribers, plus the recency predicate driven by it. One
// process gets one ticker, not one per consumer.
package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = time.Second

// Service fans one ticker out to all registered callbacks. The ticker runs
// lazily: it starts when the subscriber set goes from empty to non-empty and
// stops when it drains back to empty. Safe for concurrent use.
type Service struct {
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	subs   map[int]func(time.Time)
	nextID int
	stop   chan struct{}
	starts int
	stops  int
}

// Option configures a Service.
type Option func(*Service)

// WithInterval overrides the tick period. Tests use a short one.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithNow injects the time source used for the immediate first callback.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a stopped Service. The ticker starts with the first subscriber.
func New(opts ...Option) *Service {
	s := &Service{
		interval: DefaultInterval,
		now:      time.Now,
		subs:     make(map[int]func(time.Time)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn and returns its cancel function. fn is invoked
// synchronously once with the current time before Subscribe returns, so the
// caller never waits a full interval for its first reading. Every later tick
// delivers the same timestamp to all subscribers.
//
// The cancel function is idempotent; the last cancellation stops the ticker.
func (s *Service) Subscribe(fn func(time.Time)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	if len(s.subs) == 1 {
		s.startLocked()
	}
	s.mu.Unlock()

	fn(s.now())

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			if len(s.subs) == 0 {
				s.stopLocked()
			}
		})
	}
}

// Counts reports how many times the ticker has been started and stopped.
// Exposed so tests can assert the empty→non-empty bookkeeping exactly.
func (s *Service) Counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

// Running reports whether the ticker goroutine is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Service) startLocked() {
	s.starts++
	stop := make(chan struct{})
	s.stop = stop
	go s.run(stop)
}

func (s *Service) stopLocked() {
	if s.stop == nil {
		return
	}
	s.stops++
	close(s.stop)
	s.stop = nil
}

func (s *Service) run(stop chan struct{}) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.broadcast(s.now())
		}
	}
}

// broadcast snapshots the subscriber set under the lock, then invokes the
// callbacks outside it so a callback can cancel itself without deadlocking.
func (s *Service) broadcast(now time.Time) {
	s.mu.Lock()
	fns := make([]func(time.Time), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(now)
	}
}
