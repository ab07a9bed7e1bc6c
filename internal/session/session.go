// Package session models the authenticated caller gating verification.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Session is an authenticated caller.
type Session struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether s has an expiry that is not after now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Provider reports the session that applies to ctx, if any.
type Provider interface {
	Current(ctx context.Context) (Session, bool)
}

// Change describes a session transition. A nil side means no session.
type Change struct {
	Previous *Session
	Current  *Session
}

// Listener is called after every session change.
type Listener func(Change)

// Subscription is the registration token returned by Store.Subscribe.
type Subscription struct {
	store *Store
	id    uint64
	once  sync.Once
}

// Unsubscribe stops delivery to the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.listeners, s.id)
		s.store.mu.Unlock()
	})
}

// Store is a process-wide observable session value.
type Store struct {
	clock clock.Clock

	mu        sync.Mutex
	current   *Session
	nextID    uint64
	listeners map[uint64]Listener
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{clock: clk, listeners: make(map[uint64]Listener)}
}

// Current returns the stored session unless it has expired.
func (s *Store) Current(context.Context) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Expired(s.clock.Now()) {
		return Session{}, false
	}
	return *s.current, true
}

// Set replaces the current session and notifies listeners.
func (s *Store) Set(sess Session) {
	s.swap(&sess)
}

// Clear removes the current session and notifies listeners.
func (s *Store) Clear() {
	s.swap(nil)
}

func (s *Store) swap(next *Session) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if prev == nil && next == nil {
		return
	}
	ch := Change{Previous: prev, Current: next}
	for _, l := range listeners {
		l(ch)
	}
}

// Subscribe registers fn for session changes until the returned
// subscription is released.
func (s *Store) Subscribe(fn Listener) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return &Subscription{store: s, id: s.nextID}
}

type ctxKey struct{}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached to ctx.
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(Session)
	return sess, ok
}

// RequestProvider reads the session attached to each request context.
type RequestProvider struct {
	Clock clock.Clock
}

func (p RequestProvider) Current(ctx context.Context) (Session, bool) {
	sess, ok := FromContext(ctx)
	if !ok {
		return Session{}, false
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	if sess.Expired(clk.Now()) {
		return Session{}, false
	}
	return sess, true
}
