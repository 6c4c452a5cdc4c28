package auth

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Event names what changed in the authentication state.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives auth state changes. session is nil for EventSignedOut.
type Listener func(event Event, session *Session)

// ErrNoSession is returned by Refresh when nobody is signed in.
var ErrNoSession = errors.New("auth: no active session")

// Manager holds the one active session of this process and tells listeners
// when it changes.
//
// Listeners run synchronously on the goroutine that caused the change, after
// the manager's lock is released, so a listener may call back into the
// manager.
type Manager struct {
	tokens *TokenService
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	session   *Session
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a Manager that re-issues tokens with the given lifetime.
func NewManager(tokens *TokenService, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		tokens:    tokens,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// SignIn validates token and makes it the active session.
func (m *Manager) SignIn(ctx context.Context, token string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := m.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.logger.Info("signed in", slog.String("subject", s.Subject.String()))
	m.emit(EventSignedIn, s)
	return s, nil
}

// SignOut drops the active session. Signing out twice is harmless, but
// listeners hear about it every time.
func (m *Manager) SignOut() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	m.logger.Info("signed out")
	m.emit(EventSignedOut, nil)
}

// Refresh re-issues the active session's token with a fresh lifetime.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := m.CurrentSession(ctx)
	if !ok {
		return nil, ErrNoSession
	}

	token, err := m.tokens.Issue(current.Subject, current.User, m.ttl)
	if err != nil {
		return nil, err
	}
	s, err := m.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	m.logger.Debug("token refreshed", slog.String("subject", s.Subject.String()))
	m.emit(EventTokenRefreshed, s)
	return s, nil
}

// CurrentSession returns the active session. An expired session counts as
// absent.
func (m *Manager) CurrentSession(_ context.Context) (*Session, bool) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil || s.Expired(m.now()) {
		return nil, false
	}
	return s, true
}

// OnAuthStateChange registers fn and returns a function that removes it.
func (m *Manager) OnAuthStateChange(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// emit calls listeners in registration order.
func (m *Manager) emit(event Event, s *Session) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = m.listeners[id]
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(event, s)
	}
}
