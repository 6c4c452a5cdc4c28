// Package identity resolves "who is acting" for the sync core.
//
// The backend keys ownership and membership by the authentication subject,
// while everything shown on screen is keyed by the profile id. The Resolver
// keeps the current subject cached from auth state changes so mutations do
// not have to ask the auth layer every time, and falls back to asking when
// the cache is empty (for example right after start-up).
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sakif/studysync/internal/apperror"
	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/model"
)

// SessionSource is the part of the auth collaborator the Resolver uses.
// *auth.Manager satisfies it.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*auth.Session, bool)
	OnAuthStateChange(fn auth.Listener) (unsubscribe func())
}

// ChangeFunc is told when the signed-in state flips. subject is empty after
// sign-out.
type ChangeFunc func(ctx context.Context, subject model.SubjectID, user *model.User)

// Resolver caches the authentication subject of the signed-in user.
type Resolver struct {
	sessions SessionSource
	logger   *slog.Logger

	mu       sync.Mutex
	subject  model.SubjectID
	user     *model.User
	onChange []ChangeFunc

	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Resolver, seeds it from the current session and subscribes to
// auth state changes.
func New(ctx context.Context, sessions SessionSource, logger *slog.Logger) *Resolver {
	r := &Resolver{sessions: sessions, logger: logger}
	if s, ok := sessions.CurrentSession(ctx); ok {
		r.subject = s.Subject
		r.user = userOf(s)
	}
	r.unsubscribe = sessions.OnAuthStateChange(r.handle)
	return r
}

// handle applies an auth event. Any event carrying a session sets the cache,
// any event without one clears it.
func (r *Resolver) handle(event auth.Event, s *auth.Session) {
	r.mu.Lock()
	wasSignedIn := !r.subject.IsZero()
	prev := r.subject
	if s != nil && !s.Subject.IsZero() {
		r.subject = s.Subject
		r.user = userOf(s)
	} else {
		r.subject = ""
		r.user = nil
	}
	subject, user := r.subject, r.user
	listeners := append([]ChangeFunc(nil), r.onChange...)
	r.mu.Unlock()

	r.logger.Debug("auth state changed",
		slog.String("event", string(event)),
		slog.Bool("authenticated", !subject.IsZero()),
	)

	// A token refresh for the same subject is not a change anyone reacts to.
	if wasSignedIn && prev == subject {
		return
	}
	if !wasSignedIn && subject.IsZero() {
		return
	}
	for _, fn := range listeners {
		fn(context.Background(), subject, user)
	}
}

// OnChange registers fn to run on sign-in, sign-out and subject switches.
func (r *Resolver) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// SubjectID returns the authentication subject of the signed-in user: the
// cached value when there is one, otherwise whatever the session says now.
func (r *Resolver) SubjectID(ctx context.Context) (model.SubjectID, error) {
	r.mu.Lock()
	subject := r.subject
	r.mu.Unlock()
	if !subject.IsZero() {
		return subject, nil
	}

	if s, ok := r.sessions.CurrentSession(ctx); ok && !s.Subject.IsZero() {
		r.mu.Lock()
		r.subject = s.Subject
		if r.user == nil {
			r.user = userOf(s)
		}
		r.mu.Unlock()
		return s.Subject, nil
	}

	return "", apperror.Unauthenticated("user session not found")
}

// User returns the signed-in user's profile, or nil.
func (r *Resolver) User() *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.user
}

// Authenticated reports whether a subject is cached.
func (r *Resolver) Authenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.subject.IsZero()
}

// userOf returns the session's profile. A session whose token carried no
// profile still has a user, just one with every attribute unknown.
func userOf(s *auth.Session) *model.User {
	if s.User != nil {
		return s.User
	}
	return &model.User{}
}

// Close stops listening to auth state changes. Safe to call more than once.
func (r *Resolver) Close() {
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
	})
}
