package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/studysync/internal/apperror"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository"
	"github.com/sakif/studysync/internal/repository/sqlstore"
)

// =========================================================================
// TEST DOUBLES
// =========================================================================
//
// stubStore wraps a real store and lets a test replace any single call with
// a function. Every call is recorded as "op:relation" so tests can assert
// what did (or did not) reach the backend.

type stubStore struct {
	inner repository.Store

	selectFn func(ctx context.Context, relation string, q repository.Query) ([]repository.Row, error)
	insertFn func(ctx context.Context, relation string, row repository.Row) (repository.Row, error)
	updateFn func(ctx context.Context, relation string, patch repository.Row, filters []repository.Filter) (int64, error)
	deleteFn func(ctx context.Context, relation string, filters []repository.Filter) (int64, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubStore) record(op, relation string) {
	s.mu.Lock()
	s.calls = append(s.calls, op+":"+relation)
	s.mu.Unlock()
}

func (s *stubStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubStore) Select(ctx context.Context, relation string, q repository.Query) ([]repository.Row, error) {
	s.record("select", relation)
	if s.selectFn != nil {
		return s.selectFn(ctx, relation, q)
	}
	return s.inner.Select(ctx, relation, q)
}

func (s *stubStore) Insert(ctx context.Context, relation string, row repository.Row) (repository.Row, error) {
	s.record("insert", relation)
	if s.insertFn != nil {
		return s.insertFn(ctx, relation, row)
	}
	return s.inner.Insert(ctx, relation, row)
}

func (s *stubStore) Update(ctx context.Context, relation string, patch repository.Row, filters []repository.Filter) (int64, error) {
	s.record("update", relation)
	if s.updateFn != nil {
		return s.updateFn(ctx, relation, patch, filters)
	}
	return s.inner.Update(ctx, relation, patch, filters)
}

func (s *stubStore) Delete(ctx context.Context, relation string, filters []repository.Filter) (int64, error) {
	s.record("delete", relation)
	if s.deleteFn != nil {
		return s.deleteFn(ctx, relation, filters)
	}
	return s.inner.Delete(ctx, relation, filters)
}

// fakeIdentity is a fixed signed-in user, or nobody when user is nil.
type fakeIdentity struct {
	subject model.SubjectID
	user    *model.User
}

func (f *fakeIdentity) SubjectID(context.Context) (model.SubjectID, error) {
	if f.subject.IsZero() {
		return "", apperror.Unauthenticated("user session not found")
	}
	return f.subject, nil
}

func (f *fakeIdentity) User() *model.User { return f.user }

// =========================================================================
// FIXTURES
// =========================================================================

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	meSubject    model.SubjectID = "subject-me"
	meProfile    model.ProfileID = "profile-me"
	otherSubject model.SubjectID = "subject-other"
	otherProfile model.ProfileID = "profile-other"
)

func me() *model.User {
	return &model.User{ID: meProfile, Name: "Maya", Email: "maya@uni.edu", College: "Uni", Branch: "CS", Year: 2}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openStore opens an in-memory store. provision=false leaves every relation
// missing, which is how an unprovisioned backend looks.
func openStore(t *testing.T, provision bool, denied ...string) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), sqlstore.Config{
		Driver:    sqlstore.DriverSQLite,
		DSN:       ":memory:",
		Provision: provision,
		Denied:    denied,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type env struct {
	db    *sqlstore.DB
	store *stubStore
	ident *fakeIdentity
	c     *Coordinator
}

// newEnv builds a coordinator for "me" over a provisioned store that already
// holds my profile and another user's profile.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := openStore(t, true)
	seedProfile(t, db, meSubject, meProfile, "Maya")
	seedProfile(t, db, otherSubject, otherProfile, "Omar")
	return newEnvWith(t, db)
}

func newEnvWith(t *testing.T, inner repository.Store) *env {
	t.Helper()
	store := &stubStore{inner: inner}
	ident := &fakeIdentity{subject: meSubject, user: me()}
	c := NewCoordinator(store, ident, nil, discardLogger())
	c.now = func() time.Time { return testNow }

	e := &env{store: store, ident: ident, c: c}
	if db, ok := inner.(*sqlstore.DB); ok {
		e.db = db
	}
	return e
}

func seedProfile(t *testing.T, db repository.Store, subject model.SubjectID, id model.ProfileID, name string) {
	t.Helper()
	_, err := db.Insert(context.Background(), repository.RelationProfiles, repository.Row{
		"id":          id.String(),
		"user_id":     subject.String(),
		"name":        name,
		"email":       name + "@uni.edu",
		"college":     "Uni",
		"branch":      "CS",
		"year":        3,
		"is_verified": true,
	})
	require.NoError(t, err)
}

func seedGroup(t *testing.T, db repository.Store, id, name string, creator model.SubjectID, createdAt time.Time) {
	t.Helper()
	_, err := db.Insert(context.Background(), repository.RelationGroups, repository.Row{
		"id":          id,
		"name":        name,
		"subject":     "CS",
		"description": "d",
		"max_members": 5,
		"tags":        []string{"t"},
		"creator_id":  creator.String(),
		"created_at":  createdAt,
	})
	require.NoError(t, err)
}

func seedMember(t *testing.T, db repository.Store, groupID string, subject model.SubjectID, role string) {
	t.Helper()
	_, err := db.Insert(context.Background(), repository.RelationMemberships, repository.Row{
		"group_id": groupID,
		"user_id":  subject.String(),
		"role":     role,
	})
	require.NoError(t, err)
}

func countMembers(g model.StudyGroup, id model.ProfileID) int {
	n := 0
	for _, m := range g.Members {
		if m.ID == id {
			n++
		}
	}
	return n
}

func findGroup(t *testing.T, groups []model.StudyGroup, id string) model.StudyGroup {
	t.Helper()
	for _, g := range groups {
		if g.ID == id {
			return g
		}
	}
	t.Fatalf("group %q not in collection", id)
	return model.StudyGroup{}
}

func undefinedTable(relation string) error {
	return &repository.Error{
		Code:     repository.CodeUndefinedTable,
		Message:  `relation "` + relation + `" does not exist`,
		Relation: relation,
	}
}
