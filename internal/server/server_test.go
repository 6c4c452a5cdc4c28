package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/identity"
	"github.com/sakif/studysync/internal/metrics"
	"github.com/sakif/studysync/internal/model"
	"github.com/sakif/studysync/internal/repository/sqlstore"
	"github.com/sakif/studysync/internal/service"
)

type testApp struct {
	handler http.Handler
	tokens  *auth.TokenService
}

func newTestApp(t *testing.T, pinger Pinger) *testApp {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:", Provision: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if pinger == nil {
		pinger = db
	}

	tokens, err := auth.NewTokenService("server-test-secret-0123", auth.DefaultIssuer)
	require.NoError(t, err)
	manager := auth.NewManager(tokens, time.Hour, logger)
	resolver := identity.New(ctx, manager, logger)
	t.Cleanup(resolver.Close)

	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)

	coord := service.NewCoordinator(db, resolver, rec, logger)
	resolver.OnChange(coord.HandleAuthChange)

	srv, err := New(Config{Port: 0, AllowedOrigins: []string{"http://localhost:5173"}}, Deps{
		Groups:   coord,
		Sessions: manager,
		Store:    pinger,
		Metrics:  reg,
	}, logger)
	require.NoError(t, err)

	return &testApp{handler: srv.Handler(), tokens: tokens}
}

func (a *testApp) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) signIn(t *testing.T) {
	t.Helper()
	token, err := a.tokens.Issue("subject-1", &model.User{ID: "profile-1", Name: "Maya"}, time.Hour)
	require.NoError(t, err)
	rr := a.do(http.MethodPost, "/api/session", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestServer_Healthz(t *testing.T) {
	rr := newTestApp(t, nil).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestServer_HealthzStoreDown(t *testing.T) {
	rr := newTestApp(t, failingPinger{}).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_GroupRoutesNeedSession(t *testing.T) {
	app := newTestApp(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/groups"},
		{http.MethodPost, "/api/groups"},
		{http.MethodPatch, "/api/groups/g1"},
		{http.MethodPost, "/api/groups/g1/join"},
		{http.MethodPost, "/api/session/refresh"},
	} {
		rr := app.do(route.method, route.path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", route.method, route.path)
	}
}

func TestServer_GroupLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	app.signIn(t)

	rr := app.do(http.MethodPost, "/api/groups", `{"name":"Algo Club","tags":["a"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created model.StudyGroup
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))

	rr = app.do(http.MethodPatch, "/api/groups/"+created.ID, `{"description":"weekly"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = app.do(http.MethodGet, "/api/groups/"+created.ID+"/membership", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"isMember":false,"isOwner":true}`, rr.Body.String(),
		"no profile row, so the creator's membership does not resolve")

	rr = app.do(http.MethodDelete, "/api/groups/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = app.do(http.MethodGet, "/api/groups", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"groups":[],"loading":false,"error":null}`, rr.Body.String())

	rr = app.do(http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = app.do(http.MethodGet, "/api/groups", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestServer_Metrics(t *testing.T) {
	app := newTestApp(t, nil)
	app.signIn(t)

	rr := app.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `studysync_fetch_total{outcome="empty"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/groups", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
}
