package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/studysync/internal/apperror"
	"github.com/sakif/studysync/internal/auth"
	"github.com/sakif/studysync/internal/model"
)

// Sessions is the part of *auth.Manager the session endpoints use.
type Sessions interface {
	SignIn(ctx context.Context, token string) (*auth.Session, error)
	SignOut()
	Refresh(ctx context.Context) (*auth.Session, error)
}

// SessionRequest is the sign-in body.
type SessionRequest struct {
	Token string `json:"token"`
}

// SessionResponse describes the active session. Token is only set when the
// server minted a new one (refresh).
type SessionResponse struct {
	Subject   model.SubjectID `json:"subject"`
	User      *model.User     `json:"user"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Token     string          `json:"token,omitempty"`
}

// SessionHandler serves /api/session.
//
// Signing in or out fires the auth state listeners synchronously, so by the
// time POST /api/session answers, the group collection has been fetched for
// the new user.
type SessionHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions Sessions, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// HandleSignIn makes the posted token the active session.
//
// HTTP: POST /api/session
// REQUEST BODY: {"token": "<jwt>"}
func (h *SessionHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, apperror.ValidationFailed("token", "token is required"))
		return
	}

	s, err := h.sessions.SignIn(r.Context(), token)
	if err != nil {
		h.logger.Warn("sign-in rejected", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthenticated("invalid or expired session token"))
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Subject: s.Subject, User: s.User, ExpiresAt: s.ExpiresAt})
}

// HandleSignOut ends the active session.
//
// HTTP: DELETE /api/session
func (h *SessionHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh re-issues the active session's token.
//
// HTTP: POST /api/session/refresh
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Refresh(r.Context())
	if errors.Is(err, auth.ErrNoSession) {
		writeError(w, apperror.Unauthenticated(""))
		return
	}
	if err != nil {
		h.logger.Error("token refresh failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Subject:   s.Subject,
		User:      s.User,
		ExpiresAt: s.ExpiresAt,
		Token:     s.Token,
	})
}
