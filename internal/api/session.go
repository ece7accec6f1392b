package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session cookie handling.
var (
	// ErrSessionCookieNotFound is returned when the session cookie is absent from the request.
	ErrSessionCookieNotFound = errors.New("session cookie not found")
	// ErrSessionInvalid is returned when the session cookie value is not a valid UUID.
	ErrSessionInvalid = errors.New("session ID invalid")
)

const sessionCookieName = "sid"

// toucher is the session persistence capability the manager depends on.
// Satisfied by *session.Registry.
type toucher interface {
	Touch(ctx context.Context, id *uuid.UUID) (uuid.UUID, bool, error)
	IdleThreshold() time.Duration
}

// sessionManager handles session cookie operations. Every document and query
// endpoint resolves its session through ensure, which refreshes the server-side
// last-seen timestamp and slides the cookie expiry.
type sessionManager struct {
	registry toucher
	isDev    bool
	logger   *slog.Logger
}

// SessionID extracts the session ID from the sid cookie.
func (*sessionManager) SessionID(r *http.Request) (uuid.UUID, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return uuid.Nil, ErrSessionCookieNotFound
	}

	sessionID, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, ErrSessionInvalid
	}

	return sessionID, nil
}

// ensure resolves the request's session, minting a fresh one when the cookie
// is absent, malformed, or references a session that has already been swept.
// The sid cookie is (re)set on every call so the browser-side expiry slides
// together with the server-side idle threshold.
func (sm *sessionManager) ensure(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	var hint *uuid.UUID
	if id, ok := sessionIDFromContext(r.Context()); ok {
		hint = &id
	}

	sessionID, created, err := sm.registry.Touch(r.Context(), hint)
	if err != nil {
		return uuid.Nil, err
	}
	if created {
		sm.logger.Debug("session created", "session_id", sessionID)
	}

	sm.setSessionCookie(w, sessionID)
	return sessionID, nil
}

func (sm *sessionManager) setSessionCookie(w http.ResponseWriter, sessionID uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID.String(),
		Path:     "/",
		Secure:   !sm.isDev,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.registry.IdleThreshold() / time.Second),
	})
}
