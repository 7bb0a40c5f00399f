package session

import (
	"context"
	"errors"
	"net/http"

	"context-teleporter/backend/pkg/logger"
)

// Resolver reads the principal from the session cookie of one request.
type Resolver struct {
	verifier *TokenVerifier
	cookie   string
	log      *logger.Logger
}

// NewResolver creates a resolver reading the access token from cookieName.
func NewResolver(verifier *TokenVerifier, cookieName string, log *logger.Logger) *Resolver {
	return &Resolver{verifier: verifier, cookie: cookieName, log: log}
}

// ResolveSession returns the principal of req's session. Any failure,
// including a missing secret, is reported as no session.
func (r *Resolver) ResolveSession(ctx context.Context, req *http.Request) (string, bool) {
	cookie, err := req.Cookie(r.cookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims, err := r.verifier.Verify(cookie.Value)
	if err != nil {
		if errors.Is(err, ErrNoSecret) {
			r.log.Error("Session secret missing, rejecting all sessions")
		} else {
			r.log.Debug("Session cookie rejected", "error", err.Error())
		}
		return "", false
	}
	return claims.Subject, true
}

// Valid reports whether req carries an access token that verifies now.
func (r *Resolver) Valid(req *http.Request) bool {
	_, ok := r.ResolveSession(req.Context(), req)
	return ok
}
