package session

import (
	"errors"
	"net/http"

	"context-teleporter/backend/pkg/logger"
)

// Manager keeps a browser session alive: when the access token is missing
// or no longer valid and a refresh token is present, it exchanges the
// refresh token and installs the new cookies.
type Manager struct {
	resolver  *Resolver
	refresher *Refresher
	cookies   Cookies
	log       *logger.Logger
}

// NewManager creates a session manager. refresher may be nil, in which case
// sessions are never refreshed.
func NewManager(resolver *Resolver, refresher *Refresher, cookies Cookies, log *logger.Logger) *Manager {
	return &Manager{resolver: resolver, refresher: refresher, cookies: cookies, log: log}
}

// Resolver returns the resolver used to read sessions.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Refresh makes sure req carries a valid access token if one can be
// obtained. It reports whether req has a valid session afterwards. A failed
// refresh is treated as no session.
func (m *Manager) Refresh(w http.ResponseWriter, req *http.Request) bool {
	if m.resolver.Valid(req) {
		return true
	}
	if !m.refresher.Enabled() {
		return false
	}

	refreshToken := m.cookies.RefreshToken(req)
	if refreshToken == "" {
		return false
	}

	pair, err := m.refresher.Refresh(req.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			m.cookies.Clear(w)
			m.log.Debug("Refresh token rejected", "error", err.Error())
		} else {
			m.log.Warn("Session refresh failed", "error", err.Error())
		}
		return false
	}

	m.cookies.Apply(w, req, pair)
	return m.resolver.Valid(req)
}
