package middleware

import (
	"context"
	"net/http"
	"strings"

	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/observability"

	"github.com/gin-gonic/gin"
)

// PrincipalKey is the gin context key holding the authenticated principal.
const PrincipalKey = "principalID"

// Authentication methods, as recorded in metrics.
const (
	MethodAPIKey  = "api_key"
	MethodSession = "session"
)

// KeyVerifier resolves a raw API key to its owner.
type KeyVerifier interface {
	Verify(ctx context.Context, raw string) (string, bool)
}

// SessionResolver resolves the browser session carried by a request.
type SessionResolver interface {
	ResolveSession(ctx context.Context, req *http.Request) (string, bool)
}

// Authenticator decides which principal, if any, is making a request.
type Authenticator struct {
	keys       KeyVerifier
	sessions   SessionResolver
	ingestMode string
	metrics    *observability.Metrics
}

// NewAuthenticator creates an authenticator. ingestMode is one of
// config.AuthModeKeyOrSession or config.AuthModeSessionOnly and only affects
// RequireIngestAuth.
func NewAuthenticator(keys KeyVerifier, sessions SessionResolver, ingestMode string, metrics *observability.Metrics) *Authenticator {
	if ingestMode == "" {
		ingestMode = config.AuthModeKeyOrSession
	}
	return &Authenticator{keys: keys, sessions: sessions, ingestMode: ingestMode, metrics: metrics}
}

// Authenticate tries the bearer API key first when allowKeys is set, then
// the session. It returns the principal and the method that succeeded.
func (a *Authenticator) Authenticate(ctx context.Context, req *http.Request, allowKeys bool) (string, string, bool) {
	if allowKeys {
		if raw, ok := bearerToken(req); ok {
			principal, ok := a.keys.Verify(ctx, raw)
			a.metrics.Auth(ctx, MethodAPIKey, ok)
			if ok {
				return principal, MethodAPIKey, true
			}
		}
	}

	principal, ok := a.sessions.ResolveSession(ctx, req)
	a.metrics.Auth(ctx, MethodSession, ok)
	if ok {
		return principal, MethodSession, true
	}
	return "", "", false
}

// RequireSession rejects requests without a session with 401 and message.
func (a *Authenticator) RequireSession(message string) gin.HandlerFunc {
	return a.require(false, message)
}

// RequireIngestAuth guards the ingestion route according to the configured
// mode.
func (a *Authenticator) RequireIngestAuth(message string) gin.HandlerFunc {
	return a.require(a.ingestMode == config.AuthModeKeyOrSession, message)
}

func (a *Authenticator) require(allowKeys bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, method, ok := a.Authenticate(c.Request.Context(), c.Request, allowKeys)
		if !ok {
			c.Error(errors.NewUnauthorizedError(message))
			c.Abort()
			return
		}

		c.Set(PrincipalKey, principal)
		c.Set("authMethod", method)
		c.Next()
	}
}

// PrincipalID returns the principal set by the auth middleware.
func PrincipalID(c *gin.Context) string {
	return c.GetString(PrincipalKey)
}

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is matched exactly.
func bearerToken(req *http.Request) (string, bool) {
	header := req.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
