package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/resilience"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "super-secret-jwt-token-with-at-least-32-characters"
	testAudience = "authenticated"
	principal    = "5f0c6f0e-7a4e-4a8f-9a55-3c1f5d7b2b11"
)

var testCookies = Cookies{
	Access:     "sb-access-token",
	Refresh:    "sb-refresh-token",
	RefreshTTL: time.Hour,
}

func TestTokenVerifier(t *testing.T) {
	v := NewTokenVerifier(testSecret, testAudience)

	token, err := v.Issue(principal, time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, principal, claims.Subject)

	t.Run("expired", func(t *testing.T) {
		expired, err := v.Issue(principal, -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(expired)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenVerifier("another-secret", testAudience).Issue(principal, time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other, err := NewTokenVerifier(testSecret, "anon").Issue(principal, time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := v.Issue("", time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": principal,
			"aud": testAudience,
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"sub": principal,
			"aud": testAudience,
			"exp": time.Now().Add(time.Minute).Unix(),
		}).SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no secret", func(t *testing.T) {
		_, err := NewTokenVerifier("", testAudience).Verify(token)
		assert.ErrorIs(t, err, ErrNoSecret)
	})
}

func requestWithCookies(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestResolver(t *testing.T) {
	v := NewTokenVerifier(testSecret, testAudience)
	r := NewResolver(v, testCookies.Access, logger.Discard())
	token, err := v.Issue(principal, time.Minute)
	require.NoError(t, err)

	got, ok := r.ResolveSession(context.Background(),
		requestWithCookies(&http.Cookie{Name: testCookies.Access, Value: token}))
	assert.True(t, ok)
	assert.Equal(t, principal, got)

	for name, req := range map[string]*http.Request{
		"no cookie":  requestWithCookies(),
		"empty":      requestWithCookies(&http.Cookie{Name: testCookies.Access, Value: ""}),
		"garbage":    requestWithCookies(&http.Cookie{Name: testCookies.Access, Value: "not.a.jwt"}),
		"wrong name": requestWithCookies(&http.Cookie{Name: "session", Value: token}),
		"only bearer": func() *http.Request {
			r := requestWithCookies()
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}(),
	} {
		got, ok := r.ResolveSession(context.Background(), req)
		assert.False(t, ok, name)
		assert.Empty(t, got, name)
	}

	unconfigured := NewResolver(NewTokenVerifier("", testAudience), testCookies.Access, logger.Discard())
	_, ok = unconfigured.ResolveSession(context.Background(),
		requestWithCookies(&http.Cookie{Name: testCookies.Access, Value: token}))
	assert.False(t, ok)
}

type authServer struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newAuthServer(t *testing.T, v *TokenVerifier) *authServer {
	t.Helper()
	s := &authServer{}
	s.status.Store(http.StatusOK)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		status := int(s.status.Load())
		if status != http.StatusOK || body["refresh_token"] != "good-refresh" {
			if status == http.StatusOK {
				status = http.StatusBadRequest
			}
			w.WriteHeader(status)
			return
		}

		access, err := v.Issue(principal, time.Hour)
		assert.NoError(t, err)
		_ = json.NewEncoder(w).Encode(TokenPair{AccessToken: access, RefreshToken: "next-refresh", ExpiresIn: 3600})
	}))
	t.Cleanup(s.Close)
	return s
}

func TestRefresher(t *testing.T) {
	v := NewTokenVerifier(testSecret, testAudience)
	srv := newAuthServer(t, v)
	r := NewRefresher(srv.URL+"/", "anon-key", time.Second, logger.Discard())

	pair, err := r.Refresh(context.Background(), "good-refresh")
	require.NoError(t, err)
	assert.Equal(t, "next-refresh", pair.RefreshToken)
	claims, err := v.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, principal, claims.Subject)

	_, err = r.Refresh(context.Background(), "revoked")
	assert.ErrorIs(t, err, ErrRefreshRejected)
	assert.Equal(t, resilience.StateClosed, r.Breaker().State(), "rejections do not trip the breaker")
}

func TestRefresher_BreakerOpensOnServerErrors(t *testing.T) {
	v := NewTokenVerifier(testSecret, testAudience)
	srv := newAuthServer(t, v)
	srv.status.Store(http.StatusBadGateway)
	r := NewRefresher(srv.URL, "anon-key", time.Second, logger.Discard())

	for i := 0; i < int(resilience.DefaultConfig("x").FailureThreshold); i++ {
		_, err := r.Refresh(context.Background(), "good-refresh")
		require.Error(t, err)
	}
	calls := srv.calls.Load()

	_, err := r.Refresh(context.Background(), "good-refresh")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, calls, srv.calls.Load())
}

func TestManager_Refresh(t *testing.T) {
	v := NewTokenVerifier(testSecret, testAudience)
	srv := newAuthServer(t, v)
	log := logger.Discard()
	m := NewManager(
		NewResolver(v, testCookies.Access, log),
		NewRefresher(srv.URL, "anon-key", time.Second, log),
		testCookies,
		log,
	)

	t.Run("valid session is left alone", func(t *testing.T) {
		token, err := v.Issue(principal, time.Minute)
		require.NoError(t, err)
		before := srv.calls.Load()

		w := httptest.NewRecorder()
		assert.True(t, m.Refresh(w, requestWithCookies(&http.Cookie{Name: testCookies.Access, Value: token})))
		assert.Equal(t, before, srv.calls.Load())
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		expired, err := v.Issue(principal, -time.Minute)
		require.NoError(t, err)
		req := requestWithCookies(
			&http.Cookie{Name: testCookies.Access, Value: expired},
			&http.Cookie{Name: testCookies.Refresh, Value: "good-refresh"},
			&http.Cookie{Name: "theme", Value: "dark"},
		)

		w := httptest.NewRecorder()
		require.True(t, m.Refresh(w, req))

		got, ok := m.Resolver().ResolveSession(context.Background(), req)
		assert.True(t, ok, "in-flight request sees the new token")
		assert.Equal(t, principal, got)

		refresh, err := req.Cookie(testCookies.Refresh)
		require.NoError(t, err)
		assert.Equal(t, "next-refresh", refresh.Value)
		theme, err := req.Cookie("theme")
		require.NoError(t, err)
		assert.Equal(t, "dark", theme.Value)

		names := map[string]bool{}
		for _, c := range w.Result().Cookies() {
			names[c.Name] = true
			assert.True(t, c.HttpOnly)
		}
		assert.True(t, names[testCookies.Access])
		assert.True(t, names[testCookies.Refresh])
	})

	t.Run("rejected refresh clears cookies", func(t *testing.T) {
		req := requestWithCookies(&http.Cookie{Name: testCookies.Refresh, Value: "revoked"})
		w := httptest.NewRecorder()
		assert.False(t, m.Refresh(w, req))

		header := strings.Join(w.Header().Values("Set-Cookie"), ";")
		assert.Contains(t, header, testCookies.Access+"=")
		assert.Contains(t, header, "Max-Age=0")
	})

	t.Run("no refresh cookie", func(t *testing.T) {
		before := srv.calls.Load()
		assert.False(t, m.Refresh(httptest.NewRecorder(), requestWithCookies()))
		assert.Equal(t, before, srv.calls.Load())
	})

	t.Run("no auth service", func(t *testing.T) {
		local := NewManager(NewResolver(v, testCookies.Access, log), nil, testCookies, log)
		req := requestWithCookies(&http.Cookie{Name: testCookies.Refresh, Value: "good-refresh"})
		assert.False(t, local.Refresh(httptest.NewRecorder(), req))
	})
}
