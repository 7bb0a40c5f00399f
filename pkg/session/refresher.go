package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/resilience"

	"github.com/hashicorp/go-cleanhttp"
)

// ErrRefreshRejected means the auth service refused the refresh token.
var ErrRefreshRejected = errors.New("refresh token rejected")

// TokenPair is the auth service's answer to a refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresher exchanges refresh tokens at the auth service.
type Refresher struct {
	client  *http.Client
	authURL string
	anonKey string
	breaker *resilience.CircuitBreaker
	log     *logger.Logger
}

// NewRefresher creates a refresher for the auth service at authURL.
func NewRefresher(authURL, anonKey string, timeout time.Duration, log *logger.Logger) *Refresher {
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout

	return &Refresher{
		client:  client,
		authURL: strings.TrimRight(authURL, "/"),
		anonKey: anonKey,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultConfig("auth-refresh"), log),
		log:     log,
	}
}

// Enabled reports whether an auth service is configured.
func (r *Refresher) Enabled() bool {
	return r != nil && r.authURL != ""
}

// Breaker exposes the circuit breaker guarding the auth service.
func (r *Refresher) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

// Refresh exchanges refreshToken for a new token pair. Rejections are not
// counted against the circuit breaker; transport errors and 5xx are.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !r.Enabled() {
		return nil, errors.New("auth service not configured")
	}

	var pair *TokenPair
	var rejected error
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		p, err := r.exchange(ctx, refreshToken)
		if errors.Is(err, ErrRefreshRejected) {
			rejected = err
			return nil
		}
		pair = p
		return err
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}
	return pair, nil
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.authURL+"/token?grant_type=refresh_token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.anonKey != "" {
		req.Header.Set("apikey", r.anonKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("auth service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pair); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRefreshRejected)
	}
	return &pair, nil
}
