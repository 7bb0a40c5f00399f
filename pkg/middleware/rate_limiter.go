package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// LimitStore decides whether one more request for key is allowed.
type LimitStore interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. IP, principal)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
}

func NewMemoryStore(options RateLimiterOptions) *MemoryStore {
	return &MemoryStore{
		options: options,
		clients: make(map[string]*client),
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string) (bool, error) {
	return s.getLimiter(key).Allow(), nil
}

func (s *MemoryStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.clients[key]
	if !exists {
		limiter := rate.NewLimiter(s.options.Limit, s.options.Burst)
		s.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops buckets idle for longer than the expiry, every minute, until
// ctx is done.
func (s *MemoryStore) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.clients {
		if now.Sub(v.lastSeen) > s.options.ExpiryDuration {
			delete(s.clients, k)
		}
	}
}

// WindowCounter is the subset of the Redis client the shared store needs.
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisStore is a fixed-window limiter shared by every instance. Each
// window admits Burst requests plus Limit per second of window length.
type RedisStore struct {
	counter WindowCounter
	window  time.Duration
	max     int64
	prefix  string
}

func NewRedisStore(counter WindowCounter, options RateLimiterOptions) *RedisStore {
	window := time.Second
	max := int64(float64(options.Limit)*window.Seconds()) + int64(options.Burst)
	if max < 1 {
		max = 1
	}
	return &RedisStore{counter: counter, window: window, max: max, prefix: "ratelimit:"}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	bucket := time.Now().Truncate(s.window).Unix()
	n, err := s.counter.IncrWindow(ctx, s.prefix+key+":"+strconv.FormatInt(bucket, 10), s.window)
	if err != nil {
		return false, err
	}
	return n <= s.max, nil
}

// RateLimiter implements rate limiting middleware for Gin
type RateLimiter struct {
	store   LimitStore
	options RateLimiterOptions
	logger  *logger.Logger
}

// NewRateLimiter creates a rate limiter backed by store.
func NewRateLimiter(logger *logger.Logger, store LimitStore, options RateLimiterOptions) *RateLimiter {
	if options.KeyFunc == nil {
		options.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}
	return &RateLimiter{store: store, options: options, logger: logger}
}

// Middleware returns a Gin middleware for rate limiting. A store error lets
// the request through.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)

		allowed, err := r.store.Allow(c.Request.Context(), key)
		if err != nil {
			r.logger.Warn("Rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			c.Error(errors.NewTooManyRequestsError("Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Next()
	}
}
