package di

import (
	"context"
	"fmt"

	"context-teleporter/backend/internal/repository"
	"context-teleporter/backend/internal/service"
	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/health"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/middleware"
	"context-teleporter/backend/pkg/observability"
	"context-teleporter/backend/pkg/redis"
	"context-teleporter/backend/pkg/resilience"
	"context-teleporter/backend/pkg/session"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *logger.Logger
	Metrics *observability.Metrics
	Redis   *redis.Client

	ConversationRepository repository.ConversationRepository
	APIKeyRepository       repository.APIKeyRepository

	IngestService       *service.IngestService
	ConversationService *service.ConversationService
	APIKeyService       *service.APIKeyService

	Sessions      *session.Manager
	Authenticator *middleware.Authenticator
	Health        *health.Checker
}

// Options carries dependencies resolved before the container is built.
type Options struct {
	// SessionSecret verifies access tokens; empty rejects every session.
	SessionSecret string
	// AuthAnonKey is sent to the auth service on refresh.
	AuthAnonKey string
	Metrics     *observability.Metrics
	// Redis is nil when the shared store is disabled.
	Redis *redis.Client
	// SessionResolver replaces the cookie resolver, for tests.
	SessionResolver middleware.SessionResolver
}

// New creates a new dependency injection container
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger, opts Options) (*Container, error) {
	if cfg == nil || db == nil || log == nil {
		return nil, fmt.Errorf("config, database and logger are required")
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewNoopMetrics()
	}

	conversations := repository.NewGormConversationRepository(db)
	apiKeys := repository.NewGormAPIKeyRepository(db)

	ingestService := service.NewIngestService(conversations, cfg.Ingest.WriteStrategy, log, metrics)
	conversationService := service.NewConversationService(conversations)
	apiKeyService := service.NewAPIKeyService(apiKeys, cfg.APIKeys.Prefix, cfg.APIKeys.TouchTimeout, log, metrics)

	verifier := session.NewTokenVerifier(opts.SessionSecret, cfg.Session.Audience)
	resolver := session.NewResolver(verifier, cfg.Session.AccessCookie, log)
	var refresher *session.Refresher
	if cfg.Session.AuthURL != "" {
		refresher = session.NewRefresher(cfg.Session.AuthURL, opts.AuthAnonKey, cfg.Session.RefreshTimeout, log)
	}
	sessions := session.NewManager(resolver, refresher, session.Cookies{
		Access:     cfg.Session.AccessCookie,
		Refresh:    cfg.Session.RefreshCookie,
		Secure:     cfg.Session.CookieSecure,
		RefreshTTL: cfg.Session.RefreshCookieTTL,
	}, log)

	var sessionResolver middleware.SessionResolver = resolver
	if opts.SessionResolver != nil {
		sessionResolver = opts.SessionResolver
	}
	authenticator := middleware.NewAuthenticator(apiKeyService, sessionResolver, cfg.Ingest.AuthMode, metrics)

	checker := health.NewChecker(log, 0)
	checker.RegisterPing("database", true, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	if opts.Redis != nil {
		checker.RegisterPing("redis", false, opts.Redis.Ping)
	}
	if refresher != nil {
		checker.RegisterCheck("auth_refresh", false, breakerCheck(refresher.Breaker()))
	}

	return &Container{
		Config:                 cfg,
		DB:                     db,
		Logger:                 log,
		Metrics:                metrics,
		Redis:                  opts.Redis,
		ConversationRepository: conversations,
		APIKeyRepository:       apiKeys,
		IngestService:          ingestService,
		ConversationService:    conversationService,
		APIKeyService:          apiKeyService,
		Sessions:               sessions,
		Authenticator:          authenticator,
		Health:                 checker,
	}, nil
}

func breakerCheck(cb *resilience.CircuitBreaker) health.Check {
	return func(context.Context) (health.Status, string, error) {
		stats := cb.Stats()
		if stats.State == resilience.StateClosed {
			return health.StatusUp, "auth service calls succeeding", nil
		}
		return health.StatusDegraded, fmt.Sprintf("circuit %s after %d failures", stats.State, stats.Failures), nil
	}
}

// Close drains background work. The database and Redis are closed by their
// owners.
func (c *Container) Close() {
	c.APIKeyService.Wait()
}
