package router

import (
	"context"
	"net/http"

	"context-teleporter/backend/internal/api"
	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/di"
	"context-teleporter/backend/pkg/errors"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config

	metrics http.Handler
}

// New creates a router with the shared middleware chain. metrics may be nil
// when Prometheus export is disabled.
func New(container *di.Container, metrics http.Handler) *Router {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(sessionRefresh(container))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
		metrics:   metrics,
	}
}

// SetupRoutes registers all application routes. ctx bounds background
// maintenance started for the routes.
func (r *Router) SetupRoutes(ctx context.Context) error {
	r.setupHealthRoutes()
	if r.metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.metrics))
	}

	apiGroup := r.Engine.Group("/api")
	apiGroup.Use(r.rateLimiter(ctx))
	if err := r.setupOpenAPI(apiGroup); err != nil {
		return err
	}

	auth := r.Container.Authenticator
	api.NewIngestController(r.Container.IngestService, r.Config.Ingest.MaxBodySize).RegisterRoutes(apiGroup, auth)
	api.NewConversationController(r.Container.ConversationService).RegisterRoutes(apiGroup, auth)
	api.NewKeysController(r.Container.APIKeyService).RegisterRoutes(apiGroup, auth)

	r.setupGateway()
	return nil
}

func (r *Router) rateLimiter(ctx context.Context) gin.HandlerFunc {
	opts := middleware.DefaultRateLimiterOptions()
	opts.Limit = rate.Limit(r.Config.Security.RateLimit)
	opts.Burst = r.Config.Security.RateLimitBurst

	var store middleware.LimitStore
	if r.Container.Redis != nil {
		store = middleware.NewRedisStore(r.Container.Redis, opts)
	} else {
		memory := middleware.NewMemoryStore(opts)
		go memory.Cleanup(ctx)
		store = memory
	}
	return middleware.NewRateLimiter(r.Logger, store, opts).Middleware()
}
