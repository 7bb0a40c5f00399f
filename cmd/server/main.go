package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"context-teleporter/backend/pkg/config"
	"context-teleporter/backend/pkg/di"
	"context-teleporter/backend/pkg/logger"
	"context-teleporter/backend/pkg/migrations"
	"context-teleporter/backend/pkg/observability"
	"context-teleporter/backend/pkg/redis"
	"context-teleporter/backend/pkg/router"
	"context-teleporter/backend/pkg/secrets"

	"github.com/spf13/pflag"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	configFile := pflag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		logger.GetGlobal().LogError(err, "Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	if err := run(cfg, log, *migrateOnly); err != nil {
		log.LogError(err, "Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting application", "env", cfg.Server.Env, "version", os.Getenv("APP_VERSION"))

	shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, cfg.Observability.TracingEnabled)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	secretStore, err := newSecretStore(cfg, log)
	if err != nil {
		return err
	}
	sessionSecret, err := secrets.Resolve(ctx, secretStore, "session_jwt_secret", cfg.Session.JWTSecret)
	if err != nil {
		return err
	}
	anonKey, err := secrets.Resolve(ctx, secretStore, "auth_anon_key", cfg.Session.AnonKey)
	if err != nil {
		return err
	}
	if sessionSecret == "" {
		log.Warn("No session secret configured; every browser session will be rejected")
	}

	sqlDB, err := config.OpenSQL(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate || migrateOnly {
		if err := migrations.Up(ctx, sqlDB); err != nil {
			return err
		}
		log.Info("Database migrations applied")
	}
	if migrateOnly {
		return nil
	}

	db, err := config.NewGorm(sqlDB, cfg)
	if err != nil {
		return err
	}

	opts := di.Options{SessionSecret: sessionSecret, AuthAnonKey: anonKey}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Ping(ctx); err != nil {
			log.Warn("Redis not reachable at startup", "error", err.Error())
		}
		opts.Redis = client
	}

	var metricsHandler http.Handler
	var meterProvider *sdkmetric.MeterProvider
	if cfg.Observability.MetricsEnabled {
		opts.Metrics, metricsHandler, meterProvider, err = observability.SetupPrometheusMetrics()
		if err != nil {
			return err
		}
		defer meterProvider.Shutdown(context.Background())
	}

	container, err := di.New(cfg, db, log, opts)
	if err != nil {
		return err
	}
	defer container.Close()

	r := router.New(container, metricsHandler)
	if err := r.SetupRoutes(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
	return nil
}

func newSecretStore(cfg *config.Config, log *logger.Logger) (secrets.Manager, error) {
	if !cfg.Vault.Enabled {
		return secrets.EnvManager{}, nil
	}
	return secrets.NewVaultManager(secrets.VaultConfig{
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		Namespace:   cfg.Vault.Namespace,
		SecretsPath: cfg.Vault.SecretsPath,
	}, log)
}
