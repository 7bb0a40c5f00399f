package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Ingest auth modes. Exactly one is active per deployment.
const (
	AuthModeKeyOrSession = "key_or_session"
	AuthModeSessionOnly  = "session_only"
)

// Ingest write strategies.
const (
	WriteStrategyTransaction = "transaction"
	WriteStrategyCompensate  = "compensate"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		Env             string        `yaml:"env"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		StaticDir       string        `yaml:"static_dir"`
	} `yaml:"server"`

	Database struct {
		URL          string        `yaml:"url"`
		Host         string        `yaml:"host"`
		Port         string        `yaml:"port"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		Name         string        `yaml:"name"`
		SSLMode      string        `yaml:"ssl_mode"`
		MaxConns     int           `yaml:"max_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnectRetry int           `yaml:"connect_retry"`
		RetryDelay   time.Duration `yaml:"retry_delay"`
		AutoMigrate  bool          `yaml:"auto_migrate"`
	} `yaml:"database"`

	// Session describes the external auth service whose cookies we accept.
	Session struct {
		JWTSecret         string        `yaml:"jwt_secret"`
		Audience          string        `yaml:"audience"`
		AccessCookie      string        `yaml:"access_cookie"`
		RefreshCookie     string        `yaml:"refresh_cookie"`
		AuthURL           string        `yaml:"auth_url"`
		AnonKey           string        `yaml:"anon_key"`
		RefreshTimeout    time.Duration `yaml:"refresh_timeout"`
		CookieSecure      bool          `yaml:"cookie_secure"`
		RefreshCookieTTL  time.Duration `yaml:"refresh_cookie_ttl"`
		LoginPath         string        `yaml:"login_path"`
		HomePath          string        `yaml:"home_path"`
		ProtectedPrefixes []string      `yaml:"protected_prefixes"`
	} `yaml:"session"`

	Ingest struct {
		AuthMode      string `yaml:"auth_mode"`
		WriteStrategy string `yaml:"write_strategy"`
		MaxBodySize   int64  `yaml:"max_body_size"`
	} `yaml:"ingest"`

	APIKeys struct {
		Prefix       string        `yaml:"prefix"`
		TouchTimeout time.Duration `yaml:"touch_timeout"`
	} `yaml:"api_keys"`

	Security struct {
		RateLimit      float64  `yaml:"rate_limit"`
		RateLimitBurst int      `yaml:"rate_limit_burst"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"security"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Observability struct {
		ServiceName    string `yaml:"service_name"`
		TracingEnabled bool   `yaml:"tracing_enabled"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
	} `yaml:"observability"`

	OpenAPI struct {
		ValidateRequests bool `yaml:"validate_requests"`
	} `yaml:"openapi"`

	Vault struct {
		Enabled     bool   `yaml:"enabled"`
		Address     string `yaml:"address"`
		Token       string `yaml:"token"`
		Namespace   string `yaml:"namespace"`
		SecretsPath string `yaml:"secrets_path"`
	} `yaml:"vault"`
}

// Load builds a Config: defaults, then the YAML file (if any), then
// environment variables. envFile defaults to ".env" and may be absent.
func Load(envFile, configFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Defaults()

	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns a Config populated with development defaults.
func Defaults() *Config {
	cfg := &Config{}

	cfg.Server.Port = "8081"
	cfg.Server.Env = "development"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Name = "context_teleporter"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 20
	cfg.Database.MaxIdleConns = 10
	cfg.Database.ConnectRetry = 5
	cfg.Database.RetryDelay = 5 * time.Second

	cfg.Session.Audience = "authenticated"
	cfg.Session.AccessCookie = "sb-access-token"
	cfg.Session.RefreshCookie = "sb-refresh-token"
	cfg.Session.RefreshTimeout = 5 * time.Second
	cfg.Session.RefreshCookieTTL = 30 * 24 * time.Hour
	cfg.Session.LoginPath = "/login"
	cfg.Session.HomePath = "/dashboard"
	cfg.Session.ProtectedPrefixes = []string{"/dashboard", "/conversations", "/settings"}

	cfg.Ingest.AuthMode = AuthModeKeyOrSession
	cfg.Ingest.WriteStrategy = WriteStrategyTransaction
	cfg.Ingest.MaxBodySize = 10 << 20

	cfg.APIKeys.Prefix = "lct_"
	cfg.APIKeys.TouchTimeout = 5 * time.Second

	cfg.Security.RateLimit = 5
	cfg.Security.RateLimitBurst = 10
	cfg.Security.AllowedOrigins = []string{"*"}

	cfg.Redis.Addr = "localhost:6379"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Observability.ServiceName = "context-teleporter"
	cfg.Observability.MetricsEnabled = true

	cfg.Vault.SecretsPath = "context-teleporter"

	return cfg
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvString("PORT", c.Server.Port)
	c.Server.Env = getEnvString("APP_ENV", c.Server.Env)
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.StaticDir = getEnvString("STATIC_DIR", c.Server.StaticDir)

	c.Database.URL = getEnvString("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnvString("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvString("DB_PORT", c.Database.Port)
	c.Database.User = getEnvString("DB_USER", c.Database.User)
	c.Database.Password = getEnvString("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvString("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnvString("DB_SSL_MODE", c.Database.SSLMode)
	c.Database.MaxConns = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnectRetry = getEnvInt("DB_CONNECT_RETRY", c.Database.ConnectRetry)
	c.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", c.Database.RetryDelay)
	c.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Session.JWTSecret = getEnvString("SESSION_JWT_SECRET", c.Session.JWTSecret)
	c.Session.Audience = getEnvString("SESSION_AUDIENCE", c.Session.Audience)
	c.Session.AccessCookie = getEnvString("SESSION_ACCESS_COOKIE", c.Session.AccessCookie)
	c.Session.RefreshCookie = getEnvString("SESSION_REFRESH_COOKIE", c.Session.RefreshCookie)
	c.Session.AuthURL = getEnvString("AUTH_URL", c.Session.AuthURL)
	c.Session.AnonKey = getEnvString("AUTH_ANON_KEY", c.Session.AnonKey)
	c.Session.RefreshTimeout = getEnvDuration("SESSION_REFRESH_TIMEOUT", c.Session.RefreshTimeout)
	c.Session.CookieSecure = getEnvBool("SESSION_COOKIE_SECURE", c.Session.CookieSecure)
	c.Session.RefreshCookieTTL = getEnvDuration("SESSION_REFRESH_COOKIE_TTL", c.Session.RefreshCookieTTL)
	c.Session.ProtectedPrefixes = getEnvStringSlice("SESSION_PROTECTED_PREFIXES", c.Session.ProtectedPrefixes)

	c.Ingest.AuthMode = getEnvString("INGEST_AUTH_MODE", c.Ingest.AuthMode)
	c.Ingest.WriteStrategy = getEnvString("INGEST_WRITE_STRATEGY", c.Ingest.WriteStrategy)
	c.Ingest.MaxBodySize = getEnvInt64("INGEST_MAX_BODY_SIZE", c.Ingest.MaxBodySize)

	c.APIKeys.Prefix = getEnvString("API_KEY_PREFIX", c.APIKeys.Prefix)
	c.APIKeys.TouchTimeout = getEnvDuration("API_KEY_TOUCH_TIMEOUT", c.APIKeys.TouchTimeout)

	c.Security.RateLimit = getEnvFloat("RATE_LIMIT", c.Security.RateLimit)
	c.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.Security.RateLimitBurst)
	c.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", c.Security.AllowedOrigins)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnvString("REDIS_URL", c.Redis.Addr)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOG_FORMAT", c.Logging.Format)

	c.Observability.ServiceName = getEnvString("OTEL_SERVICE_NAME", c.Observability.ServiceName)
	c.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", c.Observability.TracingEnabled)
	c.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.Observability.MetricsEnabled)

	c.OpenAPI.ValidateRequests = getEnvBool("OPENAPI_VALIDATE_REQUESTS", c.OpenAPI.ValidateRequests)

	c.Vault.Enabled = getEnvBool("VAULT_ENABLED", c.Vault.Enabled)
	c.Vault.Address = getEnvString("VAULT_ADDR", c.Vault.Address)
	c.Vault.Token = getEnvString("VAULT_TOKEN", c.Vault.Token)
	c.Vault.Namespace = getEnvString("VAULT_NAMESPACE", c.Vault.Namespace)
	c.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", c.Vault.SecretsPath)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Ingest.AuthMode {
	case AuthModeKeyOrSession, AuthModeSessionOnly:
	default:
		return fmt.Errorf("invalid INGEST_AUTH_MODE %q: want %q or %q",
			c.Ingest.AuthMode, AuthModeKeyOrSession, AuthModeSessionOnly)
	}

	switch c.Ingest.WriteStrategy {
	case WriteStrategyTransaction, WriteStrategyCompensate:
	default:
		return fmt.Errorf("invalid INGEST_WRITE_STRATEGY %q: want %q or %q",
			c.Ingest.WriteStrategy, WriteStrategyTransaction, WriteStrategyCompensate)
	}

	if c.APIKeys.Prefix == "" {
		return fmt.Errorf("API_KEY_PREFIX must not be empty")
	}
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// DSN returns the Postgres connection string, preferring DATABASE_URL.
func (c *Config) DSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
