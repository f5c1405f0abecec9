package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "GUILDDESK"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	BaseURL  string `mapstructure:"base_url"` // Public origin of the console, used for OAuth redirects
}

// PostgresConfig holds persistent-store configurations.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"` // Should primarily come from ENV
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// OAuthConfig holds identity-provider (Discord) OAuth configurations.
type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id"`     // Should primarily come from ENV
	ClientSecret string   `mapstructure:"client_secret"` // Should primarily come from ENV
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// SessionConfig holds session lifecycle configurations.
type SessionConfig struct {
	SigningKey            string `mapstructure:"signing_key"` // Should primarily come from ENV
	CookieName            string `mapstructure:"cookie_name"`
	LifetimeHours         int    `mapstructure:"lifetime_hours"`          // Absolute session lifetime (default 168h = 7d)
	RefreshBufferSeconds  int    `mapstructure:"refresh_buffer_seconds"`  // Refresh OAuth tokens this close to expiry
	SweepIntervalSeconds  int    `mapstructure:"sweep_interval_seconds"`  // Expired-session sweep cadence
	SecureCookies         bool   `mapstructure:"secure_cookies"`          // Set Secure on cookies (off for local dev)
	CSRFCookieName        string `mapstructure:"csrf_cookie_name"`
	CSRFHeaderName        string `mapstructure:"csrf_header_name"`
	CSRFTokenExpirySecond int    `mapstructure:"csrf_token_expiry_seconds"` // Default 3600
}

// CacheConfig holds cache tuning configurations.
type CacheConfig struct {
	EntityTTLSeconds int `mapstructure:"entity_ttl_seconds"` // Base TTL for cached entities (jittered per entry)
	LocalMaxEntries  int `mapstructure:"local_max_entries"`  // Bound for the in-process fallback cache
	LocalTTLSeconds  int `mapstructure:"local_ttl_seconds"`
}

// RateLimitTier configures one fixed-window tier.
type RateLimitTier struct {
	WindowMs    int `mapstructure:"window_ms"`
	MaxRequests int `mapstructure:"max_requests"`
}

// RateLimitConfig holds the tier table keyed by tier name (e.g. "api", "auth").
type RateLimitConfig struct {
	Tiers map[string]RateLimitTier `mapstructure:"tiers"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Session   SessionConfig   `mapstructure:"session"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	App       AppConfig       `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config *Config
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	cfg := &Config{}
	v := viper.New()

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.service_name", "guilddesk-service")
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("session.cookie_name", "guilddesk_session")
	v.SetDefault("session.lifetime_hours", 168)
	v.SetDefault("session.refresh_buffer_seconds", 300)
	v.SetDefault("session.sweep_interval_seconds", 3600)
	v.SetDefault("session.csrf_cookie_name", "guilddesk_csrf")
	v.SetDefault("session.csrf_header_name", "X-CSRF-Token")
	v.SetDefault("session.csrf_token_expiry_seconds", 3600)
	v.SetDefault("cache.entity_ttl_seconds", 300)
	v.SetDefault("cache.local_max_entries", 1000)
	v.SetDefault("cache.local_ttl_seconds", 60)

	// Configure Viper to read from YAML file
	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "/app/config"))
	v.AddConfigPath(".") // Also look in current directory for local dev

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., server.http_port becomes SERVER_HTTP_PORT

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		config: cfg,
		logger: logger,
	}

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
				} else {
					newCfg := &Config{}
					if err := v.Unmarshal(newCfg); err != nil {
						p.logger.Error("Failed to unmarshal re-read config on SIGHUP", zap.Error(err))
					} else {
						p.config = newCfg
						p.logger.Info("Configuration reloaded successfully via SIGHUP")
					}
				}
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	// Watch for config file changes (useful for local dev)
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			p.logger.Error("Failed to unmarshal config on file change event", zap.Error(err))
		} else {
			p.config = newCfg
			p.logger.Info("Configuration reloaded successfully via file change event")
		}
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// NewStaticProvider wraps an already-built Config. Intended for tests.
func NewStaticProvider(cfg *Config) Provider {
	return &staticProvider{config: cfg}
}

type staticProvider struct {
	config *Config
}

func (p *staticProvider) Get() *Config {
	return p.config
}
