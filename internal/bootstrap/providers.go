package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/config"
	apphttp "gitlab.com/chatforge/api/guilddesk-service/internal/adapters/http"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/identity"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/localcache"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/logger"
	"gitlab.com/chatforge/api/guilddesk-service/internal/adapters/postgres"
	appredis "gitlab.com/chatforge/api/guilddesk-service/internal/adapters/redis"
	"gitlab.com/chatforge/api/guilddesk-service/internal/application"
	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
	"gitlab.com/chatforge/api/guilddesk-service/internal/repository"
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily
// for config initialization before the structured application logger exists.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return zapLogger, cleanup, nil
}

// App wires together everything Run needs: the transport, the data layer
// handles used by readiness checks, and the services driven by background
// loops.
type App struct {
	configProvider config.Provider
	logger         domain.Logger
	httpServeMux   *http.ServeMux
	httpServer     *http.Server
	router         http.Handler
	pgPool         *pgxpool.Pool
	cacheStore     domain.CacheStore
	sessionManager *application.SessionManager
}

// NewApp is the constructor for App, used by Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	router http.Handler,
	pgPool *pgxpool.Pool,
	cacheStore domain.CacheStore,
	sessionManager *application.SessionManager,
) (*App, func(), error) {
	app := &App{
		configProvider: cfgProvider,
		logger:         appLogger,
		httpServeMux:   mux,
		httpServer:     server,
		router:         router,
		pgPool:         pgPool,
		cacheStore:     cacheStore,
		sessionManager: sessionManager,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the top-level HTTP multiplexer that Run
// decorates with operational endpoints.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides the HTTP server configured for graceful
// shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// PgxPoolProvider provides the Postgres connection pool and its cleanup.
// Postgres is the source of truth, so an unreachable server is fatal.
func PgxPoolProvider(appCtx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*pgxpool.Pool, func(), error) {
	dsn := cfgProvider.Get().Postgres.DSN
	pool, err := pgxpool.New(appCtx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(appCtx); err != nil {
		pool.Close()
		appLogger.Error(appCtx, "Failed to connect to Postgres", "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	cleanup := func() {
		pool.Close()
		appLogger.Info(context.Background(), "Postgres pool closed")
	}
	appLogger.Info(appCtx, "Successfully connected to Postgres")
	return pool, cleanup, nil
}

// StoreProvider provides the document store and ensures its schema exists.
func StoreProvider(appCtx context.Context, pool *pgxpool.Pool, appLogger domain.Logger) (domain.Store, error) {
	store := postgres.NewStore(pool, appLogger)
	if err := store.EnsureSchema(appCtx); err != nil {
		return nil, err
	}
	return store, nil
}

// CacheStoreProvider provides the shared cache. A configured Redis address
// selects the Redis adapter; a connect failure is not fatal because every
// call-site degrades to no-cache. Without an address the bounded in-process
// cache backs single-instance deployments.
func CacheStoreProvider(appCtx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (domain.CacheStore, func(), error) {
	appCfg := cfgProvider.Get()

	var cacheStore domain.CacheStore
	if appCfg.Redis.Address != "" {
		cacheStore = appredis.NewCacheAdapter(&redis.Options{
			Addr:     appCfg.Redis.Address,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		}, appLogger)
		if err := cacheStore.Connect(appCtx); err != nil {
			appLogger.Warn(appCtx, "Redis unavailable at startup, continuing without cache", "error", err.Error())
		}
	} else {
		appLogger.Info(appCtx, "No Redis address configured, using in-process cache")
		cacheStore = localcache.NewStore(
			appCfg.Cache.LocalMaxEntries,
			time.Duration(appCfg.Cache.LocalTTLSeconds)*time.Second,
			appLogger,
		)
		if err := cacheStore.Connect(appCtx); err != nil {
			return nil, nil, err
		}
	}

	cleanup := func() {
		if err := cacheStore.Disconnect(); err != nil {
			appLogger.Warn(context.Background(), "Failed to disconnect cache", "error", err.Error())
		}
	}
	return cacheStore, cleanup, nil
}

func entityTTL(cfgProvider config.Provider) time.Duration {
	seconds := cfgProvider.Get().Cache.EntityTTLSeconds
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

// GuildRepositoryProvider provides the guild repository.
func GuildRepositoryProvider(cfgProvider config.Provider, store domain.Store, cache domain.CacheStore, appLogger domain.Logger) *repository.GuildRepository {
	return repository.NewGuildRepository(store, cache, appLogger, entityTTL(cfgProvider))
}

// UserRepositoryProvider provides the user repository.
func UserRepositoryProvider(cfgProvider config.Provider, store domain.Store, cache domain.CacheStore, appLogger domain.Logger) *repository.UserRepository {
	return repository.NewUserRepository(store, cache, appLogger, entityTTL(cfgProvider))
}

// MemberRepositoryProvider provides the member repository.
func MemberRepositoryProvider(cfgProvider config.Provider, store domain.Store, cache domain.CacheStore, appLogger domain.Logger) *repository.MemberRepository {
	return repository.NewMemberRepository(store, cache, appLogger, entityTTL(cfgProvider))
}

// SessionRepositoryProvider provides the session repository.
func SessionRepositoryProvider(cfgProvider config.Provider, store domain.Store, cache domain.CacheStore, appLogger domain.Logger) *repository.SessionRepository {
	return repository.NewSessionRepository(store, cache, appLogger, entityTTL(cfgProvider))
}

// IdentityProviderProvider provides the Discord-backed identity provider.
func IdentityProviderProvider(cfgProvider config.Provider, appLogger domain.Logger) domain.IdentityProvider {
	return identity.NewDiscordProvider(cfgProvider, appLogger)
}

// SessionManagerProvider provides the session manager.
func SessionManagerProvider(
	cfgProvider config.Provider,
	sessions *repository.SessionRepository,
	users *repository.UserRepository,
	idp domain.IdentityProvider,
	appLogger domain.Logger,
) *application.SessionManager {
	return application.NewSessionManager(cfgProvider, sessions, users, idp, appLogger)
}

// CSRFServiceProvider provides the CSRF token service.
func CSRFServiceProvider(cfgProvider config.Provider, appLogger domain.Logger) *application.CSRFService {
	return application.NewCSRFService(cfgProvider, appLogger)
}

// RateLimiterProvider provides the rate limiter.
func RateLimiterProvider(cfgProvider config.Provider, cache domain.CacheStore, appLogger domain.Logger) *application.RateLimiter {
	return application.NewRateLimiter(cfgProvider, cache, appLogger)
}

// AuthHandlerProvider provides the auth/session HTTP handler.
func AuthHandlerProvider(
	cfgProvider config.Provider,
	sessionManager *application.SessionManager,
	csrfService *application.CSRFService,
	idp domain.IdentityProvider,
	appLogger domain.Logger,
) *apphttp.AuthHandler {
	return apphttp.NewAuthHandler(cfgProvider, sessionManager, csrfService, idp, appLogger)
}

// GuildHandlerProvider provides the guild API HTTP handler.
func GuildHandlerProvider(guilds *repository.GuildRepository, members *repository.MemberRepository, appLogger domain.Logger) *apphttp.GuildHandler {
	return apphttp.NewGuildHandler(guilds, members, appLogger)
}

// RouterProvider provides the application route table.
func RouterProvider(
	authHandler *apphttp.AuthHandler,
	guildHandler *apphttp.GuildHandler,
	rateLimiter *application.RateLimiter,
	sessionManager *application.SessionManager,
	csrfService *application.CSRFService,
	appLogger domain.Logger,
) http.Handler {
	return apphttp.NewRouter(authHandler, guildHandler, rateLimiter, sessionManager, csrfService, appLogger)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure adapters
	PgxPoolProvider,
	StoreProvider,
	CacheStoreProvider,
	IdentityProviderProvider,

	// Repositories
	GuildRepositoryProvider,
	UserRepositoryProvider,
	MemberRepositoryProvider,
	SessionRepositoryProvider,

	// Application services
	SessionManagerProvider,
	CSRFServiceProvider,
	RateLimiterProvider,

	// HTTP surface
	AuthHandlerProvider,
	GuildHandlerProvider,
	RouterProvider,

	NewApp,
)
