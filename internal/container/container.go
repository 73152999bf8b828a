package container

import (
	"context"
	"fmt"

	"stash-api/internal/config"
	"stash-api/internal/gate"
	"stash-api/internal/nocodb"
	"stash-api/internal/repository"
	"stash-api/internal/service"
	"stash-api/internal/service/auth"
	"stash-api/internal/sse"
	"stash-api/pkg/database"
	"stash-api/pkg/logger"
	"stash-api/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	RedisClient *redis.Client
	DB          *database.PostgresDB
	Services    *service.Services
	Gates       *gate.Service
	AuthBroker  *service.AuthBroker
	Hub         *sse.Hub
}

// New creates a new dependency injection container. Redis and Postgres are
// optional: without Redis quota state lives in process memory and nothing
// is cached, without Postgres analytics are logged and dropped.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Container, error) {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, logger.Named("redis").Logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		} else {
			redisClient = client
			logger.Info("Redis client initialized successfully")
		}
	} else {
		logger.Info("Redis URL not configured, proceeding without caching")
	}

	var db *database.PostgresDB
	if cfg.DatabaseURL != "" {
		pg, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to Postgres, analytics will not be stored")
		} else {
			db = pg
			logger.Info("Postgres connection pool initialized successfully")
		}
	} else {
		logger.Info("Database URL not configured, analytics will not be stored")
	}

	assetSource, err := nocodb.NewService(nocodb.Config{
		APIURL:      cfg.NocoDBAPIURL,
		APIToken:    cfg.NocoDBAPIToken,
		FileBaseURL: cfg.NocoDBFileBaseURL,
		Development: cfg.IsDevelopment(),
	}, logger)
	if err != nil {
		closeAll(redisClient, db)
		return nil, fmt.Errorf("failed to initialize asset service: %w", err)
	}

	var events repository.EventRepository
	if db != nil {
		events = repository.NewEventRepository(db)
	}

	var users auth.UserLookup
	if supabase := service.NewSupabaseClient(cfg, logger); supabase.Configured() {
		users = supabase
	}

	var quotaStorage gate.StorageProvider = gate.NewMemoryProvider()
	if redisClient != nil {
		quotaStorage = repository.NewQuotaStorage(redisClient)
	}

	gates := gate.NewService(gate.Config{
		Mode:        gate.Mode(cfg.GateMode),
		QuotaList:   cfg.GateQuotaList,
		QuotaDetail: cfg.GateQuotaDetail,
		ModalDelay:  cfg.GateModalDelay,
		SuppressFor: cfg.GateSuppressFor,
		Location:    cfg.GateTimezone,
	}, quotaStorage, gate.SystemClock(), logger)

	services := &service.Services{
		Auth:      auth.NewService(cfg.SupabaseJWTSecret, users, logger),
		Assets:    service.NewCacheService(assetSource, redisClient, logger.Named("asset_cache").Logger),
		Analytics: service.NewAnalyticsService(events, cfg.AnalyticsInterval, logger),
	}

	return &Container{
		Config:      cfg,
		Logger:      logger,
		RedisClient: redisClient,
		DB:          db,
		Services:    services,
		Gates:       gates,
		AuthBroker:  service.NewAuthBroker(logger),
		Hub:         sse.NewHub(logger, 0),
	}, nil
}

// GetAuthService returns the auth service
func (c *Container) GetAuthService() service.AuthService {
	return c.Services.Auth
}

// GetAssetService returns the cached asset service
func (c *Container) GetAssetService() service.AssetService {
	return c.Services.Assets
}

// GetAnalyticsService returns the analytics service
func (c *Container) GetAnalyticsService() service.AnalyticsService {
	return c.Services.Analytics
}

// GetGateService returns the gate service
func (c *Container) GetGateService() *gate.Service {
	return c.Gates
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// HasDatabase returns true if Postgres is available
func (c *Container) HasDatabase() bool {
	return c.DB != nil
}

// Close releases external connections
func (c *Container) Close() {
	closeAll(c.RedisClient, c.DB)
}

func closeAll(redisClient *redis.Client, db *database.PostgresDB) {
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		db.Close()
	}
}
