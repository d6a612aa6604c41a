package di

import (
	"context"
	"fmt"
	"time"

	"llm-duet/backend/internal/api"
	"llm-duet/backend/internal/provider"
	"llm-duet/backend/internal/scheduler"
	"llm-duet/backend/internal/store"
	"llm-duet/backend/internal/ws"
	"llm-duet/backend/pkg/cache"
	"llm-duet/backend/pkg/config"
	"llm-duet/backend/pkg/health"
	"llm-duet/backend/pkg/logger"
	"llm-duet/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *logger.Logger
	Redis     *redis.Client
	Store     *store.CachedStore
	Provider  *provider.Client
	Scheduler *scheduler.Scheduler
	Locker    *store.ConversationLocker
	Health    *health.Checker

	PairHandler         *api.PairHandler
	ConversationHandler *api.ConversationHandler
	SettingsHandler     *api.SettingsHandler
	StreamHandler       *api.StreamHandler
	WSStreamHandler     *ws.StreamHandler
}

// New creates a new dependency injection container
func New(db *gorm.DB, log *logger.Logger) (*Container, error) {
	cfg := config.Get()

	gormStore, err := store.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	cachedStore := store.NewCachedStore(gormStore, cache.NewCache())

	// Session loads flow through the secret-resolving decorator so
	// API keys can live in the secrets backend instead of the DB.
	sessionStore := store.NewSecretResolvingStore(cachedStore)

	providerClient := provider.NewClient(provider.Options{
		GenerateTimeout: cfg.Provider.GenerateTimeout,
		ModelsTimeout:   cfg.Provider.ModelsTimeout,
		Temperature:     cfg.Provider.Temperature,
		MaxTokens:       cfg.Provider.MaxTokens,
	}, log)

	metrics, err := scheduler.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
	}

	sched := scheduler.New(sessionStore, providerClient, scheduler.Config{
		DefaultTurns: cfg.Provider.DefaultTurns,
		TurnDelay:    cfg.Provider.TurnDelay,
	}, log, metrics)

	redisClient := redis.NewClient()
	locker := store.NewConversationLocker(redisClient, cfg.Provider.StreamLockTTL, log)

	checker := health.NewChecker(log)
	checker.RegisterCheck("database", func() (health.Status, string, error) {
		sqlDB, err := db.DB()
		if err != nil {
			return health.StatusDown, "Database handle unavailable", err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return health.StatusDown, "Database unreachable", err
		}
		return health.StatusUp, "Database connection is healthy", nil
	})
	checker.RegisterCheck("redis", func() (health.Status, string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx); err != nil {
			// Redis only backs the stream lock; its loss degrades
			// concurrency protection, not core serving.
			return health.StatusDegraded, "Redis unreachable, stream locking disabled", err
		}
		return health.StatusUp, "Redis connection is healthy", nil
	})

	c := &Container{
		Config:    cfg,
		DB:        db,
		Logger:    log,
		Redis:     redisClient,
		Store:     cachedStore,
		Provider:  providerClient,
		Scheduler: sched,
		Locker:    locker,
		Health:    checker,
	}

	c.PairHandler = api.NewPairHandler(cachedStore)
	c.ConversationHandler = api.NewConversationHandler(cachedStore)
	c.SettingsHandler = api.NewSettingsHandler(cachedStore, sessionStore, providerClient)
	c.StreamHandler = api.NewStreamHandler(sched, locker, cfg.Provider.DefaultTurns, log)
	c.WSStreamHandler = ws.NewStreamHandler(sched, locker, cfg.Provider.DefaultTurns, log)

	return c, nil
}
