package bootstrap

import (
	"context"
	"fmt"

	"github.com/lyzr/flow/common/cache"
	"github.com/lyzr/flow/common/config"
	"github.com/lyzr/flow/common/db"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/queue"
	"github.com/lyzr/flow/common/redis"
)

// Setup initializes all service components in dependency order: config,
// logger, database, Redis, queue, cache. Optional backends that are not
// configured are left nil rather than failing startup.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Database
	if !options.skipDB && components.Config.HasDatabase() {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if options.dbInitHook != nil {
			components.Logger.Info("running database init hook")
			if err := options.dbInitHook(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Redis
	if !options.skipRedis && components.Config.HasRedis() {
		components.Redis, err = redis.Connect(ctx, components.Config, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Queue
	if !options.skipQueue {
		components.Queue = queue.NewMemoryQueue(components.Logger)
		components.addCleanup(func() error {
			components.Logger.Info("closing queue")
			return components.Queue.Close()
		})
	}

	// 6. Cache: Redis-backed when available so cached results survive
	// restarts, in-memory otherwise.
	if !options.skipCache {
		if components.Redis != nil {
			components.Cache = cache.NewRedisCache(components.Redis, "")
			components.Logger.Info("cache initialized", "backend", "redis")
		} else {
			components.Cache = cache.NewMemoryCache(components.Logger)
			components.Logger.Info("cache initialized", "backend", "memory")
		}
		components.addCleanup(func() error {
			return components.Cache.Close()
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error.
// Useful for services that can't recover from initialization failure.
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
