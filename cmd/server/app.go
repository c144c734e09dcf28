package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/database"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	gormlogger "gorm.io/gorm/logger"
)

// App owns every process-wide resource: the store client, the optional cache
// and the HTTP server. Resources are opened in NewApp and released in Stop.
type App struct {
	cfg    *config.Config
	logger *log.Logger

	repo   repositories.TaskRepository
	mongo  *database.MongoClient
	pool   *database.DatabasePool
	cache  *cache.RedisCache
	warmer *cache.CacheWarmer
	server *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{cfg: cfg, logger: logger}
	app.openStore(ctx)

	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealthChecker(5*time.Second, logger)
	health.Register("store", app.repo.Ping)
	if app.pool != nil {
		metrics.RegisterComponent("database", app.pool.Stats)
	}

	taskService := services.NewTaskService(app.repo)
	if cfg.Cache.Enabled {
		app.openCache(ctx)
		health.Register("cache", app.cache.Health)
		metrics.RegisterComponent("cache", app.cache.Stats)
		cached := services.NewCachedTaskService(taskService, app.cache, services.CacheTTLs{
			Task: cfg.Cache.TaskTTL,
			List: cfg.Cache.ListTTL,
		}, logger)
		taskService = cached

		if cfg.Cache.Warmup {
			app.warmer = cache.NewCacheWarmer(app.cache, cache.WarmupStrategy{
				Interval:    cfg.Cache.WarmupInterval,
				HealthCheck: app.cache.Health,
			}, logger)
			for _, job := range cached.WarmupJobs() {
				app.warmer.AddJob(job)
			}
			metrics.RegisterComponent("cache_warmer", app.warmer.StatsMap)
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  cfg.RateLimit.RequestsPerMin,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
	}

	router, err := handlers.SetupRouter(handlers.RouterConfig{
		TaskService: taskService,
		Logger:      logger,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAge:         cfg.CORS.MaxAge,
		},
		RateLimiter: limiter,
		Metrics:     metrics,
		Health:      health,
	})
	if err != nil {
		app.closeResources(ctx)
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	app.server = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// openStore never fails: a store that cannot be reached is logged and the
// requests that need it fail with a server error instead.
func (a *App) openStore(ctx context.Context) {
	switch a.cfg.Database.Driver {
	case config.StorePostgres, config.StoreSQLite:
		a.openSQLStore(ctx)
	default:
		a.openMongoStore(ctx)
	}
}

func (a *App) openMongoStore(ctx context.Context) {
	client, err := database.ConnectMongo(ctx, &database.MongoConfig{
		URI:                    a.cfg.GetMongoURI(),
		Database:               a.cfg.Database.Name,
		ConnectTimeout:         a.cfg.Database.ConnectTimeout,
		ServerSelectionTimeout: a.cfg.Database.ConnectTimeout,
	})
	if err != nil {
		a.logger.Error("failed to connect to MongoDB", "err", err)
		a.repo = repositories.NewUnavailableTaskRepository(err)
		return
	}
	a.mongo = client
	a.repo = repositories.NewMongoTaskRepository(client.Collection(a.cfg.Database.Collection))

	pingCtx, cancel := context.WithTimeout(ctx, a.cfg.Database.ConnectTimeout)
	defer cancel()
	if err := client.Health(pingCtx); err != nil {
		a.logger.Error("failed to connect to MongoDB", "err", err)
		return
	}
	a.logger.Info("connected to MongoDB", "database", a.cfg.Database.Name, "collection", a.cfg.Database.Collection)
}

func (a *App) openSQLStore(ctx context.Context) {
	logLevel := gormlogger.Warn
	if a.cfg.Log.Level == "debug" {
		logLevel = gormlogger.Info
	}

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Driver:          a.cfg.Database.Driver,
		DSN:             a.cfg.Database.DSN,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: a.cfg.Database.ConnMaxIdleTime,
		LogLevel:        logLevel,
		Logger:          a.logger.WithPrefix("gorm"),
	})
	if err != nil {
		a.logger.Error("failed to connect to database", "driver", a.cfg.Database.Driver, "err", err)
		a.repo = repositories.NewUnavailableTaskRepository(err)
		return
	}
	a.pool = pool

	repo := repositories.NewGormTaskRepository(pool.DB)
	a.repo = repo
	if err := repo.EnsureSchema(ctx); err != nil {
		a.logger.Error("failed to prepare tasks table", "err", err)
		return
	}
	a.logger.Info("connected to database", "driver", a.cfg.Database.Driver)
}

func (a *App) openCache(ctx context.Context) {
	cacheConfig := cache.DefaultCacheConfig()
	cacheConfig.Addr = a.cfg.GetRedisAddr()
	cacheConfig.Password = a.cfg.Redis.Password
	cacheConfig.DB = a.cfg.Redis.DB
	cacheConfig.PoolSize = a.cfg.Redis.PoolSize
	cacheConfig.MinIdleConns = a.cfg.Redis.MinIdleConns
	cacheConfig.MaxRetries = a.cfg.Redis.MaxRetries
	cacheConfig.DialTimeout = a.cfg.Redis.DialTimeout
	cacheConfig.ReadTimeout = a.cfg.Redis.ReadTimeout
	cacheConfig.WriteTimeout = a.cfg.Redis.WriteTimeout

	a.cache = cache.NewRedisCache(cacheConfig)
	if err := a.cache.Health(ctx); err != nil {
		a.logger.Warn("redis unreachable, serving from the store", "addr", cacheConfig.Addr, "err", err)
		return
	}
	a.logger.Info("connected to redis", "addr", cacheConfig.Addr)
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Start serves in the background. A listener failure is fatal.
func (a *App) Start() {
	if a.warmer != nil {
		a.warmer.Start(context.Background())
	}
	go func() {
		a.logger.Info("server listening", "addr", a.server.Addr, "store", a.cfg.Database.Driver)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server failed", "err", err)
		}
	}()
}

// Stop drains in-flight requests, then releases the cache and the store.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := a.closeResources(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources(ctx context.Context) error {
	var errs []error
	if a.warmer != nil {
		a.warmer.Stop()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
		} else {
			a.logger.Info("disconnected from MongoDB")
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		} else {
			a.logger.Info("disconnected from database")
		}
	}
	return errors.Join(errs...)
}
