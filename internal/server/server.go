// Package server assembles the HTTP API and its background components.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskify/backend/internal/cache"
	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/logging"
	"taskify/backend/internal/middleware"
	"taskify/backend/internal/monitoring"
	"taskify/backend/internal/services"
	"taskify/backend/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server owns every long-lived component. Build it with New (existing
// connections) or Open (connections from config).
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *gorm.DB
	pool  *database.DatabasePool
	cache *cache.MultiLevelCache

	tasks   services.TaskService
	cached  *services.CachedTaskService
	auth    services.AuthService
	members services.MemberService

	queue   *worker.JobQueue
	worker  *worker.Worker
	warmer  *cache.CacheWarmer
	limiter *middleware.RateLimiter

	metrics *monitoring.Metrics
	health  *monitoring.HealthChecker

	httpServer *http.Server
}

// Open connects to the database and Redis described by cfg, migrates the
// schema when configured to, and builds the server.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = cache.NewRedisClient(cfg.RedisCacheConfig())
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// The cache degrades to L1 behind the breaker; only the worker
			// needs Redis up front.
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.GetRedisAddr()), zap.Error(err))
		}
	}

	srv, err := New(cfg, logger, pool.DB, rdb)
	if err != nil {
		_ = pool.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	srv.pool = pool
	return srv, nil
}

// OpenDatabase opens the configured database and migrates it when
// cfg.Database.AutoMigrate is set.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*database.DatabasePool, error) {
	poolCfg := database.DefaultPoolConfig()
	poolCfg.Driver = cfg.Database.Driver
	poolCfg.DSN = cfg.GetDatabaseDSN()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := database.NewDatabasePool(poolCfg)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := pool.Migrate(ctx); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// New builds the server around an open database and an optional Redis
// client. A nil client disables the L2 cache and the job worker.
func New(cfg *config.Config, logger *zap.Logger, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		health: monitoring.NewHealthChecker(5 * time.Second),
	}

	var l2 *cache.RedisCache
	if rdb != nil {
		l2 = cache.NewRedisCache(rdb, cfg.Redis.KeyPrefix)
	}
	breakerCfg := cfg.Cache.CircuitBreaker
	s.cache = cache.NewMultiLevelCache(
		cache.NewMemoryCache(cfg.Cache.L1MaxEntries),
		l2,
		cache.WithL1TTL(cfg.Cache.L1TTL),
		cache.WithCircuitBreaker(cache.NewCircuitBreaker(&breakerCfg)),
		cache.WithLogger(logger.Named("cache")),
	)

	var jobs services.JobEnqueuer
	if rdb != nil && cfg.Worker.Enabled {
		s.queue = worker.NewJobQueue(rdb, cfg.Worker.QueuePrefix, cfg.Worker.MaxRetries)
		jobs = s.queue
	}

	base := services.NewTaskService(jobs, logger.Named("tasks"))
	s.cached = services.NewCachedTaskService(base, s.cache, logger.Named("tasks"))
	s.tasks = s.cached
	s.auth = services.NewAuthService(services.AuthConfig{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
		BcryptCost: cfg.Auth.BCryptCost,
	})
	s.members = services.NewMemberService()

	if s.queue != nil {
		s.worker = worker.NewWorker(s.queue, worker.WorkerConfig{
			Concurrency:  cfg.Worker.Concurrency,
			PollInterval: cfg.Worker.PollInterval,
			RetryBase:    cfg.Worker.RetryBase,
			JobTimeout:   cfg.Worker.JobTimeout,
			Logger:       logger,
		})
		services.NewNotificationHandlers(db, base, logger).Register(s.worker)
	}

	s.warmer = cache.NewCacheWarmer(s.cache, cfg.Cache.WarmInterval, logger.Named("warmer"))
	for _, job := range s.cached.WarmupJobs(db) {
		s.warmer.AddJob(job)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMin:  cfg.RateLimit.RequestsPerMin,
			BurstSize:       cfg.RateLimit.BurstSize,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
	}

	if cfg.Metrics.Enabled {
		s.metrics = monitoring.NewMetrics(cfg.Metrics.Namespace)
		if err := s.registerMetrics(); err != nil {
			return nil, err
		}
	}

	s.health.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	s.health.RegisterOptional("cache", s.cache.Health)

	s.httpServer = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) registerMetrics() error {
	errs := []error{
		s.metrics.GaugeFunc("cache_hit_rate", "Share of cache lookups served from L1 or L2.", s.cache.HitRate),
		s.metrics.CounterFunc("cache_errors_total", "L2 cache operations that failed.", func() float64 {
			return float64(s.cache.Metrics().Errors)
		}),
	}
	if s.worker != nil {
		errs = append(errs,
			s.metrics.CounterFunc("worker_jobs_processed_total", "Jobs completed successfully.", func() float64 {
				return float64(s.worker.Stats().Processed)
			}),
			s.metrics.CounterFunc("worker_jobs_failed_total", "Jobs moved to the dead list.", func() float64 {
				return float64(s.worker.Stats().Failed)
			}),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start launches the background components.
func (s *Server) Start(ctx context.Context) {
	if s.worker != nil {
		s.worker.Start(ctx)
	}
	s.warmer.Start(ctx)
	if s.limiter != nil {
		go s.limiter.Run(ctx)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.Start(runCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	cancel()
	return errors.Join(serveErr, s.Shutdown())
}

// Shutdown stops accepting requests, drains background work and closes
// connections. The cache closes the Redis client, so the worker must stop
// first.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.warmer.Stop()
	if s.worker != nil {
		s.worker.Stop()
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	s.logger.Info("shut down gracefully")
	return errors.Join(errs...)
}

// NewLogger builds the logger described by cfg.Logging.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("environment", cfg.Server.Environment)), nil
}
