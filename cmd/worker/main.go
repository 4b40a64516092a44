// Package main is the entry point of the progression worker.
//
// The worker owns the engine's background duties:
//   - failing goals whose end date has passed
//   - repairing level snapshots that drifted from the XP ledger
//
// The engine itself is a library; the worker wires it to the configured
// store, cache and tracing backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillpath/progression-engine/config"
	"github.com/skillpath/progression-engine/internal/application/progression"
	"github.com/skillpath/progression-engine/internal/domain/store"
	"github.com/skillpath/progression-engine/internal/infrastructure/observability"
	"github.com/skillpath/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/skillpath/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/skillpath/progression-engine/internal/infrastructure/persistence/sqlite"
	"github.com/skillpath/progression-engine/internal/infrastructure/scheduler"
	"github.com/skillpath/progression-engine/internal/infrastructure/scheduler/jobs"
	"github.com/skillpath/progression-engine/pkg/logger"
	"github.com/skillpath/progression-engine/pkg/retry"
	"github.com/skillpath/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting progression worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
		logger.String("db_driver", cfg.Database.Driver),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.App.Name,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Headers:     observability.ParseHeaders(cfg.Observability.TracingHeaders),
		Insecure:    cfg.Observability.TracingInsecure,
		SampleRatio: cfg.Observability.TracingSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. STORE
	// ─────────────────────────────────────────────────────────────────────────
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache *redis.Cache
		engineDeps = progression.Deps{
			Store:  st,
			Clock:  timeutil.SystemClock{},
			Logger: log,
		}
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   1,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer func() { _ = redisCache.Close() }()
			engineDeps.Cache = redis.NewProgressionCache(redisCache, log)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	engineCfg := progression.DefaultConfig()
	engineCfg.Location = cfg.App.Location
	engineCfg.HistoryDays = cfg.Engine.HistoryDays
	engineCfg.LeaderboardLimit = cfg.Engine.LeaderboardLimit
	engineCfg.MaxLeaderboardLimit = cfg.Engine.MaxLeaderboardLimit
	engineCfg.Retry = retry.DefaultPolicy()
	engineCfg.Retry.MaxAttempts = cfg.Engine.RetryAttempts
	engineCfg.Retry.BaseDelay = cfg.Engine.RetryBaseDelay

	engine := progression.New(engineDeps, engineCfg)
	log.Info("progression engine ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, waiting for shutdown signal")
		<-ctx.Done()
		log.Info("shutdown completed successfully")
		return nil
	}

	sched, err := setupScheduler(cfg, engine, st, redisCache, log)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("progression worker is running", logger.Int("jobs", len(sched.ListJobs())))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler...",
		logger.Duration("timeout", cfg.App.ShutdownTimeout))

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("scheduler did not stop in time")
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger builds the process logger from the observability settings.
func setupLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}

	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		Format:    cfg.Observability.LogFormat,
		AddCaller: !cfg.IsProduction(),
	}).With(logger.String("service", cfg.App.Name))
}

// openStore opens the configured store and returns a matching close func.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		log.Info("connecting to PostgreSQL...")
		conn, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:          int32(cfg.Database.MaxConns),
			MinConns:          int32(cfg.Database.MinConns),
			MaxConnLifetime:   cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime:   cfg.Database.ConnMaxIdleTime,
			HealthCheckPeriod: postgres.DefaultPoolSettings().HealthCheckPeriod,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		log.Info("checking database migrations...")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")

		return postgres.NewStore(conn), func() {
			log.Info("closing database connection...")
			conn.Close()
		}, nil

	case config.DriverSQLite:
		log.Info("opening SQLite database...", logger.String("path", cfg.Database.SQLitePath))
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqlite.NewStore(db), func() {
			log.Info("closing database...")
			_ = db.Close()
		}, nil
	}

	return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
}

// setupScheduler registers the background jobs. A nil cache runs the jobs
// without the cross-worker lock.
func setupScheduler(
	cfg *config.Config,
	engine *progression.Engine,
	st store.Store,
	cache *redis.Cache,
	log *logger.Logger,
) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.NewScheduler(schedCfg)

	var locker jobs.Locker
	if cache != nil {
		locker = cache
	}

	// Jobs log through the scheduler's per-run logger.
	sweep := jobs.NewSweepExpiredGoalsJob(engine.Goals, locker, nil, jobs.SweepExpiredGoalsConfig{})
	if err := sched.Register(sweep, scheduler.Cron(cfg.Scheduler.SweepCron)); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", sweep.Name(), err)
	}

	reconcile := jobs.NewReconcileSnapshotsJob(st.Rewards(), engine.Ledger, locker, nil, jobs.ReconcileSnapshotsConfig{
		BatchSize: cfg.Scheduler.ReconcileBatchSize,
	})
	if err := sched.Register(reconcile, scheduler.Every(cfg.Scheduler.ReconcileInterval)); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", reconcile.Name(), err)
	}

	return sched, nil
}
