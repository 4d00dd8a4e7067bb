package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compengine/internal/config"
	handlers "compengine/internal/handlers/admin"
	"compengine/internal/middleware"
	"compengine/internal/repositories/interfaces"
	"compengine/internal/repositories/memory"
	mongorepo "compengine/internal/repositories/mongodb"
	"compengine/internal/scheduler"
	"compengine/internal/services"
	"compengine/pkg/cache"
	"compengine/pkg/database"
	"compengine/pkg/logger"
	"compengine/pkg/storage"
	"compengine/pkg/websocket"
	"compengine/routes"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "env file to load before reading the environment")
	runJob := pflag.String("run-job", "", "run one settlement job (pending-bonus, roi, prune) and exit")
	pflag.Parse()

	if err := run(*envFile, *runJob); err != nil {
		fmt.Fprintf(os.Stderr, "compengine: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, runJob string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:      logger.LogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
		Caller:     cfg.Logging.Caller,
		Colors:     cfg.Logging.Colors,
		AppName:    cfg.App.Name,
		Version:    cfg.App.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := map[string]func(context.Context) error{}

	store, closeStore, err := openStore(cfg, log, health)
	if err != nil {
		return err
	}
	defer closeStore()

	clock := clockwork.NewRealClock()
	engine, err := services.NewEngine(services.EngineConfig{
		Store:                 store,
		Plan:                  cfg.Compensation,
		Logger:                log,
		Clock:                 clock,
		Location:              cfg.App.Location(),
		SettlementConcurrency: cfg.Scheduler.SettlementConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	jobs, err := scheduler.JobsFromConfig(engine, cfg.Scheduler)
	if err != nil {
		return err
	}
	schedulerCfg := scheduler.Config{
		Logger:   log,
		Clock:    clock,
		Location: cfg.App.Location(),
		LockTTL:  cfg.Scheduler.LockTTL,
		Jobs:     jobs,
	}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisCache.Close()
		schedulerCfg.Locker = redisCache
		health["redis"] = redisCache.Ping
	}

	var reports handlers.ReportReader
	archive, closeArchive, err := openReportArchive(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeArchive()
	if archive != nil {
		schedulerCfg.Archive = archive
		reports = archive
	}

	var (
		events    scheduler.Publisher
		wsHandler *websocket.Handler
	)
	if cfg.WebSocket.Enabled {
		wsHandler = websocket.NewHandler(ctx, websocket.NewHub(log))
		events = wsHandler
		schedulerCfg.Publisher = wsHandler
	}

	sched, err := scheduler.New(schedulerCfg)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if runJob != "" {
		result, err := sched.RunJob(ctx, runJob)
		if err != nil {
			return fmt.Errorf("job %s failed: %w", runJob, err)
		}
		log.WithField("job", runJob).WithFields(map[string]interface{}{
			"processed": result.Result.ProcessedCount,
			"skipped":   result.Result.SkippedCount,
			"failed":    result.Result.FailedCount,
		}).Info("Job finished")
		return nil
	}

	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Security.CORSAllowedOrigins))
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware())

	v1 := router.Group("/api/v1")
	{
		compensationHandler := handlers.NewCompensationHandler(engine, store, sched, reports, events)
		routes.SetupCompensationRoutes(v1, compensationHandler, wsHandler, cfg.Security.JWTSecret, cfg.Security.AdminRole)
	}

	router.GET("/health", func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		checks := make(map[string]string, len(health))
		for name, check := range health {
			if err := check(checkCtx); err != nil {
				checks[name] = err.Error()
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": cfg.App.Version,
			"store":   cfg.App.StoreDriver,
			"checks":  checks,
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, log *logger.Logger, health map[string]func(context.Context) error) (interfaces.LedgerStore, func(), error) {
	if cfg.App.StoreDriver == "memory" {
		log.Warn("Using in-memory ledger store; balances are lost on restart")
		return memory.New(), func() {}, nil
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.NewMigrator(db.Database, log).Up(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	health["mongodb"] = func(context.Context) error { return db.Ping() }
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("Failed to close mongodb connection")
		}
	}
	return mongorepo.NewLedgerStore(db), closeFn, nil
}

func openReportArchive(ctx context.Context, cfg *config.StorageConfig) (*scheduler.ReportArchive, func(), error) {
	noop := func() {}
	var provider storage.Provider
	switch cfg.Provider {
	case "none":
		return nil, noop, nil
	case "s3":
		s3, err := storage.NewAWSS3Storage(ctx, cfg.AWS.Region, cfg.AWS.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report storage: %w", err)
		}
		provider = s3
	case "gcs":
		gcs, err := storage.NewGCPStorage(ctx, cfg.GCP.Bucket, cfg.GCP.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report storage: %w", err)
		}
		return scheduler.NewReportArchive(gcs, cfg.Prefix), func() { _ = gcs.Close() }, nil
	default:
		local, err := storage.NewLocalStorage(cfg.Local.BasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report storage: %w", err)
		}
		provider = local
	}
	return scheduler.NewReportArchive(provider, cfg.Prefix), noop, nil
}
