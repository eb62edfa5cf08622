package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/remindhub/messaging-scheduler/internal/api"
	"github.com/remindhub/messaging-scheduler/internal/config"
	"github.com/remindhub/messaging-scheduler/internal/db"
	"github.com/remindhub/messaging-scheduler/internal/metrics"
	"github.com/remindhub/messaging-scheduler/internal/queue"
	"github.com/remindhub/messaging-scheduler/internal/ratelimiter"
	"github.com/remindhub/messaging-scheduler/internal/repository"
	"github.com/remindhub/messaging-scheduler/internal/scheduling"
	"github.com/remindhub/messaging-scheduler/internal/sender"
	"github.com/remindhub/messaging-scheduler/internal/service"
	"github.com/remindhub/messaging-scheduler/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	defaultLoc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		logger.Fatal("invalid DEFAULT_TIMEZONE", zap.String("tz", cfg.DefaultTimezone), zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := queue.New()

	scheduleRepo := repository.NewPgScheduleRepository(pool)
	instanceRepo := repository.NewPgInstanceRepository(pool)
	broadcastRepo := repository.NewPgBroadcastRepository(pool)
	caseRepo := repository.NewPgCaseRepository(pool)

	gateway := sender.NewWebhookSender(cfg.GatewayBaseURL, cfg.GatewayTimeout)
	limiter := ratelimiter.New(cfg.RateLimit)

	clock := scheduling.SystemClock{}
	envs := service.NewEnvFactory(clock, defaultLoc)

	// Surface noon fallbacks (missing or unparseable case-property times)
	// as a log line and a counter.
	scheduling.SetCasePropertyFallbackHook(func(property, rawValue string) {
		logger.Warn("case property time fell back to noon",
			zap.String("property", property),
			zap.String("raw_value", rawValue))
		m.CasePropertyFallbacks.Inc()
	})

	broadcastSvc := service.NewBroadcastService(broadcastRepo, scheduleRepo, instanceRepo,
		caseRepo, q, envs, logger)
	caseSvc := service.NewCaseService(caseRepo, instanceRepo, scheduleRepo, envs, logger)

	// ---- workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onSent, onFailed := m.WorkerHooks()
	workerPool := worker.NewPool(cfg.Workers, q, scheduleRepo, instanceRepo, broadcastRepo,
		caseRepo, gateway, limiter, envs, logger, worker.MetricHooks{
			OnSent:   onSent,
			OnFailed: onFailed,
		})
	workerPool.Start(workerCtx)

	sweepW := worker.NewSweepWorker(instanceRepo, q, clock, cfg.SweepInterval, cfg.SweepBatchSize, logger)
	go sweepW.Run(workerCtx)

	purgeW := worker.NewPurgeWorker(broadcastRepo, scheduleRepo, instanceRepo,
		cfg.PurgeInterval, cfg.PurgeBatchSize, logger)
	go purgeW.Run(workerCtx)

	// Keep the queue depth gauges fresh for Prometheus scrapes.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				alert, timed := q.Depths()
				m.QueueDepthAlert.Set(float64(alert))
				m.QueueDepthTimed.Set(float64(timed))
			}
		}
	}()

	// ---- HTTP server ----
	router := api.NewRouter(broadcastSvc, caseSvc, q, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all workers to stop processing new queue items.
	cancelWorkers()

	// 3. Wait for in-flight workers to finish their current message.
	workerPool.Wait()

	logger.Info("server stopped cleanly")
}
