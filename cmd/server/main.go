package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"MailRamp/internal/api"
	"MailRamp/internal/audit"
	"MailRamp/internal/capacity"
	"MailRamp/internal/config"
	"MailRamp/internal/csvparser"
	"MailRamp/internal/db"
	"MailRamp/internal/dispatch"
	"MailRamp/internal/email"
	"MailRamp/internal/holidays"
	"MailRamp/internal/jobs"
	"MailRamp/internal/metrics"
	"MailRamp/internal/models"
	"MailRamp/internal/queue"
	"MailRamp/internal/scheduler"
	"MailRamp/internal/warmup"
	"MailRamp/internal/window"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	loc := cfg.Location()

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Holiday Calendar (Redis cache)
	// ------------------------------------------------
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// Lookups fail closed until Redis is back.
		logger.Warn("redis unavailable", zap.Error(err))
	}

	calendar := holidays.NewCalendar(
		holidays.NewClient(cfg.HolidayAPIURL, cfg.HolidayTimeout),
		rdb,
		cfg.HolidayCacheTTL,
		logger,
	)

	// ------------------------------------------------
	// Warmup Ramp
	// ------------------------------------------------
	schedule := models.DefaultWarmupSchedule()
	if cfg.WarmupRampFile != "" {
		schedule, err = csvparser.ParseSchedule(cfg.WarmupRampFile)
		if err != nil {
			logger.Fatal("failed to load warmup ramp", zap.String("file", cfg.WarmupRampFile), zap.Error(err))
		}
		logger.Info("warmup ramp loaded", zap.Int("days", schedule.Length()))
	}

	// ------------------------------------------------
	// Mail Transport
	// ------------------------------------------------
	var transport email.Transport = email.NewSMTPTransport(cfg.SMTPTimeout)
	if cfg.DryRun {
		logger.Warn("dry run enabled, no email leaves the process")
		transport = &email.LogTransport{Log: logger}
	}

	// ------------------------------------------------
	// Core Components
	// ------------------------------------------------
	auditLog := audit.New(store, loc, logger)
	tracker := capacity.NewTracker(store, schedule, loc, logger)

	machine := warmup.New(store, transport, auditLog, warmup.Options{
		Schedule:         schedule,
		Location:         loc,
		StartHour:        cfg.WarmupStartHour,
		EndHour:          cfg.WarmupEndHour,
		Tolerance:        cfg.WarmupTolerance,
		StaleAfter:       cfg.StaleAfter,
		FailureThreshold: cfg.FailureThreshold,
	}, logger)
	machine.DNS = warmup.NewNetDNS(cfg.DNSTimeout)

	// ------------------------------------------------
	// Rate Limiter
	// ------------------------------------------------
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	// ------------------------------------------------
	// Dispatcher
	// ------------------------------------------------
	dispatcher := dispatch.New(dispatch.Deps{
		Store:    store,
		Gate:     window.NewGate(calendar, logger),
		Capacity: tracker,
		Queue: queue.New(store, queue.Options{
			BufferSize: cfg.BufferSize,
			LowWater:   cfg.LowWater,
			Location:   loc,
		}, logger),
		Audit:     auditLog,
		Transport: transport,
		Faults:    machine,
	}, dispatch.Options{
		Workers:     cfg.WorkerCount,
		Limiter:     limiter,
		Location:    loc,
		Tolerance:   cfg.SendTolerance,
		StaleAfter:  cfg.StaleAfter,
		SendTimeout: cfg.SMTPTimeout,
		Retry:       dispatch.RetryPolicy{MaxAttempts: cfg.RetryAttempts},
	}, logger)

	jobTracker := jobs.NewTracker(store, logger)

	// ------------------------------------------------
	// Scheduler
	// ------------------------------------------------
	if cfg.InboxSpec != "" && machine.Inbox == nil {
		logger.Warn("CRON_INBOX set but no inbox client is configured; inbox job disabled")
		cfg.InboxSpec = ""
	}

	sched := scheduler.New(scheduler.Deps{
		Dispatcher: dispatcher,
		Warmup:     machine,
		Holidays:   calendar,
		Jobs:       jobTracker,
	}, scheduler.Specs{
		Tick:       cfg.TickSpec,
		RollDay:    cfg.RollDaySpec,
		WarmupSend: cfg.WarmupSendSpec,
		DNSCheck:   cfg.DNSCheckSpec,
		Inbox:      cfg.InboxSpec,
		Prefetch:   cfg.PrefetchSpec,
	}, scheduler.Options{
		Location:    loc,
		Countries:   cfg.HolidayCountries,
		WarmupBurst: cfg.WarmupBurst,
		Timeout:     cfg.JobTimeout,
	}, logger)

	if err := sched.Setup(); err != nil {
		logger.Fatal("invalid schedule", zap.Error(err))
	}
	sched.Start(ctx)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Store:     store,
		Campaigns: dispatcher,
		Warmup:    machine,
		Capacity:  tracker,
		Holidays:  calendar,
		Jobs:      jobTracker,
		Countries: cfg.HolidayCountries,
		Location:  loc,
		Log:       logger,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiHandler.Routes(),
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Let a running tick finish before the store closes.
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
