package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/segyhp/expense-ledger/internal/config"
	"github.com/segyhp/expense-ledger/internal/metrics"
	"github.com/segyhp/expense-ledger/internal/notify"
	"github.com/segyhp/expense-ledger/internal/repository"
	"github.com/segyhp/expense-ledger/internal/service"
	"github.com/segyhp/expense-ledger/pkg/logging"
)

// reminderTimeout bounds a single reminder run.
const reminderTimeout = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.LogFormat())
	logger.Info("starting ledger scheduler")

	if !cfg.RedisEnabled() {
		logger.Error("REDIS_HOST is required: reminders are delivered through the notification stream")
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Scheduler.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener starting", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", "error", err)
			os.Exit(1)
		}
	}()

	notifier := notify.NewRedisNotifier(redisClient, cfg.Notify.Stream, cfg.Notify.StreamMaxLen)
	ledger := service.NewLedgerService(
		repository.NewEventRepository(db),
		repository.NewExpenseRepository(db),
		repository.NewPaymentRepository(db),
		notifier,
		recorder,
		logger,
	)
	job := service.NewReminderJob(ledger, notifier, recorder, logger)

	c := cron.New(cron.WithSeconds(), cron.WithLocation(cfg.GetLocation()))

	if _, err := c.AddFunc(cfg.Scheduler.ReminderCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reminderTimeout)
		defer cancel()

		logger.Info("running settlement reminder job")
		if _, err := job.Run(ctx); err != nil {
			logger.Error("settlement reminder job failed", "error", err)
		}
	}); err != nil {
		logger.Error("failed to schedule reminder job", "spec", cfg.Scheduler.ReminderCron, "error", err)
		os.Exit(1)
	}

	c.Start()
	logger.Info("scheduler started", "reminder_cron", cfg.Scheduler.ReminderCron, "timezone", cfg.Scheduler.Timezone)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down scheduler")
	<-c.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics listener forced to shutdown", "error", err)
	}

	logger.Info("scheduler stopped")
}
