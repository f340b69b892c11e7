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

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/expense-ledger/internal/config"
	"github.com/segyhp/expense-ledger/internal/handler"
	"github.com/segyhp/expense-ledger/internal/metrics"
	"github.com/segyhp/expense-ledger/internal/middleware"
	"github.com/segyhp/expense-ledger/internal/notify"
	"github.com/segyhp/expense-ledger/internal/repository"
	"github.com/segyhp/expense-ledger/internal/service"
	"github.com/segyhp/expense-ledger/pkg/logging"
	"github.com/segyhp/expense-ledger/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.LogFormat())

	db, err := initDB(cfg)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(context.Background(), db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		notifier    notify.Notifier = notify.Nop{}
	)
	if cfg.RedisEnabled() {
		redisClient = initRedis(cfg)
		defer redisClient.Close()
		notifier = notify.NewRedisNotifier(redisClient, cfg.Notify.Stream, cfg.Notify.StreamMaxLen)
	} else {
		logger.Warn("REDIS_HOST not set, notifications are disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(registry)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	ledgerService := service.NewLedgerService(
		repository.NewEventRepository(db),
		repository.NewExpenseRepository(db),
		repository.NewPaymentRepository(db),
		notifier,
		recorder,
		logger,
	)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	healthHandler := handler.NewHealthHandler(db, redisClient, cfg.GetHealthTimeout())
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret)

	router := setupRoutes(ledgerHandler, healthHandler, auth, registry)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(ledgerHandler *handler.LedgerHandler, healthHandler *handler.HealthHandler, auth *middleware.Authenticator, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware, response.CORSMiddleware)

	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.RequireAuth, response.JSONMiddleware)
	ledgerHandler.RegisterRoutes(api)

	return router
}
