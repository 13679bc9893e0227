package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/efreitasn/brokerage/internal/config"
	"github.com/efreitasn/brokerage/internal/engine"
	"github.com/efreitasn/brokerage/internal/handler"
	"github.com/efreitasn/brokerage/internal/notify"
	"github.com/efreitasn/brokerage/internal/queue"
	"github.com/efreitasn/brokerage/internal/service"
	"github.com/efreitasn/brokerage/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	migrateOnly := flag.Bool("migrate", false, "Apply database migrations and exit")
	flag.Parse()

	// -healthcheck: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ledger, err := openLedger(cfg, *migrateOnly)
	if err != nil {
		logger.Error("failed to open ledger", slog.String("store", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *migrateOnly {
		logger.Info("migrations applied")
		return
	}

	policy := queue.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
	var orderQueue queue.Queue
	switch cfg.QueueDriver {
	case config.QueueKafka:
		orderQueue = queue.NewKafka(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaOrderTopic,
			GroupID: cfg.KafkaOrderGroupID,
		}, policy, logger)
	default:
		orderQueue = queue.NewMemory(cfg.WorkerCount, cfg.QueueBuffer, policy, logger)
	}

	// Notifiers: webhooks, websockets and, when configured, a Kafka topic.
	webhookStore := store.NewWebhookStore()
	webhooks := notify.NewWebhook(webhookStore, cfg.WebhookTimeout, logger)
	hub := notify.NewHub(logger)
	notifiers := notify.Multi{webhooks, hub}
	var events *notify.KafkaPublisher
	if cfg.KafkaEventTopic != "" {
		events = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventTopic, logger)
		notifiers = append(notifiers, events)
	}

	executor := engine.NewExecutor(ledger, notifiers, cfg.FeeRate, logger)
	sweeper := engine.NewSweeper(cfg.SweepInterval, cfg.StaleOrderAge, ledger, orderQueue, logger)

	router := handler.NewRouter(handler.Services{
		Accounts:    service.NewAccountService(ledger),
		Orders:      service.NewOrderService(ledger, orderQueue, notifiers, logger),
		Instruments: service.NewInstrumentService(ledger, hub),
		Webhooks:    service.NewWebhookService(webhookStore, ledger),
		Hub:         hub,
		Limiter:     handler.NewAccountLimiter(cfg.OrderRateLimit, cfg.OrderRateBurst),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		if err := orderQueue.Consume(ctx, executor); err != nil {
			logger.Error("order consumer stopped", slog.String("error", err.Error()))
		}
	}()
	sweeper.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("store", cfg.StoreDriver),
			slog.String("queue", cfg.QueueDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Stop intake first, then the consumers. Jobs left on the queue are
	// picked up by the sweeper after restart.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := orderQueue.Close(); err != nil {
		logger.Warn("queue close", slog.String("error", err.Error()))
	}
	cancel()
	workers.Wait()

	webhooks.Wait()
	if events != nil {
		if err := events.Close(); err != nil {
			logger.Warn("event publisher close", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// openLedger returns the configured ledger. With migrateOnly the schema is
// migrated regardless of AUTO_MIGRATE.
func openLedger(cfg *config.Config, migrateOnly bool) (store.Ledger, error) {
	if cfg.StoreDriver != config.StorePostgres {
		if migrateOnly {
			return nil, errors.New("-migrate requires STORE_DRIVER=postgres")
		}
		return store.NewMemoryLedger(), nil
	}

	db, err := store.OpenPostgres(store.PostgresOption{ConnString: cfg.DatabaseURL})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate || migrateOnly {
		if err := store.Migrate(db); err != nil {
			return nil, err
		}
	}
	return store.NewGormLedger(db), nil
}
