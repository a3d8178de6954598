package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/api"
	"github.com/paygrid/payment-orchestrator/internal/config"
	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/providers"
	"github.com/paygrid/payment-orchestrator/internal/repository"
	"github.com/paygrid/payment-orchestrator/internal/service"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-orchestrator"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Orchestrator")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	paymentRepo := repository.NewPaymentRepository(db)
	if err := paymentRepo.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})

	// Connect to NATS for the settlement rate service
	var rates interfaces.RateSource
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		rates = service.NewNATSRateSource(nc)
	} else {
		telemetry.Logger.Warn("NATS_URL not set; settlement conversion disabled")
	}

	// Connect to Kafka; topics come from the outbox rows
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Provider registry
	registry := providers.NewRegistry()
	registry.Register(providers.NewSandbox(cfg.ProviderSecrets["sandbox"]))

	// Core services
	breaker := service.NewCircuitBreaker(5, 60*time.Second)
	dispatcher := service.NewDispatcher(registry, breaker, service.DefaultDispatcherConfig(), telemetry.Logger)
	settlement := service.NewSettlementService(rates, cfg.SettlementCurrency, telemetry.Logger)
	notifier := service.NewWebhookNotifier(service.NotifierConfig{
		MerchantURLs: cfg.MerchantWebhookURLs,
		DefaultURL:   cfg.DefaultWebhookURL,
		Secret:       cfg.WebhookSecret,
		Workers:      4,
	}, telemetry.Logger)
	gate := service.NewIdempotencyGate(idempotencyRepo, redisClient, telemetry.Logger)
	orchestrator := service.NewOrchestrator(paymentRepo, gate, dispatcher, settlement, notifier, telemetry.Logger)
	reconciler := service.NewReconciler(paymentRepo, registry, orchestrator, telemetry.Logger)

	// Outbox publisher loop
	publisherCtx, stopPublisher := context.WithCancel(context.Background())
	publisher := service.NewOutboxPublisher(outboxRepo, kafkaWriter, service.DefaultOutboxPublisherConfig(), telemetry.Logger)
	go publisher.Run(publisherCtx)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(orchestrator, reconciler),
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Payment Orchestrator starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopPublisher()
	notifier.Close()

	telemetry.Logger.Info("Server exited")
}
