package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"stackspay-gateway/config"
	httpHandler "stackspay-gateway/internal/adapter/http/handler"
	"stackspay-gateway/internal/adapter/http/middleware"
	pgStorage "stackspay-gateway/internal/adapter/storage/postgres"
	redisStorage "stackspay-gateway/internal/adapter/storage/redis"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/metrics"
	"stackspay-gateway/internal/service"
	"stackspay-gateway/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting StacksPay Gateway")

	ctx := context.Background()

	// Apply schema migrations before opening the pool
	if err := pgStorage.Migrate(cfg.Database.DSN()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	endpointRepo := pgStorage.NewEndpointRepo(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	registryCache := redisStorage.NewRegistryCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	scheduler := service.NewBackoffRetryScheduler(cfg.Webhook.BackoffBase, cfg.Webhook.BackoffCap, cfg.Webhook.MaxAttempts)

	// Metrics registry backing /metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Initialize business services
	registrySvc := service.NewRegistryService(
		endpointRepo,
		deliveryRepo,
		encSvc,
		registryCache,
		cfg.Webhook.RegistryCacheTTL,
		logger.WithComponent(log, "registry"),
	)
	bus := service.NewInProcessEventBus(
		registrySvc,
		deliveryRepo,
		cfg.Webhook.QueueDepth,
		m,
		logger.WithComponent(log, "event_bus"),
	)
	paymentSvc := service.NewPaymentService(
		paymentRepo,
		eventRepo,
		transactor,
		bus,
		cfg.Payment.DefaultExpiry,
		m,
		logger.WithComponent(log, "payment"),
	)
	deliverySvc := service.NewDeliveryService(
		deliveryRepo,
		eventRepo,
		endpointRepo,
		encSvc,
		sigSvc,
		scheduler,
		bus,
		&http.Client{Timeout: cfg.Webhook.RequestTimeout},
		service.DeliveryOptions{
			RequestTimeout:   cfg.Webhook.RequestTimeout,
			BodyLimitBytes:   int64(cfg.Webhook.BodyLimitBytes),
			SuccessRateAlpha: cfg.Webhook.SuccessRateAlpha,
			ClaimHold:        cfg.Webhook.ClaimHold,
			Livemode:         cfg.Webhook.Livemode,
		},
		m,
		logger.WithComponent(log, "delivery"),
	)

	// Background workers: delivery pool plus the two sweepers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go deliverySvc.Run(workerCtx, bus.Queue(), cfg.Webhook.Workers)

	deliverySweeper := service.NewDeliverySweeper(
		deliveryRepo,
		bus,
		cfg.Webhook.SweepInterval,
		cfg.Webhook.SweepBatch,
		m,
		logger.WithComponent(log, "delivery_sweep"),
	)
	go deliverySweeper.Run(workerCtx)

	expirySweeper := service.NewExpirySweeper(
		paymentRepo,
		paymentSvc,
		cfg.Payment.ExpirySweepInterval,
		cfg.Payment.ExpirySweepBatch,
		logger.WithComponent(log, "expiry_sweep"),
	)
	go expirySweeper.Run(workerCtx)

	// Provisioned API keys
	apiKeys := make([]middleware.APIKey, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		merchantID, err := uuid.Parse(k.MerchantID)
		if err != nil {
			log.Fatal().Str("key_id", k.ID).Msg("Invalid merchant_id in auth.api_keys")
		}
		apiKeys = append(apiKeys, middleware.APIKey{
			ID:         k.ID,
			MerchantID: merchantID,
			Hash:       k.Hash,
		})
	}
	if len(apiKeys) == 0 {
		log.Warn().Msg("No API keys configured, all authenticated routes will reject")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		RegistrySvc:    registrySvc,
		DeliverySvc:    deliverySvc,
		TokenSvc:       tokenSvc,
		HashSvc:        hashSvc,
		APIKeys:        apiKeys,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		MetricsReg:     reg,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown: stop accepting requests, then stop the workers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stopWorkers()

	log.Info().Msg("Server exited")
}
