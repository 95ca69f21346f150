package handler

import (
	"stackspay-gateway/internal/adapter/http/middleware"
	redisStore "stackspay-gateway/internal/adapter/storage/redis"
	"stackspay-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	RegistrySvc    ports.RegistryService
	DeliverySvc    ports.DeliveryService
	TokenSvc       ports.TokenService
	HashSvc        ports.HashService
	APIKeys        []middleware.APIKey
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	MetricsReg     *prometheus.Registry // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL and Redis)
	r.GET("/healthz", HealthCheck(deps.HealthCheckers...))

	if deps.MetricsReg != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsReg, promhttp.HandlerOpts{})))
	}

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	apiKeyAuth := middleware.APIKeyAuth(deps.APIKeys, deps.HashSvc, deps.Logger)
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	// --- Token issuance (API key -> capability token) ---
	authHandler := NewAuthHandler(deps.TokenSvc)
	v1.POST("/auth/token", apiKeyAuth, rl("reads"), authHandler.IssueToken)

	// --- Payment intake and reads (merchant API key) ---
	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments", apiKeyAuth)
	{
		payments.POST("", rl("payments"), paymentHandler.Create)
		payments.GET("", rl("reads"), paymentHandler.List)
		payments.GET("/:id", rl("reads"), paymentHandler.Get)
		payments.GET("/:id/events", rl("reads"), paymentHandler.ListEvents)
	}

	// --- Payment transitions (capability token, If-Match version) ---
	transitions := v1.Group("/payments", jwtAuth)
	{
		transitions.POST("/:id/processing", rl("payments_mutate"), paymentHandler.MarkProcessing)
		transitions.POST("/:id/confirm", rl("payments_mutate"), paymentHandler.Confirm)
		transitions.POST("/:id/cancel", rl("payments_mutate"), paymentHandler.Cancel)
		transitions.POST("/:id/refund", rl("payments_mutate"), paymentHandler.Refund)
		transitions.POST("/:id/retry", rl("payments_mutate"), paymentHandler.Retry)
		transitions.POST("/:id/fail", rl("payments_mutate"), paymentHandler.Fail)
	}

	// --- Webhook endpoint registry (merchant API key) ---
	endpointHandler := NewEndpointHandler(deps.RegistrySvc, deps.DeliverySvc)
	endpoints := v1.Group("/webhook-endpoints", apiKeyAuth)
	{
		endpoints.POST("", rl("endpoints"), endpointHandler.Create)
		endpoints.GET("", rl("reads"), endpointHandler.List)
		endpoints.GET("/:id", rl("reads"), endpointHandler.Get)
		endpoints.PATCH("/:id", rl("endpoints"), endpointHandler.Update)
		endpoints.DELETE("/:id", rl("endpoints"), endpointHandler.Delete)
		endpoints.POST("/:id/rotate-secret", rl("endpoints"), endpointHandler.RotateSecret)
		endpoints.POST("/:id/test", rl("endpoints"), endpointHandler.Test)
	}

	// --- Delivery log and manual redelivery ---
	eventHandler := NewEventHandler(deps.DeliverySvc)
	events := v1.Group("/events", apiKeyAuth)
	{
		events.GET("/:id/deliveries", rl("reads"), eventHandler.ListDeliveries)
	}
	v1.POST("/events/:id/redeliver", jwtAuth, rl("redeliver"), eventHandler.Redeliver)
	v1.GET("/deliveries/:id/attempts", apiKeyAuth, rl("reads"), eventHandler.ListAttempts)

	return r
}
