package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	redisStore "stackspay-gateway/internal/adapter/storage/redis"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
// Mutating groups are tighter than reads; redelivery is tightest since
// each call re-opens a full retry cycle against a remote host.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"payments":        {Limit: 100, Window: time.Minute},
		"payments_mutate": {Limit: 60, Window: time.Minute},
		"endpoints":       {Limit: 30, Window: time.Minute},
		"redeliver":       {Limit: 10, Window: time.Minute},
		"reads":           {Limit: 300, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source. The key id
// prefix of the API key is stable per merchant and safe to use as a
// bucket; unauthenticated requests fall back to client IP.
func extractIdentifier(c *gin.Context) string {
	if mid, exists := c.Get(CtxMerchantID); exists {
		return fmt.Sprintf("%v", mid)
	}
	if ak := c.GetHeader(HeaderAPIKey); ak != "" {
		keyID, _, _ := strings.Cut(ak, ".")
		return keyID
	}
	return c.ClientIP()
}
