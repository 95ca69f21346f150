package middleware

import (
	"net/http"
	"strings"
	"time"

	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderAPIKey carries the merchant API key as "<key-id>.<secret>".
	HeaderAPIKey = "X-API-Key"
	// HeaderRequestID echoes the request id assigned to each request.
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxMerchantID = "merchant_id"
	CtxRequestID  = "request_id"
)

// APIKey is one configured merchant credential. Only the Argon2id hash
// of the secret part is held in memory.
type APIKey struct {
	ID         string
	MerchantID uuid.UUID
	Hash       string
}

// APIKeyAuth verifies the X-API-Key header against the configured key
// set. Key provisioning lives in the deployment configuration; this
// middleware only verifies presented secrets.
func APIKeyAuth(keys []APIKey, hashSvc ports.HashService, log zerolog.Logger) gin.HandlerFunc {
	byID := make(map[string]APIKey, len(keys))
	for _, k := range keys {
		byID[k.ID] = k
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAPIKey)
		keyID, secret, found := strings.Cut(raw, ".")
		if !found || keyID == "" || secret == "" {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		key, ok := byID[keyID]
		if !ok {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		match, err := hashSvc.Verify(secret, key.Hash)
		if err != nil {
			log.Error().Err(err).Str("key_id", keyID).Msg("api key verification failed")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !match {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, key.MerchantID)
		c.Next()
	}
}

// JWTAuth validates the capability token attached to mutating requests.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxMerchantID, claims.MerchantID)
		c.Next()
	}
}

// MerchantID returns the authenticated merchant id from the context.
func MerchantID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(CtxMerchantID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequestID assigns each request a uuid, echoed in the response header
// and attached to the log context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
