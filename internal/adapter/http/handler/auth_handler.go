package handler

import (
	"net/http"

	"stackspay-gateway/internal/adapter/http/dto"
	"stackspay-gateway/internal/adapter/http/middleware"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues capability tokens. The route sits behind API key
// auth, so a valid key is traded for a short-lived bearer token used on
// transition and redelivery routes.
type AuthHandler struct {
	tokenSvc ports.TokenService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(tokenSvc ports.TokenService) *AuthHandler {
	return &AuthHandler{tokenSvc: tokenSvc}
}

// IssueToken handles POST /api/v1/auth/token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	token, expiry, err := h.tokenSvc.Generate(merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TokenResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// HealthCheck handles GET /healthz, verifying all dependencies.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
