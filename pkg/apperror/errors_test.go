package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	e := New("PAY_003", "Cannot transition", http.StatusUnprocessableEntity)
	assert.Equal(t, "[PAY_003] Cannot transition", e.Error())

	wrapped := Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, errors.New("conn refused"))
	assert.Contains(t, wrapped.Error(), "conn refused")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := InternalError(cause)
	assert.True(t, errors.Is(e, cause))
}

func TestTaxonomyStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code string
		http int
	}{
		{"invalid amount", ErrInvalidAmount(), "PAY_001", http.StatusBadRequest},
		{"unsupported currency", ErrUnsupportedCurrency("doge"), "PAY_002", http.StatusBadRequest},
		{"invalid transition", ErrInvalidTransition("PENDING", "REFUNDED"), "PAY_003", http.StatusUnprocessableEntity},
		{"version conflict", ErrVersionConflict(), "PAY_004", http.StatusConflict},
		{"refund exceeds", ErrRefundExceedsAmount(), "PAY_005", http.StatusBadRequest},
		{"not found", ErrNotFound("payment"), "PAY_006", http.StatusNotFound},
		{"endpoint not found", ErrEndpointNotFound(), "WHK_001", http.StatusNotFound},
		{"invalid event type", ErrInvalidEventType("payment.teleported"), "WHK_002", http.StatusBadRequest},
		{"invalid token", ErrInvalidToken(), "SEC_001", http.StatusUnauthorized},
		{"rate limited", ErrRateLimitExceeded(), "RATE_001", http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.http, tt.err.HTTPStatus)
		})
	}
}

func TestErrUnsupportedCurrency_Message(t *testing.T) {
	assert.Contains(t, ErrUnsupportedCurrency("doge").Message, "doge")
}
