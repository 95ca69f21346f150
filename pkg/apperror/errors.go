package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Payment Lifecycle (PAY) ----

func ErrInvalidAmount() *AppError {
	return New("PAY_001", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrUnsupportedCurrency(currency string) *AppError {
	return New("PAY_002", fmt.Sprintf("Currency %q is not supported", currency), http.StatusBadRequest)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("PAY_003", fmt.Sprintf("Cannot transition payment from %s to %s", from, to), http.StatusUnprocessableEntity)
}

func ErrVersionConflict() *AppError {
	return New("PAY_004", "Payment was modified concurrently, re-read and retry", http.StatusConflict)
}

func ErrRefundExceedsAmount() *AppError {
	return New("PAY_005", "Refund amount exceeds remaining refundable amount", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_006", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrMissingConfirmationProof() *AppError {
	return New("PAY_007", "Confirmation proof is required", http.StatusBadRequest)
}

// ---- Webhook Delivery (WHK) ----

func ErrEndpointNotFound() *AppError {
	return New("WHK_001", "Webhook endpoint not found", http.StatusNotFound)
}

func ErrInvalidEventType(t string) *AppError {
	return New("WHK_002", fmt.Sprintf("Unknown event type %q", t), http.StatusBadRequest)
}

func ErrEndpointInactive() *AppError {
	return New("WHK_003", "Webhook endpoint is deactivated", http.StatusUnprocessableEntity)
}

func ErrDeliveryNotRedeliverable() *AppError {
	return New("WHK_004", "Delivery is still in progress and cannot be re-enqueued", http.StatusConflict)
}

func ErrInvalidEndpointURL() *AppError {
	return New("WHK_005", "Endpoint URL must be a valid http(s) URL", http.StatusBadRequest)
}

// ---- Capability & Security (SEC) ----

func ErrInvalidToken() *AppError {
	return New("SEC_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidAPIKey() *AppError {
	return New("SEC_002", "Invalid API key", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("SEC_003", "Actor is not permitted to mutate this resource", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_002", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
