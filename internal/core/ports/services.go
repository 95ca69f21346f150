package ports

import (
	"context"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
// Used to keep endpoint secrets recoverable for signing without ever
// storing them in plaintext.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing of webhook payloads and
// verification of inbound signatures within a clock-skew window.
type SignatureService interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
	// VerifyWithTimestamp additionally rejects signatures whose timestamp
	// falls outside the skew window around now.
	VerifyWithTimestamp(secret string, payload []byte, signature string, timestamp int64, now time.Time, skew time.Duration) bool
}

// HashService handles API-key hashing (Argon2id). Key CRUD lives in the
// external configuration layer; this core only verifies presented keys.
type HashService interface {
	Hash(key string) (string, error)
	Verify(key string, hash string) (bool, error)
}

// TokenService handles the capability tokens the dashboard layer attaches
// to mutating requests.
type TokenService interface {
	Generate(merchantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed capability claims.
type TokenClaims struct {
	MerchantID uuid.UUID
}

// RegistryCache is the Redis-layer cache over the subscriber read path.
// Registry mutations invalidate it so deactivations take effect without
// waiting for TTL expiry.
type RegistryCache interface {
	GetSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, bool, error)
	SetSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType, endpoints []domain.WebhookEndpoint, ttl time.Duration) error
	// Invalidate drops the merchant's cached subscriber sets.
	Invalidate(ctx context.Context, merchantID uuid.UUID) error
}

// --- Service Ports (Business Logic) ---

// PaymentService is the state machine: the sole writer of payment status.
// Every accepted transition bumps the version and emits exactly one
// domain event; rejected transitions change nothing.
type PaymentService interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error)
	Confirm(ctx context.Context, id uuid.UUID, expectedVersion int64, confirmationProof string) (*domain.Payment, error)
	Cancel(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error)
	Refund(ctx context.Context, req RefundRequest) (*domain.Payment, error)
	Fail(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string) (*domain.Payment, error)
	Retry(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error)
	// Expire is invoked by the time-based sweep, not a user action.
	// Calling it on an already-terminal payment is a no-op, not an error.
	Expire(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.DomainEvent, error)
}

// CreatePaymentRequest holds validated input for payment creation.
type CreatePaymentRequest struct {
	MerchantID  uuid.UUID
	ReferenceID *string
	Amount      decimal.Decimal
	Currency    string
	Description string
	CustomerRef *string
	Metadata    map[string]string
	ExpiresIn   time.Duration // Zero means the configured default
}

// RefundRequest holds validated input for refund processing.
type RefundRequest struct {
	PaymentID       uuid.UUID
	ExpectedVersion int64
	Amount          *decimal.Decimal // nil = refund the full remaining amount
	Reason          string
}

// EventBus fans a domain event out to subscribed endpoints. Publish is
// fire-and-forget from the state machine's perspective: at-least-once
// delivery, never blocking the publishing transition.
type EventBus interface {
	Publish(ctx context.Context, event *domain.DomainEvent)
}

// RetryScheduler decides when a failed delivery is retried and when it
// is abandoned.
type RetryScheduler interface {
	// ShouldRetry reports whether the pair has retry budget left in the
	// current cycle.
	ShouldRetry(d *domain.Delivery) bool
	// NextDelay returns the backoff before attempt n (1-based), jittered.
	NextDelay(attemptInCycle int) time.Duration
	// MaxAttempts is the per-cycle attempt budget.
	MaxAttempts() int
}

// DeliveryService covers the delivery operations reachable from the API:
// synchronous endpoint tests and manual event redelivery. Every operation
// is scoped to the calling merchant; foreign reads resolve as not found.
type DeliveryService interface {
	// TestEndpoint performs one synchronous attempt with a synthetic event,
	// bypassing the retry scheduler. Nothing is persisted.
	TestEndpoint(ctx context.Context, endpointID uuid.UUID) (*TestDeliveryResult, error)
	// Redeliver re-enqueues a terminal (event, endpoint) pair for a fresh
	// retry cycle. A foreign event is rejected as forbidden.
	Redeliver(ctx context.Context, merchantID, eventID, endpointID uuid.UUID) error
	ListDeliveries(ctx context.Context, merchantID, eventID uuid.UUID) ([]domain.Delivery, error)
	ListAttempts(ctx context.Context, merchantID, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error)
}

// TestDeliveryResult is the immediate outcome of a test delivery.
type TestDeliveryResult struct {
	Outcome    domain.AttemptOutcome `json:"outcome"`
	HTTPStatus *int                  `json:"http_status,omitempty"`
	Body       string                `json:"body,omitempty"`
	Duration   time.Duration         `json:"duration_ms"`
}

// RegistryService owns webhook endpoint configuration. The plaintext
// secret is returned exactly once at creation and on rotation.
type RegistryService interface {
	CreateEndpoint(ctx context.Context, req CreateEndpointRequest) (*domain.WebhookEndpoint, string, error)
	GetEndpoint(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error)
	UpdateEndpoint(ctx context.Context, id uuid.UUID, req UpdateEndpointRequest) (*domain.WebhookEndpoint, error)
	// DeleteEndpoint tombstones the row and cancels scheduled retries.
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
	// RotateSecret replaces the secret. In-flight retries keep signing
	// with the snapshot captured at publish time.
	RotateSecret(ctx context.Context, id uuid.UUID) (string, error)
	// ListActiveSubscribers is the hot read path used by the event bus.
	// Subscribers are resolved within the event's merchant only.
	ListActiveSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, error)
}

// CreateEndpointRequest holds validated input for endpoint registration.
type CreateEndpointRequest struct {
	MerchantID  uuid.UUID
	URL         string
	Description string
	EventTypes  []domain.EventType
}

// UpdateEndpointRequest holds a partial endpoint update.
type UpdateEndpointRequest struct {
	URL         *string
	Description *string
	EventTypes  []domain.EventType
	Active      *bool
}
