package ports

import (
	"context"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepository defines persistence operations for payments.
// Methods accepting pgx.Tx run inside the transition transaction so the
// payment row, its domain event and its delivery rows commit atomically.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// ApplyTransition persists a transitioned payment with a compare-and-swap
	// on the version column. Returns false when another writer won the race.
	ApplyTransition(ctx context.Context, tx pgx.Tx, p *domain.Payment, expectedVersion int64) (bool, error)
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	// ListExpirable returns active payments whose expiry deadline has passed.
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	MerchantID uuid.UUID
	Status     *domain.PaymentStatus
	Page       int
	PageSize   int
}

// EventRepository persists immutable domain events.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, e *domain.DomainEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DomainEvent, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.DomainEvent, error)
}

// DeliveryRepository persists delivery pairs and their attempt log.
// Pending rows double as the durable outbox: the sweep re-enqueues any
// row whose next_attempt_at has passed, so a full worker queue never
// drops a notification.
type DeliveryRepository interface {
	CreateBatch(ctx context.Context, ds []*domain.Delivery) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	GetByEventAndEndpoint(ctx context.Context, eventID, endpointID uuid.UUID) (*domain.Delivery, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error)
	// ListDue returns up to limit pending deliveries whose next attempt
	// is due. The sweep feeds these ids back into the worker queue;
	// duplicates are harmless because Claim is the exclusive gate.
	ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	// Claim atomically wins the right to attempt a pending due delivery
	// by pushing next_attempt_at to now+hold. Returns nil when the row
	// is terminal, not yet due, or already claimed by another worker,
	// so every write to a pair is serialized through exactly one winner.
	Claim(ctx context.Context, id uuid.UUID, now time.Time, hold time.Duration) (*domain.Delivery, error)
	// RecordAttempt appends an attempt row and updates the pair state in
	// one transaction. Attempt numbers stay contiguous per pair.
	RecordAttempt(ctx context.Context, d *domain.Delivery, a *domain.DeliveryAttempt) error
	// Reset re-enqueues a terminal pair for a fresh manual cycle.
	Reset(ctx context.Context, id uuid.UUID, at time.Time) error
	ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error)
	// CancelPendingByEndpoint cancels future scheduled attempts for an
	// endpoint. Attempts already in flight complete and are logged.
	CancelPendingByEndpoint(ctx context.Context, endpointID uuid.UUID) (int64, error)
}

// EndpointRepository persists merchant webhook endpoints.
// Rows are soft-deleted so historical delivery attempts keep a valid
// endpoint reference.
type EndpointRepository interface {
	Create(ctx context.Context, e *domain.WebhookEndpoint) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error)
	// ListActiveByEventType returns the merchant's deliverable endpoints
	// subscribed to an event type. Fan-out never crosses merchants.
	ListActiveByEventType(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, error)
	Update(ctx context.Context, e *domain.WebhookEndpoint) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
	// UpdateSuccessRate folds one delivery outcome (1 success, 0 failure)
	// into the endpoint's EWMA success rate atomically in SQL.
	UpdateSuccessRate(ctx context.Context, id uuid.UUID, alpha, outcome float64) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
