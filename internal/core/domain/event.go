package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies which payment transition an event records.
type EventType string

const (
	EventPaymentCreated    EventType = "payment.created"
	EventPaymentProcessing EventType = "payment.processing"
	EventPaymentConfirmed  EventType = "payment.confirmed"
	EventPaymentCancelled  EventType = "payment.cancelled"
	EventPaymentRefunded   EventType = "payment.refunded"
	EventPaymentFailed     EventType = "payment.failed"
	EventPaymentExpired    EventType = "payment.expired"
	EventPaymentRetrying   EventType = "payment.retrying"
	// EventPing is the synthetic type used for endpoint test deliveries.
	EventPing EventType = "ping"
)

// KnownEventTypes is the set an endpoint may subscribe to.
var KnownEventTypes = map[EventType]bool{
	EventPaymentCreated:    true,
	EventPaymentProcessing: true,
	EventPaymentConfirmed:  true,
	EventPaymentCancelled:  true,
	EventPaymentRefunded:   true,
	EventPaymentFailed:     true,
	EventPaymentExpired:    true,
	EventPaymentRetrying:   true,
}

// PaymentSnapshot is the immutable payload captured at transition time.
// Field order is fixed so the serialized form (and therefore the
// delivery signature) is reproducible.
type PaymentSnapshot struct {
	ID             uuid.UUID         `json:"id"`
	ReferenceID    *string           `json:"reference_id,omitempty"`
	Amount         decimal.Decimal   `json:"amount"`
	RefundedAmount decimal.Decimal   `json:"refunded_amount"`
	Currency       Currency          `json:"currency"`
	Status         PaymentStatus     `json:"status"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	// Reason carries the actor-supplied context on refund and failure
	// events; empty otherwise.
	Reason *string `json:"reason,omitempty"`
}

// SnapshotOf captures the payment fields carried in an event payload.
func SnapshotOf(p *Payment) PaymentSnapshot {
	return PaymentSnapshot{
		ID:             p.ID,
		ReferenceID:    p.ReferenceID,
		Amount:         p.Amount,
		RefundedAmount: p.RefundedAmount,
		Currency:       p.Currency,
		Status:         p.Status,
		Description:    p.Description,
		Metadata:       p.Metadata,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
	}
}

// DomainEvent is an immutable fact describing one accepted payment
// transition. Exactly one is emitted per accepted transition.
type DomainEvent struct {
	ID             uuid.UUID       `json:"id"`
	Type           EventType       `json:"type"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	PaymentVersion int64           `json:"payment_version"`
	Payload        PaymentSnapshot `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}
