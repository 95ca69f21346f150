package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of one (event, endpoint) delivery pair.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusExhausted DeliveryStatus = "EXHAUSTED"
	DeliveryStatusCancelled DeliveryStatus = "CANCELLED"
)

// Delivery tracks the lifecycle of notifying one endpoint of one event.
// The row is written durably with the publishing transition, so a full
// worker queue never loses a notification: the sweep re-enqueues any
// pending row whose NextAttemptAt has passed.
//
// SecretEnc snapshots the endpoint secret at publish time. Rotating the
// endpoint secret afterwards must not change the signature of retries
// already in flight.
type Delivery struct {
	ID            uuid.UUID      `json:"id"`
	EventID       uuid.UUID      `json:"event_id"`
	EndpointID    uuid.UUID      `json:"endpoint_id"`
	Status        DeliveryStatus `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	CycleStart    int            `json:"cycle_start"` // AttemptCount at the start of the current retry cycle
	SecretEnc     string         `json:"-"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// AttemptsInCycle returns how many attempts the current retry cycle has
// consumed. A manual redelivery starts a fresh cycle without breaking the
// contiguous global attempt numbering.
func (d *Delivery) AttemptsInCycle() int {
	return d.AttemptCount - d.CycleStart
}

// IsTerminal reports whether the pair has reached its one terminal outcome.
func (d *Delivery) IsTerminal() bool {
	return d.Status == DeliveryStatusDelivered ||
		d.Status == DeliveryStatusExhausted ||
		d.Status == DeliveryStatusCancelled
}

// AttemptOutcome classifies a single delivery attempt result.
type AttemptOutcome string

const (
	AttemptOutcomeSuccess AttemptOutcome = "SUCCESS"
	AttemptOutcomeFailure AttemptOutcome = "FAILURE"
	AttemptOutcomeTimeout AttemptOutcome = "TIMEOUT"
)

// DeliveryAttempt records one HTTP try for one delivery pair.
// Attempt numbers are 1-based and contiguous per pair.
type DeliveryAttempt struct {
	ID           uuid.UUID      `json:"id"`
	DeliveryID   uuid.UUID      `json:"delivery_id"`
	AttemptNo    int            `json:"attempt_no"`
	Outcome      AttemptOutcome `json:"outcome"`
	HTTPStatus   *int           `json:"http_status,omitempty"`
	ResponseBody string         `json:"response_body,omitempty"` // Truncated
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
