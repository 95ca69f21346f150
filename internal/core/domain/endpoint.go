package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a merchant-registered delivery target.
// The plaintext secret is returned exactly once at creation (and on
// rotation); at rest only the encrypted form is kept.
type WebhookEndpoint struct {
	ID          uuid.UUID   `json:"id"`
	MerchantID  uuid.UUID   `json:"merchant_id"`
	URL         string      `json:"url"`
	Description string      `json:"description"`
	EventTypes  []EventType `json:"event_types"`
	Active      bool        `json:"active"`
	SecretEnc   string      `json:"-"`            // AES-GCM encrypted, never exposed
	SuccessRate float64     `json:"success_rate"` // EWMA over delivery outcomes
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"-"` // Tombstone; historical attempts keep referencing the row
}

// SubscribedTo reports whether the endpoint listens for the event type.
func (e *WebhookEndpoint) SubscribedTo(t EventType) bool {
	for _, et := range e.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Deliverable returns true if new deliveries may be scheduled for the
// endpoint. Historical log entries are unaffected by this flag.
func (e *WebhookEndpoint) Deliverable() bool {
	return e.Active && e.DeletedAt == nil
}
