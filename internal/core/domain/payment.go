package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency is an on-chain asset code accepted for payment.
type Currency string

const (
	CurrencySBTC Currency = "sbtc"
	CurrencyBTC  Currency = "btc"
	CurrencySTX  Currency = "stx"
)

// SupportedCurrencies is the allowed set for payment creation.
var SupportedCurrencies = map[Currency]bool{
	CurrencySBTC: true,
	CurrencyBTC:  true,
	CurrencySTX:  true,
}

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusCancelled  PaymentStatus = "CANCELLED"
)

// transitions is the full edge set of the payment state machine.
// Everything not listed here is an invalid transition.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCancelled, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusProcessing: {PaymentStatusConfirmed, PaymentStatusCancelled, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusConfirmed:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {PaymentStatusProcessing},
	PaymentStatusExpired:    {PaymentStatusProcessing},
}

// CanTransition reports whether from -> to is an edge in the state machine.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment represents one customer payment intent/settlement.
type Payment struct {
	ID             uuid.UUID         `json:"id"`
	ReferenceID    *string           `json:"reference_id,omitempty"` // Merchant-supplied identifier
	MerchantID     uuid.UUID         `json:"merchant_id"`
	Amount         decimal.Decimal   `json:"amount"`
	RefundedAmount decimal.Decimal   `json:"refunded_amount"`
	Currency       Currency          `json:"currency"`
	Description    string            `json:"description"`
	CustomerRef    *string           `json:"customer_ref,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"` // Merchant-supplied key/value annotations
	Status         PaymentStatus     `json:"status"`
	Version        int64             `json:"version"`
	ExpiresAt      time.Time         `json:"expires_at"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// IsTerminal returns true if no forward-processing transition remains.
// A failed or expired payment can still be pushed back into PROCESSING
// via an explicit retry, but the sweep treats these as settled.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusConfirmed, PaymentStatusRefunded, PaymentStatusFailed,
		PaymentStatusExpired, PaymentStatusCancelled:
		return true
	}
	return false
}

// RemainingRefundable returns the amount still eligible for refund.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// IsExpiredAt reports whether the payment's expiry deadline has passed
// while it was still in the active path.
func (p *Payment) IsExpiredAt(now time.Time) bool {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return false
	}
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
