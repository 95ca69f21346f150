package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"pending to processing", PaymentStatusPending, PaymentStatusProcessing, true},
		{"pending to cancelled", PaymentStatusPending, PaymentStatusCancelled, true},
		{"pending to expired", PaymentStatusPending, PaymentStatusExpired, true},
		{"processing to confirmed", PaymentStatusProcessing, PaymentStatusConfirmed, true},
		{"processing to cancelled", PaymentStatusProcessing, PaymentStatusCancelled, true},
		{"confirmed to refunded", PaymentStatusConfirmed, PaymentStatusRefunded, true},
		{"failed to processing (retry)", PaymentStatusFailed, PaymentStatusProcessing, true},
		{"expired to processing (retry)", PaymentStatusExpired, PaymentStatusProcessing, true},
		{"pending to refunded", PaymentStatusPending, PaymentStatusRefunded, false},
		{"pending to confirmed", PaymentStatusPending, PaymentStatusConfirmed, false},
		{"cancelled to processing", PaymentStatusCancelled, PaymentStatusProcessing, false},
		{"confirmed to cancelled", PaymentStatusConfirmed, PaymentStatusCancelled, false},
		{"refunded to anything", PaymentStatusRefunded, PaymentStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPayment_IsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status PaymentStatus
		want   bool
	}{
		{"pending", PaymentStatusPending, false},
		{"processing", PaymentStatusProcessing, false},
		{"confirmed", PaymentStatusConfirmed, true},
		{"refunded", PaymentStatusRefunded, true},
		{"failed", PaymentStatusFailed, true},
		{"expired", PaymentStatusExpired, true},
		{"cancelled", PaymentStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{Status: tt.status}
			assert.Equal(t, tt.want, p.IsTerminal())
		})
	}
}

func TestPayment_RemainingRefundable(t *testing.T) {
	p := &Payment{
		Amount:         decimal.RequireFromString("1.5"),
		RefundedAmount: decimal.RequireFromString("0.4"),
	}
	assert.True(t, p.RemainingRefundable().Equal(decimal.RequireFromString("1.1")))
}

func TestPayment_IsExpiredAt(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		status    PaymentStatus
		expiresAt time.Time
		want      bool
	}{
		{"pending past deadline", PaymentStatusPending, past, true},
		{"processing past deadline", PaymentStatusProcessing, past, true},
		{"pending before deadline", PaymentStatusPending, future, false},
		{"confirmed past deadline", PaymentStatusConfirmed, past, false},
		{"cancelled past deadline", PaymentStatusCancelled, past, false},
		{"no deadline", PaymentStatusPending, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, p.IsExpiredAt(now))
		})
	}
}

func TestEndpoint_SubscribedTo(t *testing.T) {
	e := &WebhookEndpoint{EventTypes: []EventType{EventPaymentConfirmed, EventPaymentRefunded}}
	assert.True(t, e.SubscribedTo(EventPaymentConfirmed))
	assert.False(t, e.SubscribedTo(EventPaymentFailed))
}

func TestEndpoint_Deliverable(t *testing.T) {
	now := time.Now()
	assert.True(t, (&WebhookEndpoint{Active: true}).Deliverable())
	assert.False(t, (&WebhookEndpoint{Active: false}).Deliverable())
	assert.False(t, (&WebhookEndpoint{Active: true, DeletedAt: &now}).Deliverable())
}

func TestDelivery_AttemptsInCycle(t *testing.T) {
	d := &Delivery{AttemptCount: 7, CycleStart: 5}
	assert.Equal(t, 2, d.AttemptsInCycle())
}

func TestDelivery_IsTerminal(t *testing.T) {
	assert.False(t, (&Delivery{Status: DeliveryStatusPending}).IsTerminal())
	assert.True(t, (&Delivery{Status: DeliveryStatusDelivered}).IsTerminal())
	assert.True(t, (&Delivery{Status: DeliveryStatusExhausted}).IsTerminal())
	assert.True(t, (&Delivery{Status: DeliveryStatusCancelled}).IsTerminal())
}
