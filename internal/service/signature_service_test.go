package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHMACSignatureService_SignAndVerify(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte(`{"id":"evt_1","type":"payment.confirmed"}`)
	sig := svc.Sign("whsec_test", payload)

	assert.Len(t, sig, 64, "hex-encoded SHA-256 is 64 chars")
	assert.True(t, svc.Verify("whsec_test", payload, sig))
}

func TestHMACSignatureService_Verify_WrongSecret(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte("payload")
	sig := svc.Sign("secret-a", payload)

	assert.False(t, svc.Verify("secret-b", payload, sig))
}

func TestHMACSignatureService_Verify_TamperedPayload(t *testing.T) {
	svc := NewHMACSignatureService()

	sig := svc.Sign("secret", []byte(`{"amount":"1.0"}`))

	assert.False(t, svc.Verify("secret", []byte(`{"amount":"9.0"}`), sig))
}

func TestHMACSignatureService_Sign_Deterministic(t *testing.T) {
	svc := NewHMACSignatureService()

	payload := []byte("same payload")
	assert.Equal(t, svc.Sign("k", payload), svc.Sign("k", payload))
}

func TestHMACSignatureService_VerifyWithTimestamp(t *testing.T) {
	svc := NewHMACSignatureService()
	now := time.Now()
	skew := 5 * time.Minute
	payload := []byte("payload")
	sig := svc.Sign("secret", payload)

	tests := []struct {
		name      string
		timestamp int64
		want      bool
	}{
		{"fresh", now.Unix(), true},
		{"just inside window", now.Add(-4 * time.Minute).Unix(), true},
		{"stale", now.Add(-6 * time.Minute).Unix(), false},
		{"future beyond window", now.Add(6 * time.Minute).Unix(), false},
		{"slightly future", now.Add(time.Minute).Unix(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.VerifyWithTimestamp("secret", payload, sig, tt.timestamp, now, skew))
		})
	}
}

func TestHMACSignatureService_VerifyWithTimestamp_BadSignature(t *testing.T) {
	svc := NewHMACSignatureService()
	now := time.Now()

	assert.False(t, svc.VerifyWithTimestamp("secret", []byte("payload"), "deadbeef", now.Unix(), now, 5*time.Minute))
}
