package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Header names carried alongside every webhook delivery. Receivers verify
// X-Signature over the raw body and reject requests whose X-Timestamp
// falls outside the configured skew window.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA256 of the raw payload bytes using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks if signature matches HMAC-SHA256(secret, payload).
// Uses constant-time comparison to prevent timing attacks.
func (s *HMACSignatureService) Verify(secret string, payload []byte, signature string) bool {
	expected := s.Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWithTimestamp verifies the signature and rejects requests whose
// timestamp is more than skew away from now, stopping replays of old
// deliveries.
func (s *HMACSignatureService) VerifyWithTimestamp(secret string, payload []byte, signature string, timestamp int64, now time.Time, skew time.Duration) bool {
	ts := time.Unix(timestamp, 0)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > skew {
		return false
	}
	return s.Verify(secret, payload, signature)
}
