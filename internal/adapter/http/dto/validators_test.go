package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreatePaymentRequest{
		Amount:      "  10.5  ",
		Currency:    "  sbtc  ",
		Description: " coffee ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "10.5", req.Amount)
	assert.Equal(t, "sbtc", req.Currency)
	assert.Equal(t, "coffee", req.Description)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	reason := "customer <script>alert('x')</script> request"
	req := RefundPaymentRequest{
		Reason: reason,
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Reason, "&lt;script&gt;")
	assert.NotContains(t, req.Reason, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	ref := "  order-42  "
	req := CreatePaymentRequest{
		Amount:      "1",
		Currency:    "sbtc",
		ReferenceID: &ref,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "order-42", *req.ReferenceID)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := CreatePaymentRequest{
		Amount:      "1",
		Currency:    "sbtc",
		ReferenceID: nil,
	}
	SanitizeStruct(&req)
	assert.Nil(t, req.ReferenceID)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"order-001",
		"ORDER_002",
		"a.b.c",
		"simple123",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"order 001",   // space
		"order<001>",  // angle brackets
		"order;DROP",  // semicolon
		"",            // empty
		"hello world", // space
		"order\n001",  // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestSanitizeStruct_UpdateEndpointRequest(t *testing.T) {
	desc := "  order hooks <b>prod</b>  "
	req := UpdateEndpointRequest{
		Description: &desc,
	}
	SanitizeStruct(&req)

	assert.Equal(t, "order hooks &lt;b&gt;prod&lt;/b&gt;", *req.Description)
}
