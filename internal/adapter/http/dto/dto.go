package dto

// CreatePaymentRequest is the request body for payment creation.
// Amount travels as a string so precision survives JSON number parsing.
type CreatePaymentRequest struct {
	Amount      string            `json:"amount" binding:"required,max=40"`
	Currency    string            `json:"currency" binding:"required,oneof=sbtc btc stx"`
	Description string            `json:"description" binding:"max=500"`
	ReferenceID *string           `json:"reference_id,omitempty" binding:"omitempty,min=1,max=100,safe_id"`
	CustomerRef *string           `json:"customer_ref,omitempty" binding:"omitempty,max=100"`
	Metadata    map[string]string `json:"metadata,omitempty" binding:"omitempty,max=50"`
	ExpiresIn   int64             `json:"expires_in,omitempty" binding:"omitempty,gt=0,lte=604800"` // seconds; 0 = configured default
}

// ConfirmPaymentRequest is the request body for the confirmation step.
// The proof requirement is enforced by the state machine, not binding,
// so the caller gets the payment-taxonomy error rather than a generic
// validation failure.
type ConfirmPaymentRequest struct {
	ConfirmationProof string `json:"confirmation_proof" binding:"max=500"`
}

// FailPaymentRequest is the request body for marking a payment failed.
type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// RefundPaymentRequest is the request body for refund processing.
// Amount is optional; omitting it refunds the full remaining amount.
type RefundPaymentRequest struct {
	Amount *string `json:"amount,omitempty" binding:"omitempty,max=40"`
	Reason string  `json:"reason" binding:"required,max=500"`
}

// ListPaymentsQuery holds the query string for payment listing.
type ListPaymentsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=PENDING PROCESSING CONFIRMED REFUNDED FAILED EXPIRED CANCELLED"`
	Page   int    `form:"page" binding:"omitempty,gte=1"`
	Limit  int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
}

// CreateEndpointRequest is the request body for webhook endpoint
// registration.
type CreateEndpointRequest struct {
	URL         string   `json:"url" binding:"required,max=2048,safe_url"`
	Description string   `json:"description" binding:"max=500"`
	EventTypes  []string `json:"event_types" binding:"required,min=1,dive,min=1,max=64"`
}

// UpdateEndpointRequest is the request body for a partial endpoint
// update. Nil fields are left untouched.
type UpdateEndpointRequest struct {
	URL         *string  `json:"url,omitempty" binding:"omitempty,max=2048,safe_url"`
	Description *string  `json:"description,omitempty" binding:"omitempty,max=500"`
	EventTypes  []string `json:"event_types,omitempty" binding:"omitempty,min=1,dive,min=1,max=64"`
	Active      *bool    `json:"active,omitempty"`
}

// RedeliverQuery holds the query string for manual redelivery.
type RedeliverQuery struct {
	EndpointID string `form:"endpoint_id" binding:"required,uuid"`
}

// TokenResponse carries an issued capability token.
type TokenResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// PaymentResponse is the response body for a single payment.
type PaymentResponse struct {
	ID             string            `json:"id"`
	ReferenceID    *string           `json:"reference_id,omitempty"`
	Amount         string            `json:"amount"`
	RefundedAmount string            `json:"refunded_amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	CustomerRef    *string           `json:"customer_ref,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Status         string            `json:"status"`
	Version        int64             `json:"version"`
	ExpiresAt      string            `json:"expires_at"`
	CreatedAt      string            `json:"created_at"`
	CompletedAt    *string           `json:"completed_at,omitempty"`
}

// PaymentDetailResponse is a payment plus its ordered event timeline.
type PaymentDetailResponse struct {
	PaymentResponse
	Events []EventResponse `json:"events"`
}

// SnapshotResponse is the payment state captured in an event payload.
type SnapshotResponse struct {
	ID             string            `json:"id"`
	ReferenceID    *string           `json:"reference_id,omitempty"`
	Amount         string            `json:"amount"`
	RefundedAmount string            `json:"refunded_amount"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ExpiresAt      string            `json:"expires_at"`
	CreatedAt      string            `json:"created_at"`
	CompletedAt    *string           `json:"completed_at,omitempty"`
	Reason         *string           `json:"reason,omitempty"`
}

// EventResponse is the response body for one domain event.
type EventResponse struct {
	ID             string           `json:"id"`
	Type           string           `json:"type"`
	PaymentID      string           `json:"payment_id"`
	PaymentVersion int64            `json:"payment_version"`
	Payload        SnapshotResponse `json:"payload"`
	CreatedAt      string           `json:"created_at"`
}

// EndpointResponse is the response body for a webhook endpoint. The
// secret is never included; see CreateEndpointResponse.
type EndpointResponse struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	EventTypes  []string `json:"event_types"`
	Active      bool     `json:"active"`
	SuccessRate float64  `json:"success_rate"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// CreateEndpointResponse carries the plaintext signing secret. It is
// returned exactly once; afterwards only rotation yields a new one.
type CreateEndpointResponse struct {
	EndpointResponse
	Secret string `json:"secret"`
}

// RotateSecretResponse carries the replacement signing secret.
type RotateSecretResponse struct {
	Secret string `json:"secret"`
}

// DeliveryResponse is the response body for one (event, endpoint)
// delivery pair.
type DeliveryResponse struct {
	ID            string  `json:"id"`
	EventID       string  `json:"event_id"`
	EndpointID    string  `json:"endpoint_id"`
	Status        string  `json:"status"`
	AttemptCount  int     `json:"attempt_count"`
	NextAttemptAt *string `json:"next_attempt_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// AttemptResponse is the response body for one delivery attempt.
type AttemptResponse struct {
	ID           string  `json:"id"`
	AttemptNo    int     `json:"attempt_no"`
	Outcome      string  `json:"outcome"`
	HTTPStatus   *int    `json:"http_status,omitempty"`
	ResponseBody string  `json:"response_body,omitempty"`
	NextRetryAt  *string `json:"next_retry_at,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// TestDeliveryResponse is the immediate result of a synchronous
// endpoint test.
type TestDeliveryResponse struct {
	Outcome    string `json:"outcome"`
	HTTPStatus *int   `json:"http_status,omitempty"`
	Body       string `json:"body,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}
