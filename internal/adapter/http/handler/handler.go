package handler

import (
	"strconv"
	"strings"
	"time"

	"stackspay-gateway/internal/adapter/http/dto"
	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIfMatch carries the expected payment version on transition
// requests, ETag style: If-Match: "3".
const HeaderIfMatch = "If-Match"

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

// pathUUID parses a uuid path parameter.
func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation(name + " must be a valid uuid")
	}
	return id, nil
}

// ifMatchVersion parses the If-Match header. The value is the payment
// version the caller last read; a transition against any other version
// is rejected with a conflict by the state machine.
func ifMatchVersion(c *gin.Context) (int64, error) {
	raw := strings.Trim(c.GetHeader(HeaderIfMatch), `"`)
	if raw == "" {
		return 0, apperror.Validation("If-Match header with the expected payment version is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, apperror.Validation("If-Match must hold a positive integer version")
	}
	return v, nil
}

func toPaymentResponse(p *domain.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:             p.ID.String(),
		ReferenceID:    p.ReferenceID,
		Amount:         p.Amount.String(),
		RefundedAmount: p.RefundedAmount.String(),
		Currency:       string(p.Currency),
		Description:    p.Description,
		CustomerRef:    p.CustomerRef,
		Metadata:       p.Metadata,
		Status:         string(p.Status),
		Version:        p.Version,
		ExpiresAt:      fmtTime(p.ExpiresAt),
		CreatedAt:      fmtTime(p.CreatedAt),
		CompletedAt:    fmtTimePtr(p.CompletedAt),
	}
}

func toSnapshotResponse(s domain.PaymentSnapshot) dto.SnapshotResponse {
	return dto.SnapshotResponse{
		ID:             s.ID.String(),
		ReferenceID:    s.ReferenceID,
		Amount:         s.Amount.String(),
		RefundedAmount: s.RefundedAmount.String(),
		Currency:       string(s.Currency),
		Status:         string(s.Status),
		Description:    s.Description,
		Metadata:       s.Metadata,
		ExpiresAt:      fmtTime(s.ExpiresAt),
		CreatedAt:      fmtTime(s.CreatedAt),
		CompletedAt:    fmtTimePtr(s.CompletedAt),
		Reason:         s.Reason,
	}
}

func toEventResponse(e *domain.DomainEvent) dto.EventResponse {
	return dto.EventResponse{
		ID:             e.ID.String(),
		Type:           string(e.Type),
		PaymentID:      e.PaymentID.String(),
		PaymentVersion: e.PaymentVersion,
		Payload:        toSnapshotResponse(e.Payload),
		CreatedAt:      fmtTime(e.CreatedAt),
	}
}

func toEndpointResponse(e *domain.WebhookEndpoint) dto.EndpointResponse {
	types := make([]string, len(e.EventTypes))
	for i, t := range e.EventTypes {
		types[i] = string(t)
	}
	return dto.EndpointResponse{
		ID:          e.ID.String(),
		URL:         e.URL,
		Description: e.Description,
		EventTypes:  types,
		Active:      e.Active,
		SuccessRate: e.SuccessRate,
		CreatedAt:   fmtTime(e.CreatedAt),
		UpdatedAt:   fmtTime(e.UpdatedAt),
	}
}

func toDeliveryResponse(d *domain.Delivery) dto.DeliveryResponse {
	return dto.DeliveryResponse{
		ID:            d.ID.String(),
		EventID:       d.EventID.String(),
		EndpointID:    d.EndpointID.String(),
		Status:        string(d.Status),
		AttemptCount:  d.AttemptCount,
		NextAttemptAt: fmtTimePtr(d.NextAttemptAt),
		CreatedAt:     fmtTime(d.CreatedAt),
		UpdatedAt:     fmtTime(d.UpdatedAt),
	}
}

func toAttemptResponse(a *domain.DeliveryAttempt) dto.AttemptResponse {
	return dto.AttemptResponse{
		ID:           a.ID.String(),
		AttemptNo:    a.AttemptNo,
		Outcome:      string(a.Outcome),
		HTTPStatus:   a.HTTPStatus,
		ResponseBody: a.ResponseBody,
		NextRetryAt:  fmtTimePtr(a.NextRetryAt),
		CreatedAt:    fmtTime(a.CreatedAt),
	}
}
