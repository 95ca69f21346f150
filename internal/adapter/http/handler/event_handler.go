package handler

import (
	"stackspay-gateway/internal/adapter/http/dto"
	"stackspay-gateway/internal/adapter/http/middleware"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventHandler exposes the delivery log and manual redelivery.
type EventHandler struct {
	deliverySvc ports.DeliveryService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(deliverySvc ports.DeliveryService) *EventHandler {
	return &EventHandler{deliverySvc: deliverySvc}
}

// ListDeliveries handles GET /api/v1/events/:id/deliveries.
func (h *EventHandler) ListDeliveries(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	eventID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	deliveries, err := h.deliverySvc.ListDeliveries(c.Request.Context(), merchantID, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DeliveryResponse, len(deliveries))
	for i := range deliveries {
		items[i] = toDeliveryResponse(&deliveries[i])
	}
	response.OK(c, items)
}

// ListAttempts handles GET /api/v1/deliveries/:id/attempts.
func (h *EventHandler) ListAttempts(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	deliveryID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	attempts, err := h.deliverySvc.ListAttempts(c.Request.Context(), merchantID, deliveryID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AttemptResponse, len(attempts))
	for i := range attempts {
		items[i] = toAttemptResponse(&attempts[i])
	}
	response.OK(c, items)
}

// Redeliver handles POST /api/v1/events/:id/redeliver. The pair must
// already be terminal; a fresh retry cycle starts at the next attempt
// number.
func (h *EventHandler) Redeliver(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	eventID, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var q dto.RedeliverQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	endpointID, err := uuid.Parse(q.EndpointID)
	if err != nil {
		response.Error(c, apperror.Validation("endpoint_id must be a valid uuid"))
		return
	}

	if err := h.deliverySvc.Redeliver(c.Request.Context(), merchantID, eventID, endpointID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"status": "requeued"})
}
