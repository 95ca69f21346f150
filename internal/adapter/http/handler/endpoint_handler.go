package handler

import (
	"stackspay-gateway/internal/adapter/http/dto"
	"stackspay-gateway/internal/adapter/http/middleware"
	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// EndpointHandler handles webhook endpoint registry endpoints.
type EndpointHandler struct {
	registrySvc ports.RegistryService
	deliverySvc ports.DeliveryService
}

// NewEndpointHandler creates a new EndpointHandler.
func NewEndpointHandler(registrySvc ports.RegistryService, deliverySvc ports.DeliveryService) *EndpointHandler {
	return &EndpointHandler{registrySvc: registrySvc, deliverySvc: deliverySvc}
}

// Create handles POST /api/v1/webhook-endpoints.
func (h *EndpointHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	var req dto.CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	types := make([]domain.EventType, len(req.EventTypes))
	for i, t := range req.EventTypes {
		types[i] = domain.EventType(t)
	}

	ep, secret, err := h.registrySvc.CreateEndpoint(c.Request.Context(), ports.CreateEndpointRequest{
		MerchantID:  merchantID,
		URL:         req.URL,
		Description: req.Description,
		EventTypes:  types,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreateEndpointResponse{
		EndpointResponse: toEndpointResponse(ep),
		Secret:           secret,
	})
}

// Get handles GET /api/v1/webhook-endpoints/:id.
func (h *EndpointHandler) Get(c *gin.Context) {
	ep, err := h.ownedEndpoint(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toEndpointResponse(ep))
}

// List handles GET /api/v1/webhook-endpoints.
func (h *EndpointHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	endpoints, err := h.registrySvc.ListEndpoints(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EndpointResponse, len(endpoints))
	for i := range endpoints {
		items[i] = toEndpointResponse(&endpoints[i])
	}
	response.OK(c, items)
}

// Update handles PATCH /api/v1/webhook-endpoints/:id.
func (h *EndpointHandler) Update(c *gin.Context) {
	ep, err := h.ownedEndpoint(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.UpdateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var types []domain.EventType
	if req.EventTypes != nil {
		types = make([]domain.EventType, len(req.EventTypes))
		for i, t := range req.EventTypes {
			types[i] = domain.EventType(t)
		}
	}

	updated, err := h.registrySvc.UpdateEndpoint(c.Request.Context(), ep.ID, ports.UpdateEndpointRequest{
		URL:         req.URL,
		Description: req.Description,
		EventTypes:  types,
		Active:      req.Active,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toEndpointResponse(updated))
}

// Delete handles DELETE /api/v1/webhook-endpoints/:id.
func (h *EndpointHandler) Delete(c *gin.Context) {
	ep, err := h.ownedEndpoint(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.registrySvc.DeleteEndpoint(c.Request.Context(), ep.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RotateSecret handles POST /api/v1/webhook-endpoints/:id/rotate-secret.
// The new secret appears in this response and nowhere else.
func (h *EndpointHandler) RotateSecret(c *gin.Context) {
	ep, err := h.ownedEndpoint(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	secret, err := h.registrySvc.RotateSecret(c.Request.Context(), ep.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RotateSecretResponse{Secret: secret})
}

// Test handles POST /api/v1/webhook-endpoints/:id/test. One synchronous
// ping delivery; nothing is persisted and the retry budget is not used.
func (h *EndpointHandler) Test(c *gin.Context) {
	ep, err := h.ownedEndpoint(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.deliverySvc.TestEndpoint(c.Request.Context(), ep.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TestDeliveryResponse{
		Outcome:    string(result.Outcome),
		HTTPStatus: result.HTTPStatus,
		Body:       result.Body,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// ownedEndpoint loads the endpoint from the path and verifies it
// belongs to the authenticated merchant.
func (h *EndpointHandler) ownedEndpoint(c *gin.Context) (*domain.WebhookEndpoint, error) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return nil, apperror.ErrInvalidAPIKey()
	}

	id, err := pathUUID(c, "id")
	if err != nil {
		return nil, err
	}

	ep, err := h.registrySvc.GetEndpoint(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if ep.MerchantID != merchantID {
		return nil, apperror.ErrEndpointNotFound()
	}
	return ep, nil
}
