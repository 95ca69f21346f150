package handler

import (
	"time"

	"stackspay-gateway/internal/adapter/http/dto"
	"stackspay-gateway/internal/adapter/http/middleware"
	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"
	"stackspay-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment lifecycle endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Create handles POST /api/v1/payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	p, err := h.paymentSvc.Create(c.Request.Context(), ports.CreatePaymentRequest{
		MerchantID:  merchantID,
		ReferenceID: req.ReferenceID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		CustomerRef: req.CustomerRef,
		Metadata:    req.Metadata,
		ExpiresIn:   time.Duration(req.ExpiresIn) * time.Second,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentResponse(p))
}

// Get handles GET /api/v1/payments/:id. The response embeds the
// payment's event timeline in transition order.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.ownedPayment(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.paymentSvc.ListEvents(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	detail := dto.PaymentDetailResponse{
		PaymentResponse: toPaymentResponse(p),
		Events:          make([]dto.EventResponse, len(events)),
	}
	for i := range events {
		detail.Events[i] = toEventResponse(&events[i])
	}
	response.OK(c, detail)
}

// List handles GET /api/v1/payments.
func (h *PaymentHandler) List(c *gin.Context) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	var q dto.ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	params := ports.PaymentListParams{
		MerchantID: merchantID,
		Page:       q.Page,
		PageSize:   q.Limit,
	}
	if q.Status != "" {
		status := domain.PaymentStatus(q.Status)
		params.Status = &status
	}

	payments, total, err := h.paymentSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, len(payments))
	for i := range payments {
		items[i] = toPaymentResponse(&payments[i])
	}
	response.OKList(c, items, q.Page, q.Limit, total)
}

// ListEvents handles GET /api/v1/payments/:id/events.
func (h *PaymentHandler) ListEvents(c *gin.Context) {
	p, err := h.ownedPayment(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.paymentSvc.ListEvents(c.Request.Context(), p.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EventResponse, len(events))
	for i := range events {
		items[i] = toEventResponse(&events[i])
	}
	response.OK(c, items)
}

// MarkProcessing handles POST /api/v1/payments/:id/processing.
func (h *PaymentHandler) MarkProcessing(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.MarkProcessing(ctx.Request.Context(), id, version)
	})
}

// Confirm handles POST /api/v1/payments/:id/confirm.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.Confirm(ctx.Request.Context(), id, version, req.ConfirmationProof)
	})
}

// Cancel handles POST /api/v1/payments/:id/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.Cancel(ctx.Request.Context(), id, version)
	})
}

// Refund handles POST /api/v1/payments/:id/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req dto.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	var amount *decimal.Decimal
	if req.Amount != nil {
		a, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			response.Error(c, apperror.ErrInvalidAmount())
			return
		}
		amount = &a
	}

	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.Refund(ctx.Request.Context(), ports.RefundRequest{
			PaymentID:       id,
			ExpectedVersion: version,
			Amount:          amount,
			Reason:          req.Reason,
		})
	})
}

// Retry handles POST /api/v1/payments/:id/retry.
func (h *PaymentHandler) Retry(c *gin.Context) {
	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.Retry(ctx.Request.Context(), id, version)
	})
}

// Fail handles POST /api/v1/payments/:id/fail.
func (h *PaymentHandler) Fail(c *gin.Context) {
	var req dto.FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	h.transition(c, func(ctx *gin.Context, id uuid.UUID, version int64) (*domain.Payment, error) {
		return h.paymentSvc.Fail(ctx.Request.Context(), id, version, req.Reason)
	})
}

// transition runs the shared prologue of every transition endpoint:
// path id, If-Match version, ownership check, then the state change.
func (h *PaymentHandler) transition(c *gin.Context, apply func(*gin.Context, uuid.UUID, int64) (*domain.Payment, error)) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	id, err := pathUUID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	version, err := ifMatchVersion(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	p, err := h.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if p.MerchantID != merchantID {
		response.Error(c, apperror.ErrForbidden())
		return
	}

	p, err = apply(c, id, version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(p))
}

// ownedPayment loads the payment from the path and verifies it belongs
// to the authenticated merchant. Foreign payments read as not found.
func (h *PaymentHandler) ownedPayment(c *gin.Context) (*domain.Payment, error) {
	merchantID, ok := middleware.MerchantID(c)
	if !ok {
		return nil, apperror.ErrInvalidAPIKey()
	}

	id, err := pathUUID(c, "id")
	if err != nil {
		return nil, err
	}

	p, err := h.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if p.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}
