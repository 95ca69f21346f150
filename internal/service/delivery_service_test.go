package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports/mocks"
	"stackspay-gateway/internal/metrics"
	"stackspay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeDoer captures the outbound request and plays back a canned response.
type fakeDoer struct {
	lastReq  *http.Request
	lastBody []byte
	status   int
	body     string
	err      error
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.lastReq = req
	if req.Body != nil {
		f.lastBody, _ = io.ReadAll(req.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

type noopEnqueuer struct{ ids []uuid.UUID }

func (n *noopEnqueuer) Enqueue(id uuid.UUID) bool {
	n.ids = append(n.ids, id)
	return true
}

type deliveryTestDeps struct {
	svc          *DeliveryServiceImpl
	deliveryRepo *mocks.MockDeliveryRepository
	eventRepo    *mocks.MockEventRepository
	endpointRepo *mocks.MockEndpointRepository
	encryption   *mocks.MockEncryptionService
	signature    *mocks.MockSignatureService
	scheduler    *mocks.MockRetryScheduler
	enqueuer     *noopEnqueuer
	doer         *fakeDoer
	ctrl         *gomock.Controller
}

func setupDeliveryService(t *testing.T) *deliveryTestDeps {
	ctrl := gomock.NewController(t)
	d := &deliveryTestDeps{
		deliveryRepo: mocks.NewMockDeliveryRepository(ctrl),
		eventRepo:    mocks.NewMockEventRepository(ctrl),
		endpointRepo: mocks.NewMockEndpointRepository(ctrl),
		encryption:   mocks.NewMockEncryptionService(ctrl),
		signature:    mocks.NewMockSignatureService(ctrl),
		scheduler:    mocks.NewMockRetryScheduler(ctrl),
		enqueuer:     &noopEnqueuer{},
		doer:         &fakeDoer{status: http.StatusOK},
		ctrl:         ctrl,
	}
	d.svc = NewDeliveryService(
		d.deliveryRepo, d.eventRepo, d.endpointRepo,
		d.encryption, d.signature, d.scheduler,
		d.enqueuer, d.doer,
		DeliveryOptions{RequestTimeout: 30 * time.Second, BodyLimitBytes: 4096, SuccessRateAlpha: 0.1, ClaimHold: time.Minute},
		metrics.New(prometheus.NewRegistry()),
		zerolog.Nop(),
	)
	return d
}

func pendingDelivery() *domain.Delivery {
	now := time.Now().UTC()
	return &domain.Delivery{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EndpointID:    uuid.New(),
		Status:        domain.DeliveryStatusPending,
		SecretEnc:     "enc-secret",
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func activeEndpoint(id uuid.UUID) *domain.WebhookEndpoint {
	return &domain.WebhookEndpoint{
		ID:         id,
		MerchantID: uuid.New(),
		URL:        "https://merchant.example.com/hooks",
		EventTypes: []domain.EventType{domain.EventPaymentConfirmed},
		Active:     true,
		SecretEnc:  "enc-secret",
	}
}

func confirmedEvent(paymentID uuid.UUID) *domain.DomainEvent {
	return &domain.DomainEvent{
		ID:             uuid.New(),
		Type:           domain.EventPaymentConfirmed,
		PaymentID:      paymentID,
		PaymentVersion: 3,
		Payload: domain.PaymentSnapshot{
			ID:             paymentID,
			Amount:         decimal.RequireFromString("1.0"),
			RefundedAmount: decimal.Zero,
			Currency:       domain.CurrencySBTC,
			Status:         domain.PaymentStatusConfirmed,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestDeliveryService_Process_Success(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	del := pendingDelivery()
	ep := activeEndpoint(del.EndpointID)
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID

	var recorded *domain.Delivery
	var attempt *domain.DeliveryAttempt

	d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).Return(del, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)
	d.encryption.EXPECT().Decrypt("enc-secret").Return("whsec_test", nil)
	d.signature.EXPECT().Sign("whsec_test", gomock.Any()).Return("sig-abc")
	d.deliveryRepo.EXPECT().RecordAttempt(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, dd *domain.Delivery, a *domain.DeliveryAttempt) error {
			recorded, attempt = dd, a
			return nil
		})
	d.endpointRepo.EXPECT().UpdateSuccessRate(ctx, ep.ID, 0.1, 1.0).Return(nil)

	d.svc.Process(ctx, del.ID)

	require.NotNil(t, recorded)
	assert.Equal(t, domain.DeliveryStatusDelivered, recorded.Status)
	assert.Equal(t, 1, recorded.AttemptCount)
	assert.Nil(t, recorded.NextAttemptAt)

	assert.Equal(t, 1, attempt.AttemptNo)
	assert.Equal(t, domain.AttemptOutcomeSuccess, attempt.Outcome)
	require.NotNil(t, attempt.HTTPStatus)
	assert.Equal(t, http.StatusOK, *attempt.HTTPStatus)

	// Outbound request carries the signature headers and the fixed body
	// shape.
	require.NotNil(t, d.doer.lastReq)
	assert.Equal(t, "sig-abc", d.doer.lastReq.Header.Get(HeaderSignature))
	assert.NotEmpty(t, d.doer.lastReq.Header.Get(HeaderTimestamp))
	assert.Equal(t, "application/json", d.doer.lastReq.Header.Get("Content-Type"))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(d.doer.lastBody, &body))
	assert.Contains(t, body, "id")
	assert.Contains(t, body, "type")
	assert.Contains(t, body, "created")
	assert.Contains(t, body, "livemode")
	assert.Contains(t, body, "data")
}

func TestDeliveryService_Process_FailureSchedulesRetry(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()
	d.doer.status = http.StatusInternalServerError
	d.doer.body = "upstream exploded"

	ctx := context.Background()
	del := pendingDelivery()
	ep := activeEndpoint(del.EndpointID)
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID

	var recorded *domain.Delivery
	var attempt *domain.DeliveryAttempt

	d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).Return(del, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)
	d.encryption.EXPECT().Decrypt("enc-secret").Return("whsec_test", nil)
	d.signature.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.scheduler.EXPECT().ShouldRetry(gomock.Any()).Return(true)
	d.scheduler.EXPECT().NextDelay(2).Return(15 * time.Second)
	d.deliveryRepo.EXPECT().RecordAttempt(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, dd *domain.Delivery, a *domain.DeliveryAttempt) error {
			recorded, attempt = dd, a
			return nil
		})
	d.endpointRepo.EXPECT().UpdateSuccessRate(ctx, ep.ID, 0.1, 0.0).Return(nil)

	d.svc.Process(ctx, del.ID)

	assert.Equal(t, domain.DeliveryStatusPending, recorded.Status)
	require.NotNil(t, recorded.NextAttemptAt)
	assert.Equal(t, domain.AttemptOutcomeFailure, attempt.Outcome)
	assert.Equal(t, "upstream exploded", attempt.ResponseBody)
	require.NotNil(t, attempt.NextRetryAt)
}

func TestDeliveryService_Process_ExhaustsAfterBudget(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()
	d.doer.status = http.StatusBadGateway

	ctx := context.Background()
	del := pendingDelivery()
	del.AttemptCount = 2 // This attempt is the third and last of the cycle
	ep := activeEndpoint(del.EndpointID)
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID

	var recorded *domain.Delivery

	d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).Return(del, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)
	d.encryption.EXPECT().Decrypt(gomock.Any()).Return("whsec_test", nil)
	d.signature.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.scheduler.EXPECT().ShouldRetry(gomock.Any()).Return(false)
	d.scheduler.EXPECT().MaxAttempts().Return(3)
	d.deliveryRepo.EXPECT().RecordAttempt(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, dd *domain.Delivery, _ *domain.DeliveryAttempt) error {
			recorded = dd
			return nil
		})
	d.endpointRepo.EXPECT().UpdateSuccessRate(ctx, ep.ID, 0.1, 0.0).Return(nil)

	d.svc.Process(ctx, del.ID)

	assert.Equal(t, domain.DeliveryStatusExhausted, recorded.Status)
	assert.Equal(t, 3, recorded.AttemptCount)
	assert.Nil(t, recorded.NextAttemptAt)
}

func TestDeliveryService_Process_LostClaimIsDropped(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	// Terminal, not yet due, or already claimed: the conditional update
	// matches nothing.
	d.deliveryRepo.EXPECT().Claim(ctx, id, gomock.Any(), time.Minute).Return(nil, nil)

	// No endpoint load, no HTTP, no attempt row.
	d.svc.Process(ctx, id)
	assert.Nil(t, d.doer.lastReq)
}

func TestDeliveryService_Process_DuplicateEnqueueAttemptsOnce(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	del := pendingDelivery()
	ep := activeEndpoint(del.EndpointID)
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID

	// The same id reaches the queue twice when the sweep overlaps the
	// publish-time enqueue. Only the first claim wins; the second worker
	// must not record a parallel attempt 1.
	first := d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).Return(del, nil)
	d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).After(first).Return(nil, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)
	d.encryption.EXPECT().Decrypt("enc-secret").Return("whsec_test", nil)
	d.signature.EXPECT().Sign(gomock.Any(), gomock.Any()).Return("sig")
	d.deliveryRepo.EXPECT().RecordAttempt(ctx, gomock.Any(), gomock.Any()).Times(1).DoAndReturn(
		func(_ context.Context, dd *domain.Delivery, a *domain.DeliveryAttempt) error {
			assert.Equal(t, 1, a.AttemptNo)
			return nil
		})
	d.endpointRepo.EXPECT().UpdateSuccessRate(ctx, ep.ID, 0.1, 1.0).Return(nil)

	d.svc.Process(ctx, del.ID)
	d.svc.Process(ctx, del.ID)
}

func TestDeliveryService_Process_DeactivatedEndpointCancels(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	del := pendingDelivery()
	ep := activeEndpoint(del.EndpointID)
	ep.Active = false

	d.deliveryRepo.EXPECT().Claim(ctx, del.ID, gomock.Any(), time.Minute).Return(del, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.deliveryRepo.EXPECT().CancelPendingByEndpoint(ctx, del.EndpointID).Return(int64(1), nil)

	d.svc.Process(ctx, del.ID)
	assert.Nil(t, d.doer.lastReq, "no HTTP attempt against a deactivated endpoint")
}

func TestDeliveryService_TestEndpoint_Success(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()
	d.doer.status = http.StatusNoContent

	ctx := context.Background()
	ep := activeEndpoint(uuid.New())

	d.endpointRepo.EXPECT().GetByID(ctx, ep.ID).Return(ep, nil)
	d.encryption.EXPECT().Decrypt("enc-secret").Return("whsec_test", nil)
	d.signature.EXPECT().Sign("whsec_test", gomock.Any()).Return("sig")

	result, err := d.svc.TestEndpoint(ctx, ep.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.AttemptOutcomeSuccess, result.Outcome)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, http.StatusNoContent, *result.HTTPStatus)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(d.doer.lastBody, &body))
	assert.JSONEq(t, `"ping"`, string(body["type"]))
	assert.NotContains(t, body, "data", "ping carries no payment payload")
}

func TestDeliveryService_TestEndpoint_Inactive(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ep := activeEndpoint(uuid.New())
	ep.Active = false
	d.endpointRepo.EXPECT().GetByID(ctx, ep.ID).Return(ep, nil)

	_, err := d.svc.TestEndpoint(ctx, ep.ID)
	require.Error(t, err)
	assert.Equal(t, "WHK_003", err.(*apperror.AppError).Code)
}

func TestDeliveryService_Redeliver_ResetsTerminalPair(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	del := pendingDelivery()
	del.Status = domain.DeliveryStatusExhausted
	del.AttemptCount = 3
	ep := activeEndpoint(del.EndpointID)
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID
	event.MerchantID = merchantID

	d.deliveryRepo.EXPECT().GetByEventAndEndpoint(ctx, del.EventID, del.EndpointID).Return(del, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)
	d.endpointRepo.EXPECT().GetByID(ctx, del.EndpointID).Return(ep, nil)
	d.deliveryRepo.EXPECT().Reset(ctx, del.ID, gomock.Any()).Return(nil)

	require.NoError(t, d.svc.Redeliver(ctx, merchantID, del.EventID, del.EndpointID))
	assert.Equal(t, []uuid.UUID{del.ID}, d.enqueuer.ids)
}

func TestDeliveryService_Redeliver_PendingPairRejected(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	del := pendingDelivery()
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID
	event.MerchantID = merchantID

	d.deliveryRepo.EXPECT().GetByEventAndEndpoint(ctx, del.EventID, del.EndpointID).Return(del, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)

	err := d.svc.Redeliver(ctx, merchantID, del.EventID, del.EndpointID)
	require.Error(t, err)
	assert.Equal(t, "WHK_004", err.(*apperror.AppError).Code)
	assert.Empty(t, d.enqueuer.ids)
}

func TestDeliveryService_Redeliver_ForeignPairForbidden(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	del := pendingDelivery()
	del.Status = domain.DeliveryStatusExhausted
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID
	event.MerchantID = uuid.New() // owned by someone else

	d.deliveryRepo.EXPECT().GetByEventAndEndpoint(ctx, del.EventID, del.EndpointID).Return(del, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)

	err := d.svc.Redeliver(ctx, uuid.New(), del.EventID, del.EndpointID)
	require.Error(t, err)
	assert.Equal(t, "SEC_003", err.(*apperror.AppError).Code)
	assert.Empty(t, d.enqueuer.ids)
}

func TestDeliveryService_ListDeliveries_ForeignEventReadsAsNotFound(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	event := confirmedEvent(uuid.New())
	event.MerchantID = uuid.New()

	d.eventRepo.EXPECT().GetByID(ctx, event.ID).Return(event, nil)

	_, err := d.svc.ListDeliveries(ctx, uuid.New(), event.ID)
	require.Error(t, err)
	assert.Equal(t, "PAY_006", err.(*apperror.AppError).Code)
}

func TestDeliveryService_ListAttempts_ForeignPairReadsAsNotFound(t *testing.T) {
	d := setupDeliveryService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	del := pendingDelivery()
	event := confirmedEvent(uuid.New())
	event.ID = del.EventID
	event.MerchantID = uuid.New()

	d.deliveryRepo.EXPECT().GetByID(ctx, del.ID).Return(del, nil)
	d.eventRepo.EXPECT().GetByID(ctx, del.EventID).Return(event, nil)

	_, err := d.svc.ListAttempts(ctx, uuid.New(), del.ID)
	require.Error(t, err)
	assert.Equal(t, "PAY_006", err.(*apperror.AppError).Code)
}
