package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports/mocks"
	"stackspay-gateway/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testEvent() *domain.DomainEvent {
	return &domain.DomainEvent{
		ID:             uuid.New(),
		Type:           domain.EventPaymentConfirmed,
		PaymentID:      uuid.New(),
		MerchantID:     uuid.New(),
		PaymentVersion: 3,
		CreatedAt:      time.Now().UTC(),
	}
}

func testSubscriber(secretEnc string) domain.WebhookEndpoint {
	return domain.WebhookEndpoint{
		ID:         uuid.New(),
		MerchantID: uuid.New(),
		URL:        "https://merchant.example.com/hooks",
		EventTypes: []domain.EventType{domain.EventPaymentConfirmed},
		Active:     true,
		SecretEnc:  secretEnc,
	}
}

func TestEventBus_Publish_CreatesDeliveryPerSubscriber(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockRegistryService(ctrl)
	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	bus := NewInProcessEventBus(registry, deliveryRepo, 8, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	ctx := context.Background()
	event := testEvent()
	subs := []domain.WebhookEndpoint{testSubscriber("enc-a"), testSubscriber("enc-b")}

	var created []*domain.Delivery
	registry.EXPECT().ListActiveSubscribers(ctx, event.MerchantID, event.Type).Return(subs, nil)
	deliveryRepo.EXPECT().CreateBatch(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ds []*domain.Delivery) error {
			created = ds
			return nil
		})

	bus.Publish(ctx, event)

	require.Len(t, created, 2)
	for i, d := range created {
		assert.Equal(t, event.ID, d.EventID)
		assert.Equal(t, subs[i].ID, d.EndpointID)
		assert.Equal(t, domain.DeliveryStatusPending, d.Status)
		assert.Equal(t, 0, d.AttemptCount)
		assert.Equal(t, subs[i].SecretEnc, d.SecretEnc, "secret must be snapshotted at publish time")
		require.NotNil(t, d.NextAttemptAt)
	}

	// Both deliveries were handed to the worker queue.
	assert.Len(t, bus.Queue(), 2)
}

func TestEventBus_Publish_NoSubscribers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockRegistryService(ctrl)
	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	bus := NewInProcessEventBus(registry, deliveryRepo, 8, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	ctx := context.Background()
	event := testEvent()
	registry.EXPECT().ListActiveSubscribers(ctx, event.MerchantID, event.Type).Return(nil, nil)

	// No CreateBatch expectation: publishing with no subscribers must not
	// touch the repository.
	bus.Publish(ctx, event)
	assert.Empty(t, bus.Queue())
}

func TestEventBus_Publish_LookupErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockRegistryService(ctrl)
	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	bus := NewInProcessEventBus(registry, deliveryRepo, 8, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	ctx := context.Background()
	event := testEvent()
	registry.EXPECT().ListActiveSubscribers(ctx, event.MerchantID, event.Type).Return(nil, errors.New("redis down"))

	// Publish never panics or errors back into the payment transition.
	bus.Publish(ctx, event)
	assert.Empty(t, bus.Queue())
}

func TestEventBus_Enqueue_FullQueueDefersToSweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockRegistryService(ctrl)
	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	bus := NewInProcessEventBus(registry, deliveryRepo, 1, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	assert.True(t, bus.Enqueue(uuid.New()))
	assert.False(t, bus.Enqueue(uuid.New()), "second enqueue must not block on a full queue")
	assert.Len(t, bus.Queue(), 1)
}
