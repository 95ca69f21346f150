package service

import (
	"context"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InProcessEventBus fans domain events out to subscribed endpoints.
//
// Publish writes one durable delivery row per subscriber and then tries a
// non-blocking handoff to the worker queue. The rows, not the channel, are
// the source of truth: when the queue is full the handoff is skipped and
// the sweep picks the row up on its next pass. Losing the process between
// commit and handoff therefore loses nothing.
type InProcessEventBus struct {
	registry     ports.RegistryService
	deliveryRepo ports.DeliveryRepository
	queue        chan uuid.UUID
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewInProcessEventBus creates the bus with a bounded queue of queueDepth.
func NewInProcessEventBus(
	registry ports.RegistryService,
	deliveryRepo ports.DeliveryRepository,
	queueDepth int,
	m *metrics.Metrics,
	log zerolog.Logger,
) *InProcessEventBus {
	return &InProcessEventBus{
		registry:     registry,
		deliveryRepo: deliveryRepo,
		queue:        make(chan uuid.UUID, queueDepth),
		metrics:      m,
		log:          log,
	}
}

// Publish resolves the event's subscribers, persists one pending delivery
// per endpoint with the endpoint secret snapshotted at this moment, and
// enqueues the work. It never returns an error to the caller: the payment
// transition has already committed, so failures here are logged and left
// for the sweep.
func (b *InProcessEventBus) Publish(ctx context.Context, event *domain.DomainEvent) {
	subscribers, err := b.registry.ListActiveSubscribers(ctx, event.MerchantID, event.Type)
	if err != nil {
		b.log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Msg("subscriber lookup failed, event left for sweep")
		return
	}

	b.metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	if len(subscribers) == 0 {
		return
	}

	now := time.Now().UTC()
	deliveries := make([]*domain.Delivery, 0, len(subscribers))
	for _, ep := range subscribers {
		deliveries = append(deliveries, &domain.Delivery{
			ID:            uuid.New(),
			EventID:       event.ID,
			EndpointID:    ep.ID,
			Status:        domain.DeliveryStatusPending,
			AttemptCount:  0,
			CycleStart:    0,
			SecretEnc:     ep.SecretEnc,
			NextAttemptAt: &now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := b.deliveryRepo.CreateBatch(ctx, deliveries); err != nil {
		b.log.Error().Err(err).
			Str("event_id", event.ID.String()).
			Int("subscribers", len(deliveries)).
			Msg("delivery rows not persisted")
		return
	}

	for _, d := range deliveries {
		b.Enqueue(d.ID)
	}
}

// Enqueue hands a delivery to the worker pool without blocking. On a full
// queue it returns false; the row stays due and the sweep re-enqueues it.
func (b *InProcessEventBus) Enqueue(deliveryID uuid.UUID) bool {
	select {
	case b.queue <- deliveryID:
		b.metrics.DeliveryQueueDepth.Set(float64(len(b.queue)))
		return true
	default:
		b.metrics.QueueOverflows.Inc()
		b.log.Warn().Str("delivery_id", deliveryID.String()).Msg("worker queue full, deferring to sweep")
		return false
	}
}

// Queue exposes the receive side for the worker pool.
func (b *InProcessEventBus) Queue() <-chan uuid.UUID {
	return b.queue
}
