package service

import (
	"context"
	"time"

	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/metrics"

	"github.com/rs/zerolog"
)

// DeliverySweeper periodically lists due pending deliveries and feeds
// them back into the worker queue. It is the recovery path for queue
// overflows, missed retries and rows stranded by a crash. The sweep
// only reads; workers claim the row before attempting it, so a sweep
// racing the publish-time enqueue (or another instance's sweep) costs
// a dropped queue entry, never a duplicate attempt.
type DeliverySweeper struct {
	deliveryRepo ports.DeliveryRepository
	enqueuer     DeliveryEnqueuer
	interval     time.Duration
	batch        int
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewDeliverySweeper creates a new DeliverySweeper.
func NewDeliverySweeper(
	deliveryRepo ports.DeliveryRepository,
	enqueuer DeliveryEnqueuer,
	interval time.Duration,
	batch int,
	m *metrics.Metrics,
	log zerolog.Logger,
) *DeliverySweeper {
	return &DeliverySweeper{
		deliveryRepo: deliveryRepo,
		enqueuer:     enqueuer,
		interval:     interval,
		batch:        batch,
		metrics:      m,
		log:          log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *DeliverySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues one batch of due deliveries. Rows that do not fit the
// queue stay pending and show up again on the next pass.
func (s *DeliverySweeper) Sweep(ctx context.Context) {
	due, err := s.deliveryRepo.ListDue(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		s.log.Error().Err(err).Msg("delivery sweep failed")
		return
	}
	if len(due) == 0 {
		return
	}

	enqueued := 0
	for _, id := range due {
		if s.enqueuer.Enqueue(id) {
			enqueued++
		}
	}

	s.metrics.SweepClaimed.Add(float64(enqueued))
	s.log.Debug().
		Int("due", len(due)).
		Int("enqueued", enqueued).
		Msg("delivery sweep")
}

// ExpirySweeper moves payments past their deadline into EXPIRED. Each
// expiry goes through the state machine, so it emits payment.expired and
// respects terminal states like any other transition.
type ExpirySweeper struct {
	paymentRepo    ports.PaymentRepository
	paymentService ports.PaymentService
	interval       time.Duration
	batch          int
	log            zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(
	paymentRepo ports.PaymentRepository,
	paymentService ports.PaymentService,
	interval time.Duration,
	batch int,
	log zerolog.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		paymentRepo:    paymentRepo,
		paymentService: paymentService,
		interval:       interval,
		batch:          batch,
		log:            log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep expires one batch of overdue payments. A version conflict means
// another actor touched the payment first; the next pass re-evaluates it.
func (s *ExpirySweeper) Sweep(ctx context.Context) {
	due, err := s.paymentRepo.ListExpirable(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	for _, p := range due {
		if _, err := s.paymentService.Expire(ctx, p.ID); err != nil {
			s.log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("expiry skipped")
		}
	}
}
