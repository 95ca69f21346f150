package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/metrics"
	"stackspay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPDoer abstracts the outbound HTTP client so delivery attempts can be
// tested without a network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DeliveryEnqueuer is the handoff into the worker queue, satisfied by the
// event bus.
type DeliveryEnqueuer interface {
	Enqueue(deliveryID uuid.UUID) bool
}

// DeliveryOptions tunes the outbound delivery path. ClaimHold is the
// lease a worker takes on a pending row before attempting it; it must
// exceed RequestTimeout so a row is never re-claimed mid-attempt.
type DeliveryOptions struct {
	RequestTimeout   time.Duration
	BodyLimitBytes   int64
	SuccessRateAlpha float64
	ClaimHold        time.Duration
	Livemode         bool
}

// DeliveryServiceImpl executes webhook deliveries. It runs the worker pool
// that drains the event bus queue, and serves the synchronous delivery
// operations exposed by the API (endpoint tests, manual redelivery,
// attempt history).
type DeliveryServiceImpl struct {
	deliveryRepo ports.DeliveryRepository
	eventRepo    ports.EventRepository
	endpointRepo ports.EndpointRepository
	encryption   ports.EncryptionService
	signature    ports.SignatureService
	scheduler    ports.RetryScheduler
	enqueuer     DeliveryEnqueuer
	client       HTTPDoer
	opts         DeliveryOptions
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewDeliveryService creates a new DeliveryServiceImpl.
func NewDeliveryService(
	deliveryRepo ports.DeliveryRepository,
	eventRepo ports.EventRepository,
	endpointRepo ports.EndpointRepository,
	encryption ports.EncryptionService,
	signature ports.SignatureService,
	scheduler ports.RetryScheduler,
	enqueuer DeliveryEnqueuer,
	client HTTPDoer,
	opts DeliveryOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) *DeliveryServiceImpl {
	return &DeliveryServiceImpl{
		deliveryRepo: deliveryRepo,
		eventRepo:    eventRepo,
		endpointRepo: endpointRepo,
		encryption:   encryption,
		signature:    signature,
		scheduler:    scheduler,
		enqueuer:     enqueuer,
		client:       client,
		opts:         opts,
		metrics:      m,
		log:          log,
	}
}

// Run drains queue with workers goroutines until ctx is cancelled.
func (s *DeliveryServiceImpl) Run(ctx context.Context, queue <-chan uuid.UUID, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-queue:
					if !ok {
						return
					}
					s.metrics.DeliveryQueueDepth.Set(float64(len(queue)))
					s.Process(ctx, id)
				}
			}
		}()
	}
	wg.Wait()
}

// Process executes one delivery attempt for the pair. It starts by
// claiming the row with a conditional update, so a delivery that reaches
// the queue twice (publish enqueue plus a sweep of the same row, or two
// instances sweeping) is attempted by exactly one worker; losers drop
// the id harmlessly. Terminal and not-yet-due rows fail the claim too.
func (s *DeliveryServiceImpl) Process(ctx context.Context, deliveryID uuid.UUID) {
	d, err := s.deliveryRepo.Claim(ctx, deliveryID, time.Now().UTC(), s.opts.ClaimHold)
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", deliveryID.String()).Msg("delivery claim failed")
		return
	}
	if d == nil {
		return
	}

	endpoint, err := s.endpointRepo.GetByID(ctx, d.EndpointID)
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", deliveryID.String()).Msg("endpoint load failed")
		return
	}
	if endpoint == nil || !endpoint.Deliverable() {
		// The registry cancels pending rows on deactivation; this covers
		// the race where the row was claimed just before that.
		if _, err := s.deliveryRepo.CancelPendingByEndpoint(ctx, d.EndpointID); err != nil {
			s.log.Error().Err(err).Str("endpoint_id", d.EndpointID.String()).Msg("cancel pending failed")
		}
		return
	}

	event, err := s.eventRepo.GetByID(ctx, d.EventID)
	if err != nil || event == nil {
		s.log.Error().Err(err).Str("event_id", d.EventID.String()).Msg("event load failed")
		return
	}

	// Sign with the secret snapshotted when the delivery was scheduled,
	// not the endpoint's current one.
	secret, err := s.encryption.Decrypt(d.SecretEnc)
	if err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("secret decrypt failed")
		return
	}

	body, err := json.Marshal(webhookBodyOf(event, s.opts.Livemode))
	if err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("body marshal failed")
		return
	}

	outcome, httpStatus, respBody, duration := s.attempt(ctx, endpoint.URL, secret, body)

	now := time.Now().UTC()
	d.AttemptCount++
	d.UpdatedAt = now

	attempt := &domain.DeliveryAttempt{
		ID:           uuid.New(),
		DeliveryID:   d.ID,
		AttemptNo:    d.AttemptCount,
		Outcome:      outcome,
		HTTPStatus:   httpStatus,
		ResponseBody: respBody,
		CreatedAt:    now,
	}

	success := outcome == domain.AttemptOutcomeSuccess
	switch {
	case success:
		d.Status = domain.DeliveryStatusDelivered
		d.NextAttemptAt = nil
	case s.scheduler.ShouldRetry(d):
		next := now.Add(s.scheduler.NextDelay(d.AttemptsInCycle() + 1))
		d.NextAttemptAt = &next
		attempt.NextRetryAt = &next
	default:
		d.Status = domain.DeliveryStatusExhausted
		d.NextAttemptAt = nil
		s.log.Warn().
			Str("delivery_id", d.ID.String()).
			Int("attempts", d.AttemptCount).
			Int("budget", s.scheduler.MaxAttempts()).
			Msg("delivery retry budget exhausted")
	}

	if err := s.deliveryRepo.RecordAttempt(ctx, d, attempt); err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("attempt not recorded")
		return
	}

	outcomeVal := 0.0
	if success {
		outcomeVal = 1.0
	}
	if err := s.endpointRepo.UpdateSuccessRate(ctx, endpoint.ID, s.opts.SuccessRateAlpha, outcomeVal); err != nil {
		s.log.Error().Err(err).Str("endpoint_id", endpoint.ID.String()).Msg("success rate update failed")
	}

	s.metrics.DeliveryAttempts.WithLabelValues(string(outcome)).Inc()
	s.metrics.DeliveryDuration.Observe(duration.Seconds())

	s.log.Info().
		Str("delivery_id", d.ID.String()).
		Str("endpoint_id", endpoint.ID.String()).
		Int("attempt", attempt.AttemptNo).
		Str("outcome", string(outcome)).
		Str("status", string(d.Status)).
		Msg("delivery attempt")
}

// TestEndpoint performs one synchronous attempt with a synthetic ping
// event against the endpoint's current secret. Nothing is persisted and
// the retry scheduler is bypassed.
func (s *DeliveryServiceImpl) TestEndpoint(ctx context.Context, endpointID uuid.UUID) (*ports.TestDeliveryResult, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, endpointID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil {
		return nil, apperror.ErrEndpointNotFound()
	}
	if !endpoint.Deliverable() {
		return nil, apperror.ErrEndpointInactive()
	}

	secret, err := s.encryption.Decrypt(endpoint.SecretEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	ping := webhookBody{
		ID:       uuid.New().String(),
		Type:     string(domain.EventPing),
		Created:  time.Now().Unix(),
		Livemode: s.opts.Livemode,
	}
	body, err := json.Marshal(ping)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal ping: %w", err))
	}

	outcome, httpStatus, respBody, duration := s.attempt(ctx, endpoint.URL, secret, body)
	return &ports.TestDeliveryResult{
		Outcome:    outcome,
		HTTPStatus: httpStatus,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

// Redeliver re-enqueues a terminal (event, endpoint) pair for a fresh
// retry cycle. Attempt numbering continues from where the pair left off.
// Pairs belonging to another merchant are rejected.
func (s *DeliveryServiceImpl) Redeliver(ctx context.Context, merchantID, eventID, endpointID uuid.UUID) error {
	d, err := s.deliveryRepo.GetByEventAndEndpoint(ctx, eventID, endpointID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get delivery: %w", err))
	}
	if d == nil {
		return apperror.ErrNotFound("delivery")
	}
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get event: %w", err))
	}
	if event == nil || event.MerchantID != merchantID {
		return apperror.ErrForbidden()
	}
	if !d.IsTerminal() {
		return apperror.ErrDeliveryNotRedeliverable()
	}

	endpoint, err := s.endpointRepo.GetByID(ctx, endpointID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil || !endpoint.Deliverable() {
		return apperror.ErrEndpointInactive()
	}

	now := time.Now().UTC()
	if err := s.deliveryRepo.Reset(ctx, d.ID, now); err != nil {
		return apperror.InternalError(fmt.Errorf("reset delivery: %w", err))
	}

	s.enqueuer.Enqueue(d.ID)

	s.log.Info().
		Str("delivery_id", d.ID.String()).
		Str("event_id", eventID.String()).
		Msg("delivery re-enqueued")
	return nil
}

// ListDeliveries returns the delivery pairs of an event. Events owned by
// another merchant read as not found.
func (s *DeliveryServiceImpl) ListDeliveries(ctx context.Context, merchantID, eventID uuid.UUID) ([]domain.Delivery, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get event: %w", err))
	}
	if event == nil || event.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("event")
	}
	ds, err := s.deliveryRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list deliveries: %w", err))
	}
	return ds, nil
}

// ListAttempts returns the attempt log of a delivery pair, oldest first.
// Pairs owned by another merchant read as not found.
func (s *DeliveryServiceImpl) ListAttempts(ctx context.Context, merchantID, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	d, err := s.deliveryRepo.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get delivery: %w", err))
	}
	if d == nil {
		return nil, apperror.ErrNotFound("delivery")
	}
	event, err := s.eventRepo.GetByID(ctx, d.EventID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get event: %w", err))
	}
	if event == nil || event.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("delivery")
	}
	return s.deliveryRepo.ListAttempts(ctx, deliveryID)
}

// attempt performs one signed HTTP POST and classifies the result.
// Network errors and timeouts never bubble up; they are outcomes.
func (s *DeliveryServiceImpl) attempt(ctx context.Context, url, secret string, body []byte) (domain.AttemptOutcome, *int, string, time.Duration) {
	reqCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.AttemptOutcomeFailure, nil, err.Error(), time.Since(start)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, s.signature.Sign(secret, body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(start.Unix(), 10))

	resp, err := s.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return domain.AttemptOutcomeTimeout, nil, "", duration
		}
		return domain.AttemptOutcomeFailure, nil, err.Error(), duration
	}
	defer resp.Body.Close() //nolint:errcheck

	truncated, _ := io.ReadAll(io.LimitReader(resp.Body, s.opts.BodyLimitBytes))
	status := resp.StatusCode

	if status >= 200 && status < 300 {
		return domain.AttemptOutcomeSuccess, &status, string(truncated), duration
	}
	return domain.AttemptOutcomeFailure, &status, string(truncated), duration
}

// webhookBody is the wire shape delivered to endpoints. Field order is
// fixed; the signature covers these exact bytes.
type webhookBody struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Created  int64        `json:"created"`
	Livemode bool         `json:"livemode"`
	Data     *webhookData `json:"data,omitempty"`
}

type webhookData struct {
	Payment domain.PaymentSnapshot `json:"payment"`
}

func webhookBodyOf(event *domain.DomainEvent, livemode bool) webhookBody {
	return webhookBody{
		ID:       event.ID.String(),
		Type:     string(event.Type),
		Created:  event.CreatedAt.Unix(),
		Livemode: livemode,
		Data:     &webhookData{Payment: event.Payload},
	}
}
