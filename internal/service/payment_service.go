package service

import (
	"context"
	"fmt"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/metrics"
	"stackspay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentServiceImpl implements ports.PaymentService. It is the sole
// writer of payment status: every accepted transition bumps the version,
// persists exactly one domain event in the same transaction, and hands
// the event to the bus after commit. Rejected transitions change nothing.
type PaymentServiceImpl struct {
	paymentRepo   ports.PaymentRepository
	eventRepo     ports.EventRepository
	transactor    ports.DBTransactor
	bus           ports.EventBus
	defaultExpiry time.Duration
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	eventRepo ports.EventRepository,
	transactor ports.DBTransactor,
	bus ports.EventBus,
	defaultExpiry time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		paymentRepo:   paymentRepo,
		eventRepo:     eventRepo,
		transactor:    transactor,
		bus:           bus,
		defaultExpiry: defaultExpiry,
		metrics:       m,
		log:           log,
	}
}

// Create registers a new payment in PENDING and emits payment.created.
func (s *PaymentServiceImpl) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	if !domain.SupportedCurrencies[domain.Currency(req.Currency)] {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}

	expiry := req.ExpiresIn
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:             uuid.New(),
		ReferenceID:    req.ReferenceID,
		MerchantID:     req.MerchantID,
		Amount:         req.Amount,
		RefundedAmount: decimal.Zero,
		Currency:       domain.Currency(req.Currency),
		Description:    req.Description,
		CustomerRef:    req.CustomerRef,
		Metadata:       req.Metadata,
		Status:         domain.PaymentStatusPending,
		Version:        1,
		ExpiresAt:      now.Add(expiry),
		CreatedAt:      now,
	}

	event := newEvent(p, domain.EventPaymentCreated, nil)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.Create(ctx, dbTx, p); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create event: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.bus.Publish(ctx, event)
	s.metrics.PaymentTransitions.WithLabelValues(string(p.Status)).Inc()

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("amount", p.Amount.String()).
		Str("currency", string(p.Currency)).
		Msg("payment created")

	return p, nil
}

// MarkProcessing moves PENDING -> PROCESSING when the confirmation oracle
// first observes activity for the payment.
func (s *PaymentServiceImpl) MarkProcessing(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error) {
	return s.transition(ctx, id, expectedVersion, domain.PaymentStatusProcessing, domain.EventPaymentProcessing, nil, nil)
}

// Confirm moves PROCESSING -> CONFIRMED. The confirmation proof is an
// opaque external attestation; only its presence is checked here.
func (s *PaymentServiceImpl) Confirm(ctx context.Context, id uuid.UUID, expectedVersion int64, confirmationProof string) (*domain.Payment, error) {
	if confirmationProof == "" {
		return nil, apperror.ErrMissingConfirmationProof()
	}
	return s.transition(ctx, id, expectedVersion, domain.PaymentStatusConfirmed, domain.EventPaymentConfirmed, nil, func(p *domain.Payment) {
		now := time.Now().UTC()
		p.CompletedAt = &now
	})
}

// Cancel moves PENDING or PROCESSING -> CANCELLED by explicit actor action.
func (s *PaymentServiceImpl) Cancel(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error) {
	return s.transition(ctx, id, expectedVersion, domain.PaymentStatusCancelled, domain.EventPaymentCancelled, nil, nil)
}

// Fail moves PENDING or PROCESSING -> FAILED on an oracle-reported failure.
func (s *PaymentServiceImpl) Fail(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string) (*domain.Payment, error) {
	return s.transition(ctx, id, expectedVersion, domain.PaymentStatusFailed, domain.EventPaymentFailed, &reason, nil)
}

// Retry resets a FAILED or EXPIRED payment back into PROCESSING. It emits
// payment.retrying, a fresh event distinct from the original failure.
func (s *PaymentServiceImpl) Retry(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Payment, error) {
	return s.transition(ctx, id, expectedVersion, domain.PaymentStatusProcessing, domain.EventPaymentRetrying, nil, nil)
}

// Refund moves CONFIRMED toward REFUNDED. Partial refunds accumulate in
// RefundedAmount and keep the status CONFIRMED until fully refunded.
func (s *PaymentServiceImpl) Refund(ctx context.Context, req ports.RefundRequest) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Version != req.ExpectedVersion {
		return nil, apperror.ErrVersionConflict()
	}
	if p.Status != domain.PaymentStatusConfirmed {
		return nil, apperror.ErrInvalidTransition(string(p.Status), string(domain.PaymentStatusRefunded))
	}

	remaining := p.RemainingRefundable()
	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	if amount.GreaterThan(remaining) {
		return nil, apperror.ErrRefundExceedsAmount()
	}

	next := *p
	next.RefundedAmount = p.RefundedAmount.Add(amount)
	if next.RefundedAmount.Equal(next.Amount) {
		next.Status = domain.PaymentStatusRefunded
	}
	next.Version = p.Version + 1

	event := newEvent(&next, domain.EventPaymentRefunded, &req.Reason)

	if err := s.commit(ctx, &next, req.ExpectedVersion, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("refund_amount", amount.String()).
		Str("refunded_total", next.RefundedAmount.String()).
		Str("status", string(next.Status)).
		Msg("payment refunded")

	return &next, nil
}

// Expire moves PENDING or PROCESSING -> EXPIRED once the deadline has
// passed. It is invoked by the sweep, never by a user, and calling it on
// an already-terminal payment is a no-op.
func (s *PaymentServiceImpl) Expire(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsExpiredAt(time.Now().UTC()) {
		// Terminal or not yet due: nothing to do.
		return p, nil
	}

	next := *p
	next.Status = domain.PaymentStatusExpired
	next.Version = p.Version + 1

	event := newEvent(&next, domain.EventPaymentExpired, nil)

	if err := s.commit(ctx, &next, p.Version, event); err != nil {
		return nil, err
	}

	s.log.Info().Str("payment_id", p.ID.String()).Msg("payment expired")
	return &next, nil
}

// Get fetches a payment by id.
func (s *PaymentServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.getPayment(ctx, id)
}

// List fetches payments with filtering and pagination.
func (s *PaymentServiceImpl) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	payments, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list payments: %w", err))
	}
	return payments, total, nil
}

// ListEvents returns the event timeline of a payment, oldest first.
func (s *PaymentServiceImpl) ListEvents(ctx context.Context, paymentID uuid.UUID) ([]domain.DomainEvent, error) {
	if _, err := s.getPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

// transition is the shared path for simple status moves: validate the
// edge, bump the version, persist payment + event atomically, publish.
func (s *PaymentServiceImpl) transition(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	to domain.PaymentStatus,
	eventType domain.EventType,
	reason *string,
	mutate func(*domain.Payment),
) (*domain.Payment, error) {
	p, err := s.getPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Version != expectedVersion {
		return nil, apperror.ErrVersionConflict()
	}
	if !domain.CanTransition(p.Status, to) {
		return nil, apperror.ErrInvalidTransition(string(p.Status), string(to))
	}

	next := *p
	next.Status = to
	next.Version = p.Version + 1
	if mutate != nil {
		mutate(&next)
	}

	event := newEvent(&next, eventType, reason)

	if err := s.commit(ctx, &next, expectedVersion, event); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("from", string(p.Status)).
		Str("to", string(to)).
		Int64("version", next.Version).
		Msg("payment transitioned")

	return &next, nil
}

// commit persists the transitioned payment and its event in one
// transaction, using a compare-and-swap on the version column so
// concurrent callers racing on the same payment have exactly one winner.
// The event is published only after the transaction commits.
func (s *PaymentServiceImpl) commit(ctx context.Context, p *domain.Payment, expectedVersion int64, event *domain.DomainEvent) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.paymentRepo.ApplyTransition(ctx, dbTx, p, expectedVersion)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("apply transition: %w", err))
	}
	if !applied {
		return apperror.ErrVersionConflict()
	}
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("create event: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.bus.Publish(ctx, event)
	s.metrics.PaymentTransitions.WithLabelValues(string(p.Status)).Inc()
	return nil
}

func (s *PaymentServiceImpl) getPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}

// newEvent captures the post-transition snapshot as an immutable event.
func newEvent(p *domain.Payment, t domain.EventType, reason *string) *domain.DomainEvent {
	snap := domain.SnapshotOf(p)
	snap.Reason = reason
	return &domain.DomainEvent{
		ID:             uuid.New(),
		Type:           t,
		PaymentID:      p.ID,
		MerchantID:     p.MerchantID,
		PaymentVersion: p.Version,
		Payload:        snap,
		CreatedAt:      time.Now().UTC(),
	}
}
