package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/internal/core/ports/mocks"
	"stackspay-gateway/internal/metrics"
	"stackspay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestDeliverySweeper_Sweep_EnqueuesDue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	enq := &noopEnqueuer{}
	sweeper := NewDeliverySweeper(
		deliveryRepo, enq, 5*time.Second, 100,
		metrics.New(prometheus.NewRegistry()), zerolog.Nop(),
	)

	ctx := context.Background()
	due := []uuid.UUID{uuid.New(), uuid.New()}
	deliveryRepo.EXPECT().ListDue(ctx, gomock.Any(), 100).Return(due, nil)

	sweeper.Sweep(ctx)
	assert.Equal(t, due, enq.ids)
}

func TestDeliverySweeper_Sweep_ListErrorIsLoggedNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	deliveryRepo := mocks.NewMockDeliveryRepository(ctrl)
	enq := &noopEnqueuer{}
	sweeper := NewDeliverySweeper(
		deliveryRepo, enq, 5*time.Second, 100,
		metrics.New(prometheus.NewRegistry()), zerolog.Nop(),
	)

	ctx := context.Background()
	deliveryRepo.EXPECT().ListDue(ctx, gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

	sweeper.Sweep(ctx)
	assert.Empty(t, enq.ids)
}

// stubPaymentService records Expire calls; everything else panics via the
// embedded nil interface.
type stubPaymentService struct {
	ports.PaymentService
	expired []uuid.UUID
	err     error
}

func (s *stubPaymentService) Expire(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.expired = append(s.expired, id)
	return &domain.Payment{ID: id, Status: domain.PaymentStatusExpired}, nil
}

func TestExpirySweeper_Sweep_ExpiresOverduePayments(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	stub := &stubPaymentService{}
	sweeper := NewExpirySweeper(paymentRepo, stub, 30*time.Second, 200, zerolog.Nop())

	ctx := context.Background()
	due := []domain.Payment{
		{ID: uuid.New(), Status: domain.PaymentStatusPending},
		{ID: uuid.New(), Status: domain.PaymentStatusProcessing},
	}
	paymentRepo.EXPECT().ListExpirable(ctx, gomock.Any(), 200).Return(due, nil)

	sweeper.Sweep(ctx)
	assert.Equal(t, []uuid.UUID{due[0].ID, due[1].ID}, stub.expired)
}

func TestExpirySweeper_Sweep_ConflictDoesNotAbortBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	paymentRepo := mocks.NewMockPaymentRepository(ctrl)
	stub := &stubPaymentService{err: apperror.ErrVersionConflict()}
	sweeper := NewExpirySweeper(paymentRepo, stub, 30*time.Second, 200, zerolog.Nop())

	ctx := context.Background()
	due := []domain.Payment{{ID: uuid.New()}, {ID: uuid.New()}}
	paymentRepo.EXPECT().ListExpirable(ctx, gomock.Any(), 200).Return(due, nil)

	// Both payments are attempted even though each Expire fails.
	sweeper.Sweep(ctx)
	assert.Empty(t, stub.expired)
}
