package postgres

import (
	"context"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(merchantID uuid.UUID) *domain.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	ref := "ORDER-001"
	return &domain.Payment{
		ID:             uuid.New(),
		ReferenceID:    &ref,
		MerchantID:     merchantID,
		Amount:         decimal.RequireFromString("0.5"),
		RefundedAmount: decimal.Zero,
		Currency:       domain.CurrencySBTC,
		Description:    "test order",
		Status:         domain.PaymentStatusPending,
		Version:        1,
		ExpiresAt:      now.Add(time.Hour),
		CreatedAt:      now,
	}
}

func paymentColumnNames() []string {
	return []string{"id", "reference_id", "merchant_id", "amount", "refunded_amount", "currency",
		"description", "customer_ref", "metadata", "status", "version", "expires_at", "created_at", "completed_at"}
}

func paymentRow(p *domain.Payment) *pgxmock.Rows {
	return pgxmock.NewRows(paymentColumnNames()).AddRow(
		p.ID, p.ReferenceID, p.MerchantID, p.Amount, p.RefundedAmount, p.Currency,
		p.Description, p.CustomerRef, p.Metadata, p.Status, p.Version,
		p.ExpiresAt, p.CreatedAt, p.CompletedAt,
	)
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payments").
		WithArgs(
			p.ID, p.ReferenceID, p.MerchantID, p.Amount, p.RefundedAmount, p.Currency,
			p.Description, p.CustomerRef, p.Metadata, p.Status, p.Version,
			p.ExpiresAt, p.CreatedAt, p.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(p.ID).
		WillReturnRows(paymentRow(p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.ID, result.ID)
	assert.True(t, p.Amount.Equal(result.Amount))
	assert.Equal(t, p.Version, result.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(paymentColumnNames()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ApplyTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())
	p.Status = domain.PaymentStatusProcessing
	p.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WithArgs(p.Status, p.RefundedAmount, p.Version, p.CompletedAt, p.ID, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.ApplyTransition(context.Background(), dbTx, p, 1)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ApplyTransition_StaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())
	p.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments").
		WithArgs(p.Status, p.RefundedAmount, p.Version, p.CompletedAt, p.ID, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.ApplyTransition(context.Background(), dbTx, p, 1)
	require.NoError(t, err)
	assert.False(t, applied, "zero rows affected means another writer won")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	merchantID := uuid.New()
	p := newTestPayment(merchantID)
	status := domain.PaymentStatusPending

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(merchantID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM payments").
		WithArgs(merchantID, status, 20, 0).
		WillReturnRows(paymentRow(p))

	payments, total, err := repo.List(context.Background(), ports.PaymentListParams{
		MerchantID: merchantID,
		Status:     &status,
		Page:       1,
		PageSize:   20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, payments, 1)
	assert.Equal(t, p.ID, payments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListExpirable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment(uuid.New())
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM payments").
		WithArgs(now, 100).
		WillReturnRows(paymentRow(p))

	payments, err := repo.ListExpirable(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
