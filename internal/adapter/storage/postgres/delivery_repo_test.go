package postgres

import (
	"context"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDelivery() *domain.Delivery {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Delivery{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EndpointID:    uuid.New(),
		Status:        domain.DeliveryStatusPending,
		AttemptCount:  0,
		CycleStart:    0,
		SecretEnc:     "enc",
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func deliveryColumnNames() []string {
	return []string{"id", "event_id", "endpoint_id", "status", "attempt_count", "cycle_start",
		"secret_enc", "next_attempt_at", "created_at", "updated_at"}
}

func deliveryRow(d *domain.Delivery) *pgxmock.Rows {
	return pgxmock.NewRows(deliveryColumnNames()).AddRow(
		d.ID, d.EventID, d.EndpointID, d.Status, d.AttemptCount, d.CycleStart,
		d.SecretEnc, d.NextAttemptAt, d.CreatedAt, d.UpdatedAt,
	)
}

func TestDeliveryRepo_CreateBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	d1, d2 := newTestDelivery(), newTestDelivery()

	batch := mock.ExpectBatch()
	batch.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(d1.ID, d1.EventID, d1.EndpointID, d1.Status, d1.AttemptCount, d1.CycleStart,
			d1.SecretEnc, d1.NextAttemptAt, d1.CreatedAt, d1.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec("INSERT INTO webhook_deliveries").
		WithArgs(d2.ID, d2.EventID, d2.EndpointID, d2.Status, d2.AttemptCount, d2.CycleStart,
			d2.SecretEnc, d2.NextAttemptAt, d2.CreatedAt, d2.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.CreateBatch(context.Background(), []*domain.Delivery{d1, d2})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_CreateBatch_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	assert.NoError(t, repo.CreateBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_GetByEventAndEndpoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	d := newTestDelivery()

	mock.ExpectQuery("SELECT .+ FROM webhook_deliveries WHERE event_id .+ AND endpoint_id").
		WithArgs(d.EventID, d.EndpointID).
		WillReturnRows(deliveryRow(d))

	result, err := repo.GetByEventAndEndpoint(context.Background(), d.EventID, d.EndpointID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, d.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_ListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	id1, id2 := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id FROM webhook_deliveries").
		WithArgs(now, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id1).AddRow(id2))

	due, err := repo.ListDue(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id1, id2}, due)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Claim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	d := newTestDelivery()
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE webhook_deliveries").
		WithArgs(now.Add(time.Minute), now, d.ID).
		WillReturnRows(deliveryRow(d))

	claimed, err := repo.Claim(context.Background(), d.ID, now, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, d.ID, claimed.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Claim_NotWon(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	id := uuid.New()
	now := time.Now().UTC()

	// Terminal, future-dated or already-claimed rows match nothing.
	mock.ExpectQuery("UPDATE webhook_deliveries").
		WithArgs(now.Add(time.Minute), now, id).
		WillReturnRows(pgxmock.NewRows(deliveryColumnNames()))

	claimed, err := repo.Claim(context.Background(), id, now, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_RecordAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	d := newTestDelivery()
	d.Status = domain.DeliveryStatusDelivered
	d.AttemptCount = 1
	d.NextAttemptAt = nil

	status := 200
	a := &domain.DeliveryAttempt{
		ID:         uuid.New(),
		DeliveryID: d.ID,
		AttemptNo:  1,
		Outcome:    domain.AttemptOutcomeSuccess,
		HTTPStatus: &status,
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO webhook_delivery_attempts").
		WithArgs(a.ID, a.DeliveryID, a.AttemptNo, a.Outcome, a.HTTPStatus, a.ResponseBody, a.NextRetryAt, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(d.Status, d.AttemptCount, d.NextAttemptAt, d.UpdatedAt, d.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = repo.RecordAttempt(context.Background(), d, a)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Reset(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(at, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Reset(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Reset_NotTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)

	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Reset(context.Background(), uuid.New(), time.Now().UTC())
	assert.Error(t, err, "only terminal pairs can be reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_CancelPendingByEndpoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewDeliveryRepo(mock)
	endpointID := uuid.New()

	mock.ExpectExec("UPDATE webhook_deliveries").
		WithArgs(pgxmock.AnyArg(), endpointID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	cancelled, err := repo.CancelPendingByEndpoint(context.Background(), endpointID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
