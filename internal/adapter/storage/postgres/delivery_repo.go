package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DeliveryRepo implements ports.DeliveryRepository. Pending rows double
// as the durable outbox for the in-process worker queue.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `id, event_id, endpoint_id, status, attempt_count, cycle_start,
	secret_enc, next_attempt_at, created_at, updated_at`

// CreateBatch inserts the delivery rows fanned out from one event.
func (r *DeliveryRepo) CreateBatch(ctx context.Context, ds []*domain.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO webhook_deliveries (id, event_id, endpoint_id, status, attempt_count, cycle_start,
		secret_enc, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, d := range ds {
		batch.Queue(query,
			d.ID, d.EventID, d.EndpointID, d.Status, d.AttemptCount, d.CycleStart,
			d.SecretEnc, d.NextAttemptAt, d.CreatedAt, d.UpdatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	for range ds {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert delivery: %w", err)
		}
	}
	return nil
}

// GetByID fetches a delivery pair by UUID. Returns nil when no row exists.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_deliveries WHERE id = $1`, deliveryColumns)
	return r.scanDelivery(r.pool.QueryRow(ctx, query, id))
}

// GetByEventAndEndpoint fetches the unique pair for an event and endpoint.
func (r *DeliveryRepo) GetByEventAndEndpoint(ctx context.Context, eventID, endpointID uuid.UUID) (*domain.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_deliveries WHERE event_id = $1 AND endpoint_id = $2`, deliveryColumns)
	return r.scanDelivery(r.pool.QueryRow(ctx, query, eventID, endpointID))
}

// ListByEvent returns an event's delivery pairs.
func (r *DeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_deliveries WHERE event_id = $1 ORDER BY created_at ASC`, deliveryColumns)

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	return r.collectDeliveries(rows)
}

// ListDue returns the ids of pending deliveries whose next attempt is
// due. It never mutates anything: the sweep may feed the same id more
// than once and Claim decides who actually attempts.
func (r *DeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM webhook_deliveries
		WHERE status = 'PENDING' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due delivery rows: %w", err)
	}
	return ids, nil
}

// Claim wins the right to attempt a pending due delivery by pushing its
// next_attempt_at to now+hold in one conditional update. A row that is
// terminal, not yet due, or already claimed does not match and nil is
// returned, so duplicate queue entries resolve to a single attempt. The
// hold doubles as a lease: if the winner dies mid-attempt the row falls
// due again once the hold elapses.
func (r *DeliveryRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time, hold time.Duration) (*domain.Delivery, error) {
	query := fmt.Sprintf(`UPDATE webhook_deliveries
		SET next_attempt_at = $1, updated_at = $2
		WHERE id = $3 AND status = 'PENDING' AND next_attempt_at <= $2
		RETURNING %s`, deliveryColumns)

	return r.scanDelivery(r.pool.QueryRow(ctx, query, now.Add(hold), now, id))
}

// RecordAttempt appends an attempt row and updates the pair state in one
// transaction, keeping the attempt log and the pair status consistent.
func (r *DeliveryRepo) RecordAttempt(ctx context.Context, d *domain.Delivery, a *domain.DeliveryAttempt) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record attempt: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO webhook_delivery_attempts (id, delivery_id, attempt_no, outcome, http_status, response_body, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.DeliveryID, a.AttemptNo, a.Outcome, a.HTTPStatus, a.ResponseBody, a.NextRetryAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, next_attempt_at = $3, updated_at = $4
		WHERE id = $5`,
		d.Status, d.AttemptCount, d.NextAttemptAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not found: %s", d.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record attempt: %w", err)
	}
	return nil
}

// Reset re-opens a terminal pair for a fresh manual retry cycle. The
// cycle base moves to the current attempt count so attempt numbering
// stays contiguous while the retry budget starts over.
func (r *DeliveryRepo) Reset(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE webhook_deliveries
		SET status = 'PENDING', cycle_start = attempt_count, next_attempt_at = $1, updated_at = $2
		WHERE id = $3 AND status IN ('DELIVERED', 'EXHAUSTED', 'CANCELLED')`

	tag, err := r.pool.Exec(ctx, query, at, at, id)
	if err != nil {
		return fmt.Errorf("reset delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not resettable: %s", id)
	}
	return nil
}

// ListAttempts returns a pair's attempt log, oldest first.
func (r *DeliveryRepo) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	query := `SELECT id, delivery_id, attempt_no, outcome, http_status, response_body, next_retry_at, created_at
		FROM webhook_delivery_attempts WHERE delivery_id = $1 ORDER BY attempt_no ASC`

	rows, err := r.pool.Query(ctx, query, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.DeliveryAttempt
	for rows.Next() {
		a := domain.DeliveryAttempt{}
		err := rows.Scan(&a.ID, &a.DeliveryID, &a.AttemptNo, &a.Outcome, &a.HTTPStatus, &a.ResponseBody, &a.NextRetryAt, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return attempts, nil
}

// CancelPendingByEndpoint cancels all scheduled deliveries for an
// endpoint. Rows mid-attempt keep their in-flight result; only future
// scheduled work is cancelled.
func (r *DeliveryRepo) CancelPendingByEndpoint(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	query := `UPDATE webhook_deliveries
		SET status = 'CANCELLED', next_attempt_at = NULL, updated_at = $1
		WHERE endpoint_id = $2 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), endpointID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *DeliveryRepo) scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	d := &domain.Delivery{}
	err := row.Scan(
		&d.ID, &d.EventID, &d.EndpointID, &d.Status, &d.AttemptCount, &d.CycleStart,
		&d.SecretEnc, &d.NextAttemptAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepo) collectDeliveries(rows pgx.Rows) ([]domain.Delivery, error) {
	defer rows.Close()

	var deliveries []domain.Delivery
	for rows.Next() {
		d := domain.Delivery{}
		err := rows.Scan(
			&d.ID, &d.EventID, &d.EndpointID, &d.Status, &d.AttemptCount, &d.CycleStart,
			&d.SecretEnc, &d.NextAttemptAt, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate delivery rows: %w", err)
	}
	return deliveries, nil
}
