package postgres

import (
	"context"
	"errors"
	"fmt"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository. Events are append-only;
// there is no update path.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create appends an event within the transition's database transaction.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.DomainEvent) error {
	query := `INSERT INTO domain_events (id, event_type, payment_id, merchant_id, payment_version, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.Type, e.PaymentID, e.MerchantID, e.PaymentVersion, e.Payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID fetches an event by UUID. Returns nil when no row exists.
func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DomainEvent, error) {
	query := `SELECT id, event_type, payment_id, merchant_id, payment_version, payload, created_at
		FROM domain_events WHERE id = $1`

	e := &domain.DomainEvent{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Type, &e.PaymentID, &e.MerchantID, &e.PaymentVersion, &e.Payload, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

// ListByPayment returns a payment's events ordered by payment version,
// which is the transition order.
func (r *EventRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.DomainEvent, error) {
	query := `SELECT id, event_type, payment_id, merchant_id, payment_version, payload, created_at
		FROM domain_events WHERE payment_id = $1 ORDER BY payment_version ASC`

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.DomainEvent
	for rows.Next() {
		e := domain.DomainEvent{}
		if err := rows.Scan(&e.ID, &e.Type, &e.PaymentID, &e.MerchantID, &e.PaymentVersion, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
