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

// EndpointRepo implements ports.EndpointRepository. Endpoints are
// soft-deleted so delivery history keeps a valid reference.
type EndpointRepo struct {
	pool Pool
}

// NewEndpointRepo creates a new EndpointRepo.
func NewEndpointRepo(pool Pool) *EndpointRepo {
	return &EndpointRepo{pool: pool}
}

const endpointColumns = `id, merchant_id, url, description, event_types, active,
	secret_enc, success_rate, created_at, updated_at, deleted_at`

// Create inserts a new endpoint.
func (r *EndpointRepo) Create(ctx context.Context, e *domain.WebhookEndpoint) error {
	query := `INSERT INTO webhook_endpoints (id, merchant_id, url, description, event_types, active,
		secret_enc, success_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.MerchantID, e.URL, e.Description, e.EventTypes, e.Active,
		e.SecretEnc, e.SuccessRate, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

// GetByID fetches an endpoint by UUID, tombstoned rows included. The
// caller decides whether a deleted row counts as found.
func (r *EndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_endpoints WHERE id = $1`, endpointColumns)
	return r.scanEndpoint(r.pool.QueryRow(ctx, query, id))
}

// ListByMerchant returns a merchant's live endpoints.
func (r *EndpointRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_endpoints
		WHERE merchant_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`, endpointColumns)

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return r.collectEndpoints(rows)
}

// ListActiveByEventType returns a merchant's deliverable endpoints
// subscribed to an event type. This is the fan-out read path; the
// merchant filter keeps one tenant's events out of another's endpoints.
func (r *EndpointRepo) ListActiveByEventType(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_endpoints
		WHERE merchant_id = $1 AND active = TRUE AND deleted_at IS NULL AND event_types ? $2
		ORDER BY created_at ASC`, endpointColumns)

	rows, err := r.pool.Query(ctx, query, merchantID, string(t))
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return r.collectEndpoints(rows)
}

// Update persists endpoint changes.
func (r *EndpointRepo) Update(ctx context.Context, e *domain.WebhookEndpoint) error {
	query := `UPDATE webhook_endpoints
		SET url = $1, description = $2, event_types = $3, active = $4, secret_enc = $5, updated_at = $6
		WHERE id = $7 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query,
		e.URL, e.Description, e.EventTypes, e.Active, e.SecretEnc, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("endpoint not found: %s", e.ID)
	}
	return nil
}

// SoftDelete tombstones an endpoint.
func (r *EndpointRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE webhook_endpoints SET deleted_at = $1, active = FALSE, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("endpoint not found: %s", id)
	}
	return nil
}

// UpdateSuccessRate folds one delivery outcome into the endpoint's EWMA
// in SQL, so concurrent workers reporting outcomes never lose an update.
func (r *EndpointRepo) UpdateSuccessRate(ctx context.Context, id uuid.UUID, alpha, outcome float64) error {
	query := `UPDATE webhook_endpoints
		SET success_rate = success_rate * (1 - $1) + $2 * $1, updated_at = $3
		WHERE id = $4`

	_, err := r.pool.Exec(ctx, query, alpha, outcome, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update success rate: %w", err)
	}
	return nil
}

func (r *EndpointRepo) scanEndpoint(row pgx.Row) (*domain.WebhookEndpoint, error) {
	e := &domain.WebhookEndpoint{}
	err := row.Scan(
		&e.ID, &e.MerchantID, &e.URL, &e.Description, &e.EventTypes, &e.Active,
		&e.SecretEnc, &e.SuccessRate, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan endpoint: %w", err)
	}
	return e, nil
}

func (r *EndpointRepo) collectEndpoints(rows pgx.Rows) ([]domain.WebhookEndpoint, error) {
	defer rows.Close()

	var endpoints []domain.WebhookEndpoint
	for rows.Next() {
		e := domain.WebhookEndpoint{}
		err := rows.Scan(
			&e.ID, &e.MerchantID, &e.URL, &e.Description, &e.EventTypes, &e.Active,
			&e.SecretEnc, &e.SuccessRate, &e.CreatedAt, &e.UpdatedAt, &e.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint row: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate endpoint rows: %w", err)
	}
	return endpoints, nil
}
