package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, reference_id, merchant_id, amount, refunded_amount, currency,
	description, customer_ref, metadata, status, version, expires_at, created_at, completed_at`

// Create inserts a new payment within a database transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (id, reference_id, merchant_id, amount, refunded_amount, currency,
		description, customer_ref, metadata, status, version, expires_at, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.ReferenceID, p.MerchantID, p.Amount, p.RefundedAmount, p.Currency,
		p.Description, p.CustomerRef, p.Metadata, p.Status, p.Version,
		p.ExpiresAt, p.CreatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID. Returns nil when no row exists.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return r.scanPayment(r.pool.QueryRow(ctx, query, id))
}

// ApplyTransition persists a transitioned payment guarded by a
// compare-and-swap on the version column. A zero-row update means another
// writer committed first; the caller maps that to a version conflict.
func (r *PaymentRepo) ApplyTransition(ctx context.Context, tx pgx.Tx, p *domain.Payment, expectedVersion int64) (bool, error) {
	query := `UPDATE payments
		SET status = $1, refunded_amount = $2, version = $3, completed_at = $4
		WHERE id = $5 AND version = $6`

	tag, err := tx.Exec(ctx, query,
		p.Status, p.RefundedAmount, p.Version, p.CompletedAt,
		p.ID, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("apply transition: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List fetches payments with filtering and pagination.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
	args = append(args, params.MerchantID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p := domain.Payment{}
		err := rows.Scan(
			&p.ID, &p.ReferenceID, &p.MerchantID, &p.Amount, &p.RefundedAmount, &p.Currency,
			&p.Description, &p.CustomerRef, &p.Metadata, &p.Status, &p.Version,
			&p.ExpiresAt, &p.CreatedAt, &p.CompletedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

// ListExpirable returns active payments whose expiry deadline has passed,
// oldest deadline first.
func (r *PaymentRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
		WHERE status IN ('PENDING', 'PROCESSING') AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2`, paymentColumns)

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p := domain.Payment{}
		err := rows.Scan(
			&p.ID, &p.ReferenceID, &p.MerchantID, &p.Amount, &p.RefundedAmount, &p.Currency,
			&p.Description, &p.CustomerRef, &p.Metadata, &p.Status, &p.Version,
			&p.ExpiresAt, &p.CreatedAt, &p.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan expirable payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expirable payments: %w", err)
	}
	return payments, nil
}

// scanPayment is a helper to scan a single row into a Payment.
func (r *PaymentRepo) scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.ReferenceID, &p.MerchantID, &p.Amount, &p.RefundedAmount, &p.Currency,
		&p.Description, &p.CustomerRef, &p.Metadata, &p.Status, &p.Version,
		&p.ExpiresAt, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
