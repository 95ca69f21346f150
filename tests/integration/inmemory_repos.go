package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
	order    []uuid.UUID
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) ApplyTransition(ctx context.Context, tx pgx.Tx, p *domain.Payment, expectedVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.payments[p.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	cp := *p
	r.payments[p.ID] = &cp
	return true, nil
}

func (r *inMemoryPaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Payment
	for _, id := range r.order {
		p := r.payments[id]
		if p.MerchantID != params.MerchantID {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		matched = append(matched, *p)
	}
	// Newest first, like the SQL layer
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return []domain.Payment{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *inMemoryPaymentRepo) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []domain.Payment
	for _, id := range r.order {
		p := r.payments[id]
		if p.IsExpiredAt(now) {
			due = append(due, *p)
			if len(due) >= limit {
				break
			}
		}
	}
	return due, nil
}

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.DomainEvent
	order  []uuid.UUID
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{events: make(map[uuid.UUID]*domain.DomainEvent)}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.ID] = &cp
	r.order = append(r.order, e.ID)
	return nil
}

func (r *inMemoryEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEventRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.DomainEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.DomainEvent
	for _, id := range r.order {
		e := r.events[id]
		if e.PaymentID == paymentID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// --- In-Memory Endpoint Repo ---

type inMemoryEndpointRepo struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID]*domain.WebhookEndpoint
	order     []uuid.UUID
}

func newInMemoryEndpointRepo() *inMemoryEndpointRepo {
	return &inMemoryEndpointRepo{endpoints: make(map[uuid.UUID]*domain.WebhookEndpoint)}
}

func (r *inMemoryEndpointRepo) Create(ctx context.Context, e *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.endpoints[e.ID] = &cp
	r.order = append(r.order, e.ID)
	return nil
}

func (r *inMemoryEndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok || e.DeletedAt != nil {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEndpointRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEndpoint
	for _, id := range r.order {
		e := r.endpoints[id]
		if e.MerchantID == merchantID && e.DeletedAt == nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *inMemoryEndpointRepo) ListActiveByEventType(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEndpoint
	for _, id := range r.order {
		e := r.endpoints[id]
		if e.MerchantID == merchantID && e.Deliverable() && e.SubscribedTo(t) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *inMemoryEndpointRepo) Update(ctx context.Context, e *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.endpoints[e.ID] = &cp
	return nil
}

func (r *inMemoryEndpointRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[id]; ok {
		e.DeletedAt = &at
		e.UpdatedAt = at
	}
	return nil
}

func (r *inMemoryEndpointRepo) UpdateSuccessRate(ctx context.Context, id uuid.UUID, alpha, outcome float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.endpoints[id]; ok {
		e.SuccessRate = (1-alpha)*e.SuccessRate + alpha*outcome
	}
	return nil
}

// --- In-Memory Delivery Repo ---

type inMemoryDeliveryRepo struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]*domain.Delivery
	attempts   map[uuid.UUID][]domain.DeliveryAttempt
	order      []uuid.UUID
}

func newInMemoryDeliveryRepo() *inMemoryDeliveryRepo {
	return &inMemoryDeliveryRepo{
		deliveries: make(map[uuid.UUID]*domain.Delivery),
		attempts:   make(map[uuid.UUID][]domain.DeliveryAttempt),
	}
}

func (r *inMemoryDeliveryRepo) CreateBatch(ctx context.Context, ds []*domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range ds {
		cp := *d
		r.deliveries[d.ID] = &cp
		r.order = append(r.order, d.ID)
	}
	return nil
}

func (r *inMemoryDeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryDeliveryRepo) GetByEventAndEndpoint(ctx context.Context, eventID, endpointID uuid.UUID) (*domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.deliveries {
		if d.EventID == eventID && d.EndpointID == endpointID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryDeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Delivery
	for _, id := range r.order {
		d := r.deliveries[id]
		if d.EventID == eventID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *inMemoryDeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []uuid.UUID
	for _, id := range r.order {
		d := r.deliveries[id]
		if d.Status != domain.DeliveryStatusPending || d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, id)
		if len(due) >= limit {
			break
		}
	}
	return due, nil
}

func (r *inMemoryDeliveryRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time, hold time.Duration) (*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok || d.Status != domain.DeliveryStatusPending || d.NextAttemptAt == nil || d.NextAttemptAt.After(now) {
		return nil, nil
	}
	held := now.Add(hold)
	d.NextAttemptAt = &held
	d.UpdatedAt = now
	cp := *d
	return &cp, nil
}

func (r *inMemoryDeliveryRepo) RecordAttempt(ctx context.Context, d *domain.Delivery, a *domain.DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	r.attempts[d.ID] = append(r.attempts[d.ID], *a)
	return nil
}

func (r *inMemoryDeliveryRepo) Reset(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil
	}
	d.Status = domain.DeliveryStatusPending
	d.CycleStart = d.AttemptCount
	d.NextAttemptAt = &at
	d.UpdatedAt = at
	return nil
}

func (r *inMemoryDeliveryRepo) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DeliveryAttempt, len(r.attempts[deliveryID]))
	copy(out, r.attempts[deliveryID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}

func (r *inMemoryDeliveryRepo) CancelPendingByEndpoint(ctx context.Context, endpointID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.deliveries {
		if d.EndpointID == endpointID && d.Status == domain.DeliveryStatusPending {
			d.Status = domain.DeliveryStatusCancelled
			d.NextAttemptAt = nil
			n++
		}
	}
	return n, nil
}

// --- In-Memory Transactor ---

type inMemoryTransactor struct{}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
