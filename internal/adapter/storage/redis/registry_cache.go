package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// RegistryCache implements ports.RegistryCache using Redis. One key per
// (merchant, event type) holds the JSON-encoded subscriber set; registry
// mutations blow away the merchant's keys so a deactivated endpoint
// stops receiving deliveries without waiting for TTL expiry.
type RegistryCache struct {
	client *goredis.Client
	prefix string
}

// NewRegistryCache creates a new Redis-backed subscriber cache.
func NewRegistryCache(client *goredis.Client) *RegistryCache {
	return &RegistryCache{
		client: client,
		prefix: "subscribers:",
	}
}

// cachedEndpoint is the cache encoding of an endpoint. The domain type
// excludes the encrypted secret from JSON; here it must survive the
// round trip because the bus snapshots it into delivery rows.
type cachedEndpoint struct {
	ID          uuid.UUID          `json:"id"`
	MerchantID  uuid.UUID          `json:"merchant_id"`
	URL         string             `json:"url"`
	Description string             `json:"description"`
	EventTypes  []domain.EventType `json:"event_types"`
	Active      bool               `json:"active"`
	SecretEnc   string             `json:"secret_enc"`
	SuccessRate float64            `json:"success_rate"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toCached(e domain.WebhookEndpoint) cachedEndpoint {
	return cachedEndpoint{
		ID:          e.ID,
		MerchantID:  e.MerchantID,
		URL:         e.URL,
		Description: e.Description,
		EventTypes:  e.EventTypes,
		Active:      e.Active,
		SecretEnc:   e.SecretEnc,
		SuccessRate: e.SuccessRate,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromCached(c cachedEndpoint) domain.WebhookEndpoint {
	return domain.WebhookEndpoint{
		ID:          c.ID,
		MerchantID:  c.MerchantID,
		URL:         c.URL,
		Description: c.Description,
		EventTypes:  c.EventTypes,
		Active:      c.Active,
		SecretEnc:   c.SecretEnc,
		SuccessRate: c.SuccessRate,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// GetSubscribers returns the cached subscriber set for a merchant and
// event type. The second return value reports whether the key was present.
func (c *RegistryCache) GetSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, bool, error) {
	val, err := c.client.Get(ctx, c.key(merchantID, t)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis subscribers get: %w", err)
	}

	var cached []cachedEndpoint
	if err := json.Unmarshal(val, &cached); err != nil {
		return nil, false, fmt.Errorf("decode cached subscribers: %w", err)
	}

	endpoints := make([]domain.WebhookEndpoint, len(cached))
	for i, ce := range cached {
		endpoints[i] = fromCached(ce)
	}
	return endpoints, true, nil
}

// SetSubscribers stores a merchant's subscriber set for an event type
// with TTL. An empty set is cached too; "nobody listens" is a valid answer.
func (c *RegistryCache) SetSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType, endpoints []domain.WebhookEndpoint, ttl time.Duration) error {
	cached := make([]cachedEndpoint, len(endpoints))
	for i, e := range endpoints {
		cached[i] = toCached(e)
	}

	val, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode subscribers: %w", err)
	}
	if err := c.client.Set(ctx, c.key(merchantID, t), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis subscribers set: %w", err)
	}
	return nil
}

// Invalidate drops every cached subscriber set of one merchant.
func (c *RegistryCache) Invalidate(ctx context.Context, merchantID uuid.UUID) error {
	keys := make([]string, 0, len(domain.KnownEventTypes))
	for t := range domain.KnownEventTypes {
		keys = append(keys, c.key(merchantID, t))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis subscribers invalidate: %w", err)
	}
	return nil
}

func (c *RegistryCache) key(merchantID uuid.UUID, t domain.EventType) string {
	return c.prefix + merchantID.String() + ":" + string(t)
}
