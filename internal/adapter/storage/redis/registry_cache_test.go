package redis

import (
	"context"
	"testing"
	"time"

	"stackspay-gateway/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheEndpoint(merchantID uuid.UUID) domain.WebhookEndpoint {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.WebhookEndpoint{
		ID:          uuid.New(),
		MerchantID:  merchantID,
		URL:         "https://merchant.example.com/hooks",
		EventTypes:  []domain.EventType{domain.EventPaymentConfirmed},
		Active:      true,
		SecretEnc:   "encrypted-secret",
		SuccessRate: 0.95,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRegistryCache_SetAndGet(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRegistryCache(client)
	ctx := context.Background()

	merchantID := uuid.New()
	endpoint := testCacheEndpoint(merchantID)

	// Miss before set
	_, hit, err := cache.GetSubscribers(ctx, merchantID, domain.EventPaymentConfirmed)
	assert.NoError(t, err)
	assert.False(t, hit)

	err = cache.SetSubscribers(ctx, merchantID, domain.EventPaymentConfirmed, []domain.WebhookEndpoint{endpoint}, time.Minute)
	require.NoError(t, err)

	result, hit, err := cache.GetSubscribers(ctx, merchantID, domain.EventPaymentConfirmed)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, result, 1)
	assert.Equal(t, endpoint.ID, result[0].ID)
	assert.Equal(t, endpoint.EventTypes, result[0].EventTypes)
	assert.Equal(t, "encrypted-secret", result[0].SecretEnc,
		"the encrypted secret must survive the cache round trip")
}

func TestRegistryCache_KeysAreScopedPerMerchant(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRegistryCache(client)
	ctx := context.Background()

	merchantA, merchantB := uuid.New(), uuid.New()
	err := cache.SetSubscribers(ctx, merchantA, domain.EventPaymentConfirmed,
		[]domain.WebhookEndpoint{testCacheEndpoint(merchantA)}, time.Minute)
	require.NoError(t, err)

	_, hit, err := cache.GetSubscribers(ctx, merchantB, domain.EventPaymentConfirmed)
	assert.NoError(t, err)
	assert.False(t, hit, "one merchant's warm cache must not serve another")
}

func TestRegistryCache_EmptySetIsAHit(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRegistryCache(client)
	ctx := context.Background()

	merchantID := uuid.New()
	err := cache.SetSubscribers(ctx, merchantID, domain.EventPaymentFailed, nil, time.Minute)
	require.NoError(t, err)

	result, hit, err := cache.GetSubscribers(ctx, merchantID, domain.EventPaymentFailed)
	require.NoError(t, err)
	assert.True(t, hit, "a cached empty set must not read as a miss")
	assert.Empty(t, result)
}

func TestRegistryCache_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRegistryCache(client)
	ctx := context.Background()

	merchantID := uuid.New()
	err := cache.SetSubscribers(ctx, merchantID, domain.EventPaymentConfirmed,
		[]domain.WebhookEndpoint{testCacheEndpoint(merchantID)}, time.Second)
	require.NoError(t, err)

	s.FastForward(2 * time.Second)

	_, hit, err := cache.GetSubscribers(ctx, merchantID, domain.EventPaymentConfirmed)
	assert.NoError(t, err)
	assert.False(t, hit)
}

func TestRegistryCache_Invalidate(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRegistryCache(client)
	ctx := context.Background()

	merchantID := uuid.New()
	otherMerchant := uuid.New()
	for _, et := range []domain.EventType{domain.EventPaymentConfirmed, domain.EventPaymentRefunded} {
		err := cache.SetSubscribers(ctx, merchantID, et, []domain.WebhookEndpoint{testCacheEndpoint(merchantID)}, time.Minute)
		require.NoError(t, err)
	}
	err := cache.SetSubscribers(ctx, otherMerchant, domain.EventPaymentConfirmed,
		[]domain.WebhookEndpoint{testCacheEndpoint(otherMerchant)}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, merchantID))

	for _, et := range []domain.EventType{domain.EventPaymentConfirmed, domain.EventPaymentRefunded} {
		_, hit, err := cache.GetSubscribers(ctx, merchantID, et)
		assert.NoError(t, err)
		assert.False(t, hit, string(et))
	}

	// The other merchant's entries survive.
	_, hit, err := cache.GetSubscribers(ctx, otherMerchant, domain.EventPaymentConfirmed)
	assert.NoError(t, err)
	assert.True(t, hit)
}
