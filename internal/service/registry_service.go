package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"stackspay-gateway/internal/core/domain"
	"stackspay-gateway/internal/core/ports"
	"stackspay-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// secretPrefix marks gateway-issued endpoint secrets, mirroring the
// prefix merchants see in their dashboard.
const secretPrefix = "whsec_"

// RegistryServiceImpl owns webhook endpoint configuration. Endpoint
// secrets are generated here, returned in plaintext exactly once, and
// stored only in encrypted form. Every mutation invalidates the cached
// subscriber sets so deactivations take effect immediately.
type RegistryServiceImpl struct {
	endpointRepo ports.EndpointRepository
	deliveryRepo ports.DeliveryRepository
	encryption   ports.EncryptionService
	cache        ports.RegistryCache
	cacheTTL     time.Duration
	log          zerolog.Logger
}

// NewRegistryService creates a new RegistryServiceImpl.
func NewRegistryService(
	endpointRepo ports.EndpointRepository,
	deliveryRepo ports.DeliveryRepository,
	encryption ports.EncryptionService,
	cache ports.RegistryCache,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *RegistryServiceImpl {
	return &RegistryServiceImpl{
		endpointRepo: endpointRepo,
		deliveryRepo: deliveryRepo,
		encryption:   encryption,
		cache:        cache,
		cacheTTL:     cacheTTL,
		log:          log,
	}
}

// CreateEndpoint registers a delivery target and returns it together
// with the plaintext signing secret. The secret is not recoverable
// afterwards, only rotatable.
func (s *RegistryServiceImpl) CreateEndpoint(ctx context.Context, req ports.CreateEndpointRequest) (*domain.WebhookEndpoint, string, error) {
	if err := validateEndpointURL(req.URL); err != nil {
		return nil, "", err
	}
	if err := validateEventTypes(req.EventTypes); err != nil {
		return nil, "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}
	secretEnc, err := s.encryption.Encrypt(secret)
	if err != nil {
		return nil, "", apperror.ErrEncryptionFailure(err)
	}

	now := time.Now().UTC()
	endpoint := &domain.WebhookEndpoint{
		ID:          uuid.New(),
		MerchantID:  req.MerchantID,
		URL:         req.URL,
		Description: req.Description,
		EventTypes:  req.EventTypes,
		Active:      true,
		SecretEnc:   secretEnc,
		SuccessRate: 1.0, // Optimistic prior until real outcomes arrive
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.endpointRepo.Create(ctx, endpoint); err != nil {
		return nil, "", apperror.InternalError(fmt.Errorf("create endpoint: %w", err))
	}

	s.invalidate(ctx, endpoint.MerchantID)

	s.log.Info().
		Str("endpoint_id", endpoint.ID.String()).
		Str("url", endpoint.URL).
		Int("event_types", len(endpoint.EventTypes)).
		Msg("endpoint registered")

	return endpoint, secret, nil
}

// GetEndpoint fetches an endpoint by id. Soft-deleted rows are not found.
func (s *RegistryServiceImpl) GetEndpoint(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	return s.getEndpoint(ctx, id)
}

// ListEndpoints returns a merchant's endpoints.
func (s *RegistryServiceImpl) ListEndpoints(ctx context.Context, merchantID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	endpoints, err := s.endpointRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list endpoints: %w", err))
	}
	return endpoints, nil
}

// UpdateEndpoint applies a partial update. Deactivating an endpoint also
// cancels its scheduled retries; attempts already in flight complete and
// are logged.
func (s *RegistryServiceImpl) UpdateEndpoint(ctx context.Context, id uuid.UUID, req ports.UpdateEndpointRequest) (*domain.WebhookEndpoint, error) {
	endpoint, err := s.getEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.URL != nil {
		if err := validateEndpointURL(*req.URL); err != nil {
			return nil, err
		}
		endpoint.URL = *req.URL
	}
	if req.Description != nil {
		endpoint.Description = *req.Description
	}
	if req.EventTypes != nil {
		if err := validateEventTypes(req.EventTypes); err != nil {
			return nil, err
		}
		endpoint.EventTypes = req.EventTypes
	}

	deactivated := false
	if req.Active != nil {
		deactivated = endpoint.Active && !*req.Active
		endpoint.Active = *req.Active
	}
	endpoint.UpdatedAt = time.Now().UTC()

	if err := s.endpointRepo.Update(ctx, endpoint); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update endpoint: %w", err))
	}

	if deactivated {
		s.cancelPending(ctx, endpoint.ID)
	}
	s.invalidate(ctx, endpoint.MerchantID)

	return endpoint, nil
}

// DeleteEndpoint tombstones the endpoint and cancels its scheduled
// retries. Historical delivery attempts keep referencing the row.
func (s *RegistryServiceImpl) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	endpoint, err := s.getEndpoint(ctx, id)
	if err != nil {
		return err
	}
	if err := s.endpointRepo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return apperror.InternalError(fmt.Errorf("delete endpoint: %w", err))
	}

	s.cancelPending(ctx, id)
	s.invalidate(ctx, endpoint.MerchantID)

	s.log.Info().Str("endpoint_id", id.String()).Msg("endpoint deleted")
	return nil
}

// RotateSecret replaces the signing secret and returns the new plaintext.
// Deliveries already scheduled keep signing with the secret snapshotted
// when they were created.
func (s *RegistryServiceImpl) RotateSecret(ctx context.Context, id uuid.UUID) (string, error) {
	endpoint, err := s.getEndpoint(ctx, id)
	if err != nil {
		return "", err
	}

	secret, err := generateSecret()
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}
	secretEnc, err := s.encryption.Encrypt(secret)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(err)
	}

	endpoint.SecretEnc = secretEnc
	endpoint.UpdatedAt = time.Now().UTC()
	if err := s.endpointRepo.Update(ctx, endpoint); err != nil {
		return "", apperror.InternalError(fmt.Errorf("update endpoint: %w", err))
	}

	s.invalidate(ctx, endpoint.MerchantID)

	s.log.Info().Str("endpoint_id", id.String()).Msg("endpoint secret rotated")
	return secret, nil
}

// ListActiveSubscribers resolves the merchant's active endpoints
// subscribed to an event type, serving from the cache when warm. Cache
// failures degrade to the database, never to a delivery gap.
func (s *RegistryServiceImpl) ListActiveSubscribers(ctx context.Context, merchantID uuid.UUID, t domain.EventType) ([]domain.WebhookEndpoint, error) {
	cached, hit, err := s.cache.GetSubscribers(ctx, merchantID, t)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", string(t)).Msg("subscriber cache read failed")
	} else if hit {
		return cached, nil
	}

	endpoints, err := s.endpointRepo.ListActiveByEventType(ctx, merchantID, t)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list subscribers: %w", err))
	}

	if err := s.cache.SetSubscribers(ctx, merchantID, t, endpoints, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("event_type", string(t)).Msg("subscriber cache write failed")
	}
	return endpoints, nil
}

func (s *RegistryServiceImpl) getEndpoint(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	endpoint, err := s.endpointRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get endpoint: %w", err))
	}
	if endpoint == nil || endpoint.DeletedAt != nil {
		return nil, apperror.ErrEndpointNotFound()
	}
	return endpoint, nil
}

func (s *RegistryServiceImpl) cancelPending(ctx context.Context, endpointID uuid.UUID) {
	cancelled, err := s.deliveryRepo.CancelPendingByEndpoint(ctx, endpointID)
	if err != nil {
		s.log.Error().Err(err).Str("endpoint_id", endpointID.String()).Msg("cancel pending deliveries failed")
		return
	}
	if cancelled > 0 {
		s.log.Info().Str("endpoint_id", endpointID.String()).Int64("cancelled", cancelled).Msg("pending deliveries cancelled")
	}
}

func (s *RegistryServiceImpl) invalidate(ctx context.Context, merchantID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, merchantID); err != nil {
		s.log.Warn().Err(err).Msg("subscriber cache invalidation failed")
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

func validateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return apperror.ErrInvalidEndpointURL()
	}
	return nil
}

func validateEventTypes(types []domain.EventType) error {
	if len(types) == 0 {
		return apperror.Validation("at least one event type is required")
	}
	for _, t := range types {
		if !domain.KnownEventTypes[t] {
			return apperror.ErrInvalidEventType(string(t))
		}
	}
	return nil
}
