// Package core defines the ports of the policy analysis service and the small
// pieces of business logic that sit directly on top of them.
package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// CacheRepository defines the interface for caching operations.
// The core defines the interface and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// ErrDedupKeyRequired is returned when Claim is called without a policy id.
var ErrDedupKeyRequired = errors.New("dedup key is required")

// WebhookDedupConfig holds configuration for duplicate webhook suppression.
type WebhookDedupConfig struct {
	TTL time.Duration
}

// DefaultWebhookDedupConfig returns a WebhookDedupConfig with sensible defaults.
func DefaultWebhookDedupConfig() WebhookDedupConfig {
	return WebhookDedupConfig{TTL: 10 * time.Minute}
}

// WebhookDedupService suppresses re-deliveries of the same upload webhook so an
// upstream retry does not start a second analysis of the same policy.
type WebhookDedupService struct {
	cache CacheRepository
	ttl   time.Duration
}

// NewWebhookDedupService creates a new WebhookDedupService.
func NewWebhookDedupService(cache CacheRepository, cfg WebhookDedupConfig) *WebhookDedupService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultWebhookDedupConfig().TTL
	}
	return &WebhookDedupService{cache: cache, ttl: ttl}
}

// Claim reserves policyID for analysisID. When another analysis already holds the
// claim, its id is returned with claimed=false.
func (s *WebhookDedupService) Claim(ctx context.Context, policyID, analysisID string) (string, bool, error) {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return "", false, ErrDedupKeyRequired
	}
	key := s.key(policyID)
	ok, err := s.cache.SetIfNotExists(ctx, key, []byte(analysisID), s.ttl)
	if err != nil {
		return "", false, err
	}
	if ok {
		return analysisID, true, nil
	}
	existing, err := s.cache.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if len(existing) == 0 {
		// Expired between SET NX and GET; treat as a fresh claim.
		if err := s.cache.Set(ctx, key, []byte(analysisID), s.ttl); err != nil {
			return "", false, err
		}
		return analysisID, true, nil
	}
	return string(existing), false, nil
}

// Bind points an existing claim on policyID at analysisID once the analysis id is known.
func (s *WebhookDedupService) Bind(ctx context.Context, policyID, analysisID string) error {
	policyID = strings.TrimSpace(policyID)
	if policyID == "" {
		return ErrDedupKeyRequired
	}
	return s.cache.Set(ctx, s.key(policyID), []byte(analysisID), s.ttl)
}

// Release drops the claim for policyID so a later webhook may start a new analysis.
func (s *WebhookDedupService) Release(ctx context.Context, policyID string) error {
	if strings.TrimSpace(policyID) == "" {
		return nil
	}
	_, err := s.cache.Delete(ctx, s.key(policyID))
	return err
}

func (s *WebhookDedupService) key(policyID string) string {
	return "webhook:policy:" + policyID
}
