package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
)

const (
	tenantTTL       = 24 * time.Hour
	cleanupInterval = 30 * time.Minute
)

var _ deps.TenantCache = (*TenantCache)(nil)

// TenantCache maps sessionId to the owning tenant so webhooks, which carry
// no tenant, can be routed without a database lookup
type TenantCache struct {
	items  *gocache.Cache
	repo   deps.SessionRepository
	logger zerolog.Logger
}

// NewTenantCache creates a new tenant cache
func NewTenantCache(repo deps.SessionRepository, logger zerolog.Logger) *TenantCache {
	return &TenantCache{
		items:  gocache.New(tenantTTL, cleanupInterval),
		repo:   repo,
		logger: logger.With().Str("component", "tenant_cache").Logger(),
	}
}

// Get returns the cached tenant of a session
func (c *TenantCache) Get(sessionID string) (string, bool) {
	v, ok := c.items.Get(sessionID)
	if !ok {
		return "", false
	}
	tenant, ok := v.(string)
	return tenant, ok
}

// Set stores the tenant of a session
func (c *TenantCache) Set(sessionID, tenantID string) {
	c.items.Set(sessionID, tenantID, gocache.DefaultExpiration)
}

// Delete forgets a session
func (c *TenantCache) Delete(sessionID string) {
	c.items.Delete(sessionID)
}

// Len returns the number of cached sessions
func (c *TenantCache) Len() int {
	return c.items.ItemCount()
}

// LoadFromDB warms the cache with every persisted session
func (c *TenantCache) LoadFromDB(ctx context.Context) error {
	sessions, err := c.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	for _, s := range sessions {
		c.Set(s.SessionID, s.TenantID)
	}

	c.logger.Info().Int("sessions", len(sessions)).Msg("tenant cache loaded")
	return nil
}
