package cache

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
)

// Module provides cache components for fx DI
var Module = fx.Module("cache",
	fx.Provide(
		NewTenantCache,
		func(c *TenantCache) deps.TenantCache { return c },
	),
	fx.Invoke(registerCacheLifecycle),
)

func registerCacheLifecycle(
	lc fx.Lifecycle,
	cache *TenantCache,
	logger zerolog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info().Msg("loading tenant cache from database")
			if err := cache.LoadFromDB(ctx); err != nil {
				// webhooks fall back to the repository lookup, so a cold cache is not fatal
				logger.Error().Err(err).Msg("failed to load tenant cache from database")
			}
			return nil
		},
	})
}
