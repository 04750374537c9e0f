package ratelimit

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
)

// Module provides the per-session command limiter
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewKeyedLimiterFromConfig,
		func(l *KeyedLimiter) deps.CommandLimiter { return l },
	),
)
