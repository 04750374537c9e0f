package infrastructure

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/infrastructure/auth"
	"github.com/alexander-mattos/baileys/internal/infrastructure/backplane"
	"github.com/alexander-mattos/baileys/internal/infrastructure/bridge"
	"github.com/alexander-mattos/baileys/internal/infrastructure/cache"
	"github.com/alexander-mattos/baileys/internal/infrastructure/database"
	httpfx "github.com/alexander-mattos/baileys/internal/infrastructure/http"
	"github.com/alexander-mattos/baileys/internal/infrastructure/logger"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	"github.com/alexander-mattos/baileys/internal/infrastructure/ratelimit"
)

// Module aggregates all infrastructure modules
var Module = fx.Module("infrastructure",
	logger.Module,
	database.Module,
	metrics.Module,
	auth.Module,
	httpfx.Module, // depends on auth (the gate resolves tenants)
	bridge.Module,
	cache.Module, // depends on the session repository from the whatsappsession module
	ratelimit.Module,
	backplane.Module,
)
