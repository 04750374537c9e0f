package app

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/config"
	healthhttp "github.com/alexander-mattos/baileys/internal/delivery/http"
	"github.com/alexander-mattos/baileys/internal/domain/hub"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession"
	"github.com/alexander-mattos/baileys/internal/infrastructure"
)

// CreateApp creates the fx application options
func CreateApp() fx.Option {
	return fx.Options(
		fx.Provide(config.Out),
		infrastructure.Module,
		// Domain modules
		hub.Module,
		whatsappsession.Module,
		healthhttp.Module,
	)
}
