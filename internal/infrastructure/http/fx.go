package http

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/infrastructure/auth"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/middleware"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/server"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// Module provides HTTP server for fx DI
var Module = fx.Module("http",
	fx.Provide(
		NewMapperFx,
		NewServerFx,
	),
)

// NewMapperFx creates the shared error mapper
func NewMapperFx(logger zerolog.Logger) *pkgerrors.Mapper {
	return pkgerrors.NewMapper(logger)
}

// NewServerFx creates HTTP server with lifecycle hooks for fx DI
func NewServerFx(
	lc fx.Lifecycle,
	serviceCfg *config.ServiceConfig,
	wsCfg *config.WebsocketConfig,
	verifier *auth.Verifier,
	mapper *pkgerrors.Mapper,
	logger zerolog.Logger,
) *server.Server {
	srv := server.NewServer(serviceCfg.Name, serviceCfg.Port, logger)

	srv.Use(
		middleware.RequestLogger(logger),
		middleware.CORS(wsCfg),
		middleware.Auth(verifier, mapper),
	)

	// Register Prometheus metrics endpoint
	srv.RegisterMetrics()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})

	return srv
}
