package http

import (
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/internal/infrastructure/http/server"
)

// Module provides the health endpoint for fx DI
var Module = fx.Module("health",
	fx.Provide(NewHealthHandlerFx),
	fx.Invoke(registerRoutes),
)

// registerRoutes registers the health route on the server
func registerRoutes(srv *server.Server, handler *HealthHandler) {
	srv.Router.GET("/health", handler.Handle)
}
