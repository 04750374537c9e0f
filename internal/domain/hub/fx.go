package hub

import (
	"context"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"github.com/alexander-mattos/baileys/config"
	hubhttp "github.com/alexander-mattos/baileys/internal/domain/hub/delivery/http"
	"github.com/alexander-mattos/baileys/internal/domain/hub/delivery/websocket"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	"github.com/alexander-mattos/baileys/internal/domain/hub/usecase/business"
	sessiondeps "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/infrastructure/auth"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/server"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// Module provides the event fan-out hub for fx DI
var Module = fx.Module("hub",
	fx.Provide(NewHubFx),
	fx.Provide(func(h *business.Hub) sessiondeps.Broadcaster { return h }),
	fx.Provide(NewEventsHandlerFx),
	fx.Provide(NewRouterFx),
	fx.Provide(NewGatewayFx),
	fx.Invoke(RegisterRoutes),
)

// HubParams are the dependencies of the hub; the backplane is absent for in-process delivery
type HubParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.BroadcastConfig
	Backplane deps.Backplane `optional:"true"`
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// NewHubFx creates the hub with lifecycle hooks
func NewHubFx(p HubParams) *business.Hub {
	h := business.NewHub(p.Config.SubscriberBuffer, p.Backplane, p.Logger, p.Metrics)

	p.Lifecycle.Append(fx.Hook{
		OnStart: h.Start,
		OnStop:  h.Stop,
	})

	return h
}

// NewEventsHandlerFx creates the SSE handler for fx DI
func NewEventsHandlerFx(h *business.Hub, mapper *pkgerrors.Mapper, logger zerolog.Logger) *hubhttp.EventsHandler {
	return hubhttp.NewEventsHandler(h, mapper, logger)
}

// NewRouterFx creates the hub router for fx DI
func NewRouterFx(handler *hubhttp.EventsHandler, logger zerolog.Logger) *hubhttp.Router {
	return hubhttp.NewRouter(handler, logger)
}

// NewGatewayFx creates the websocket gateway with its own listener
func NewGatewayFx(
	lc fx.Lifecycle,
	cfg *config.WebsocketConfig,
	h *business.Hub,
	verifier *auth.Verifier,
	logger zerolog.Logger,
) *websocket.Gateway {
	gw := websocket.NewGateway(cfg, h, verifier, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return gw.Start()
		},
		OnStop: gw.Shutdown,
	})

	return gw
}

// RegisterRoutes registers hub routes on the server
func RegisterRoutes(server *server.Server, router *hubhttp.Router, _ *websocket.Gateway) {
	router.RegisterRoutes(server.Router)
}
