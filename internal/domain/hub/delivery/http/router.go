package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
)

// Router registers hub HTTP routes
type Router struct {
	handler *EventsHandler
	logger  zerolog.Logger
}

// NewRouter creates a new hub router
func NewRouter(handler *EventsHandler, logger zerolog.Logger) *Router {
	return &Router{
		handler: handler,
		logger:  logger,
	}
}

// RegisterRoutes registers hub routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.GET("/api/v1/events", r.handler.Stream)
	rt.POST("/api/v1/events/{kind}", r.handler.Notify)

	r.logger.Info().Msg("Event hub routes registered")
}
