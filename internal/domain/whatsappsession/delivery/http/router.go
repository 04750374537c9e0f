package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"
)

// Router registers WhatsApp session HTTP routes
type Router struct {
	sessions *SessionHandler
	webhook  *WebhookHandler
	logger   zerolog.Logger
}

// NewRouter creates a new WhatsApp session router
func NewRouter(sessions *SessionHandler, webhook *WebhookHandler, logger zerolog.Logger) *Router {
	return &Router{
		sessions: sessions,
		webhook:  webhook,
		logger:   logger,
	}
}

// RegisterRoutes registers session routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.GET("/api/v1/whatsapp/sessions", r.sessions.List)
	rt.POST("/api/v1/whatsapp/sessions", r.sessions.Create)
	rt.GET("/api/v1/whatsapp/sessions/{session_id}", r.sessions.Get)
	rt.DELETE("/api/v1/whatsapp/sessions/{session_id}", r.sessions.Delete)
	rt.POST("/api/v1/whatsapp/sessions/{session_id}/start", r.sessions.Start)
	rt.POST("/api/v1/whatsapp/sessions/{session_id}/qrcode", r.sessions.RequestQRCode)
	rt.GET("/api/v1/whatsapp/sessions/{session_id}/status", r.sessions.Status)
	rt.POST("/api/v1/whatsapp/sessions/{session_id}/messages", r.sessions.SendMessage)
	rt.GET("/api/v1/whatsapp/sessions/{session_id}/messages", r.sessions.ListMessages)
	rt.POST("/api/v1/whatsapp/{whatsapp_id}/disconnect", r.sessions.Disconnect)

	// Bridge callbacks bypass the auth gate
	rt.POST("/webhook", r.webhook.Handle)

	r.logger.Info().Msg("WhatsApp session routes registered")
}
