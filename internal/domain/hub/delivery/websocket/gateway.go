package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/hub/usecase/business"
	"github.com/alexander-mattos/baileys/internal/infrastructure/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Gateway pushes hub messages to browser clients over websockets
type Gateway struct {
	hub      *business.Hub
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	server   *http.Server
	addr     string
	logger   zerolog.Logger
}

// NewGateway creates a websocket gateway listening on its own port
func NewGateway(cfg *config.WebsocketConfig, hub *business.Hub, verifier *auth.Verifier, logger zerolog.Logger) *Gateway {
	g := &Gateway{
		hub:      hub,
		verifier: verifier,
		addr:     fmt.Sprintf(":%s", cfg.Port),
		logger:   logger.With().Str("component", "websocket_gateway").Logger(),
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.AllowsOrigin(r.Header.Get("Origin"))
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.ServeWS)
	g.server = &http.Server{
		Addr:              g.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return g
}

// Handler returns the gateway HTTP handler
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler
}

// Start binds the listener and serves in the background
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.addr, err)
	}

	g.logger.Info().Str("addr", g.addr).Msg("Starting websocket gateway")

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error().Err(err).Msg("websocket gateway error")
		}
	}()

	return nil
}

// Shutdown stops accepting connections; open sockets end when the hub closes their subscriptions
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info().Msg("Shutting down websocket gateway")
	return g.server.Shutdown(ctx)
}

// ServeWS handles GET /ws?companyId=1&token=...&topics=whatsappSession
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	tenant, err := g.verifier.Resolve(
		r.Header.Get("Authorization"),
		query.Get("token"),
		auth.TenantFromCompanyID(query.Get("companyId")),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var kinds []entities.Kind
	for _, part := range strings.Split(query.Get("topics"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, entities.Kind(part))
		}
	}

	sub, err := g.hub.Subscribe(tenant, kinds...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.hub.Unsubscribe(sub)
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	g.logger.Debug().
		Str("tenant_id", tenant).
		Str("subscription_id", sub.ID).
		Msg("websocket client connected")

	closed := make(chan struct{})
	go g.readPump(conn, closed)
	g.writePump(conn, sub, closed)

	g.hub.Unsubscribe(sub)
	_ = conn.Close()
}

// readPump discards client frames and detects disconnects
func (g *Gateway) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) writePump(conn *websocket.Conn, sub *business.Subscription, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
