package http

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
)

const healthCheckTimeout = 3 * time.Second

// Pinger is implemented by components that can probe their connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents health status of a single component
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the JSON response for health check
type HealthResponse struct {
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthHandler handles HTTP health check requests
type HealthHandler struct {
	database  Pinger
	bridgeCfg *config.BridgeConfig
	backplane deps.Backplane
	logger    zerolog.Logger
}

// HealthHandlerParams defines parameters for HealthHandler with optional dependencies
type HealthHandlerParams struct {
	fx.In

	DB        *gorm.DB
	BridgeCfg *config.BridgeConfig
	Backplane deps.Backplane `optional:"true"`
	Logger    zerolog.Logger
}

// NewHealthHandlerFx creates a health handler from the fx graph
func NewHealthHandlerFx(params HealthHandlerParams) *HealthHandler {
	return NewHealthHandler(GormPinger{DB: params.DB}, params.BridgeCfg, params.Backplane, params.Logger)
}

// NewHealthHandler creates a new health check handler; backplane is nil for in-process delivery
func NewHealthHandler(database Pinger, bridgeCfg *config.BridgeConfig, backplane deps.Backplane, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		database:  database,
		bridgeCfg: bridgeCfg,
		backplane: backplane,
		logger:    logger,
	}
}

// Handle handles GET /health
func (h *HealthHandler) Handle(ctx *fasthttp.RequestCtx) {
	checkCtx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	components := h.checkComponents(checkCtx)
	status := h.determineOverallStatus(components)

	response := HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}

	statusCode := fasthttp.StatusOK
	if status == HealthStatusUnhealthy {
		statusCode = fasthttp.StatusServiceUnavailable
	}

	logEvent := h.logger.Debug()
	if status == HealthStatusUnhealthy {
		logEvent = h.logger.Warn()
	} else if status == HealthStatusDegraded {
		logEvent = h.logger.Info()
	}
	logEvent.
		Str("status", string(status)).
		Int("status_code", statusCode).
		Interface("components", components).
		Msg("Health check completed")

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)

	body, err := json.Marshal(response)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode health check response")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetBody(body)
}

func (h *HealthHandler) checkComponents(ctx context.Context) []ComponentHealth {
	components := make([]ComponentHealth, 0, 3)

	dbHealthy := true
	dbMsg := ""
	if err := h.database.Ping(ctx); err != nil {
		dbHealthy = false
		dbMsg = "Database is not reachable: " + err.Error()
	}
	components = append(components, ComponentHealth{
		Name:    "database",
		Healthy: dbHealthy,
		Message: dbMsg,
	})

	bridgeHealthy := true
	bridgeMsg := ""
	if err := h.bridgeCfg.Validate(); err != nil {
		bridgeHealthy = false
		bridgeMsg = err.Error()
	}
	components = append(components, ComponentHealth{
		Name:    "bridge_config",
		Healthy: bridgeHealthy,
		Message: bridgeMsg,
	})

	components = append(components, h.checkBackplane(ctx))

	return components
}

func (h *HealthHandler) checkBackplane(ctx context.Context) ComponentHealth {
	if h.backplane == nil {
		return ComponentHealth{Name: "backplane", Healthy: true, Message: "in-process delivery"}
	}

	component := ComponentHealth{Name: "backplane_" + h.backplane.Name(), Healthy: true}
	if pinger, ok := h.backplane.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			component.Healthy = false
			component.Message = err.Error()
		}
	}
	return component
}

// determineOverallStatus determines overall health status based on component health
func (h *HealthHandler) determineOverallStatus(components []ComponentHealth) HealthStatus {
	allHealthy := true
	anyHealthy := false

	for _, component := range components {
		if !component.Healthy {
			allHealthy = false
		} else {
			anyHealthy = true
		}
	}

	if allHealthy {
		return HealthStatusHealthy
	} else if anyHealthy {
		return HealthStatusDegraded
	}

	return HealthStatusUnhealthy
}

// GormPinger probes the connection pool behind a gorm handle
type GormPinger struct {
	DB *gorm.DB
}

// Ping pings the underlying sql.DB
func (p GormPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
