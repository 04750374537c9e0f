package whatsappsession

import (
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/alexander-mattos/baileys/config"
	sessionhttp "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/delivery/http"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/repository/postgres"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/usecase/business"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/watcher"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/server"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// Module provides WhatsApp session components for fx DI
var Module = fx.Module("whatsappsession",
	fx.Provide(NewRepositoryFx),
	fx.Provide(NewIngestionFx),
	fx.Provide(
		func(i *business.Ingestion) deps.IngestionService { return i },
		func(i *business.Ingestion) deps.StreamSink { return i },
	),
	fx.Provide(business.NewQRAcquirer),
	fx.Provide(NewWatcherFx),
	fx.Provide(NewUseCaseFx),
	fx.Provide(NewSessionHandlerFx),
	fx.Provide(sessionhttp.NewWebhookHandler),
	fx.Provide(sessionhttp.NewRouter),
	fx.Invoke(RegisterRoutes),
)

// NewRepositoryFx creates the session repository for fx DI
func NewRepositoryFx(db *gorm.DB) deps.SessionRepository {
	return postgres.NewRepository(db)
}

// NewIngestionFx creates the ingestion use case; unresolvable webhooks fall back to the default tenant
func NewIngestionFx(
	repo deps.SessionRepository,
	broadcaster deps.Broadcaster,
	cache deps.TenantCache,
	listener deps.StatusListener,
	authCfg *config.AuthConfig,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *business.Ingestion {
	return business.NewIngestion(repo, broadcaster, cache, listener, authCfg.DefaultTenant, logger, m)
}

// NewWatcherFx creates the stream watcher and stops every watch on shutdown
func NewWatcherFx(
	lc fx.Lifecycle,
	bridge deps.Bridge,
	sink deps.StreamSink,
	logger zerolog.Logger,
	m *metrics.Metrics,
) deps.Watcher {
	manager := watcher.NewManager(bridge, sink, logger, m)

	lc.Append(fx.Hook{
		OnStop: manager.StopAll,
	})

	return manager
}

// UseCaseParams are the dependencies of the command use case
type UseCaseParams struct {
	fx.In

	Repo        deps.SessionRepository
	Bridge      deps.Bridge
	Ingestion   *business.Ingestion
	QR          *business.QRAcquirer
	Watcher     deps.Watcher
	Broadcaster deps.Broadcaster
	Cache       deps.TenantCache
	Limiter     deps.CommandLimiter
	BridgeCfg   *config.BridgeConfig
	Logger      zerolog.Logger
}

// NewUseCaseFx creates the command use case for fx DI
func NewUseCaseFx(p UseCaseParams) deps.SessionService {
	return business.NewUseCase(
		p.Repo,
		p.Bridge,
		p.Ingestion,
		p.QR,
		p.Watcher,
		p.Broadcaster,
		p.Cache,
		p.Limiter,
		p.BridgeCfg.JIDSuffix,
		p.Logger,
	)
}

// NewSessionHandlerFx creates the command API handler for fx DI
func NewSessionHandlerFx(useCase deps.SessionService, mapper *pkgerrors.Mapper, logger zerolog.Logger) *sessionhttp.SessionHandler {
	return sessionhttp.NewSessionHandler(useCase, mapper, logger)
}

// RegisterRoutes registers session routes on the server
func RegisterRoutes(server *server.Server, router *sessionhttp.Router) {
	router.RegisterRoutes(server.Router)
}
