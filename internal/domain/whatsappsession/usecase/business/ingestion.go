package business

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	hubentities "github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	domainerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// statusNotifyTimeout bounds a status listener call, which runs off the request path
const statusNotifyTimeout = 15 * time.Second

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateSessionID checks a caller supplied sessionId
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return domainerrors.ErrSessionIDRequired
	}
	if !sessionIDPattern.MatchString(sessionID) {
		return domainerrors.ErrInvalidSessionID
	}
	return nil
}

var (
	_ deps.IngestionService = (*Ingestion)(nil)
	_ deps.StreamSink       = (*Ingestion)(nil)
)

// Ingestion applies bridge state changes from webhooks and push streams.
// Both paths persist through the store and then broadcast the stored record.
type Ingestion struct {
	repo          deps.SessionRepository
	broadcaster   deps.Broadcaster
	cache         deps.TenantCache
	listener      deps.StatusListener
	defaultTenant string
	logger        zerolog.Logger
	metrics       *metrics.Metrics
	locks         *sessionLocks
}

// NewIngestion creates the ingestion use case
func NewIngestion(
	repo deps.SessionRepository,
	broadcaster deps.Broadcaster,
	cache deps.TenantCache,
	listener deps.StatusListener,
	defaultTenant string,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *Ingestion {
	return &Ingestion{
		repo:          repo,
		broadcaster:   broadcaster,
		cache:         cache,
		listener:      listener,
		defaultTenant: defaultTenant,
		logger:        logger.With().Str("component", "ingestion").Logger(),
		metrics:       m,
		locks:         newSessionLocks(),
	}
}

// HandleWebhook applies one bridge webhook. Unknown events are ignored.
func (i *Ingestion) HandleWebhook(ctx context.Context, tenantHint string, payload *dto.WebhookPayload) error {
	if payload == nil {
		i.metrics.RecordWebhookEvent("", "invalid")
		return domainerrors.ErrInvalidWebhook
	}
	payload.Normalize()

	if err := ValidateSessionID(payload.SessionID); err != nil {
		i.metrics.RecordWebhookEvent(payload.Event, "invalid")
		return err
	}

	var err error
	switch payload.Event {
	case dto.EventQRCodeUpdated:
		qr := payload.QR()
		if qr == "" {
			i.metrics.RecordWebhookEvent(payload.Event, "invalid")
			return pkgerrors.NewValidationError("qr is required for qrcode.updated")
		}
		tenantID := i.resolveTenant(ctx, tenantHint, payload.SessionID)
		_, err = i.ApplyQRCode(ctx, tenantID, payload.SessionID, qr)

	case dto.EventConnectionUpdate:
		if strings.TrimSpace(payload.Data.Status) == "" {
			i.metrics.RecordWebhookEvent(payload.Event, "invalid")
			return pkgerrors.NewValidationError("status is required for connection.update")
		}
		tenantID := i.resolveTenant(ctx, tenantHint, payload.SessionID)
		_, err = i.ApplyStatus(ctx, tenantID, payload.SessionID, payload.Data.Status)

	default:
		i.metrics.RecordWebhookEvent(payload.Event, "ignored")
		i.logger.Debug().
			Str("event", payload.Event).
			Str("session_id", payload.SessionID).
			Msg("Ignoring unknown webhook event")
		return nil
	}

	if err != nil {
		i.metrics.RecordWebhookEvent(payload.Event, "failure")
		return err
	}

	i.metrics.RecordWebhookEvent(payload.Event, "success")
	return nil
}

// ApplyQRCode records a fresh QR and moves the session to AWAITING_QR
func (i *Ingestion) ApplyQRCode(ctx context.Context, tenantID, sessionID, qrCode string) (*entities.Session, error) {
	if qrCode == "" {
		return nil, pkgerrors.NewValidationError("qr code is required")
	}

	status := entities.StatusAwaitingQR
	return i.apply(ctx, tenantID, sessionID, entities.SessionPatch{
		Status: &status,
		QRCode: &qrCode,
	})
}

// ApplyStatus normalizes a raw bridge status and records it.
// Terminal raw statuses are also reported to the status listener.
func (i *Ingestion) ApplyStatus(ctx context.Context, tenantID, sessionID, rawStatus string) (*entities.Session, error) {
	status := entities.NormalizeStatus(rawStatus)

	session, err := i.setStatus(ctx, tenantID, sessionID, status)
	if err != nil {
		return nil, err
	}

	if entities.IsTerminalRawStatus(rawStatus) {
		go i.notifyListener(context.WithoutCancel(ctx), sessionID, rawStatus, status)
	}

	return session, nil
}

func (i *Ingestion) notifyListener(ctx context.Context, sessionID, rawStatus string, status entities.Status) {
	ctx, cancel := context.WithTimeout(ctx, statusNotifyTimeout)
	defer cancel()

	if err := i.listener.NotifyStatus(ctx, sessionID, status); err != nil {
		i.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("raw_status", rawStatus).
			Msg("Failed to notify status listener")
	}
}

// HandleStreamEvent applies an event read from a push stream
func (i *Ingestion) HandleStreamEvent(ctx context.Context, tenantID, sessionID string, event *entities.StreamEvent) (entities.Status, error) {
	if event == nil {
		return "", nil
	}

	var (
		session *entities.Session
		err     error
	)

	switch {
	case event.QRCode != "":
		session, err = i.ApplyQRCode(ctx, tenantID, sessionID, event.QRCode)
	case event.Status != "":
		session, err = i.ApplyStatus(ctx, tenantID, sessionID, event.Status)
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return session.Status, nil
}

// HandleConnected records the CONNECTED state found after a stream failure
func (i *Ingestion) HandleConnected(ctx context.Context, tenantID, sessionID string) error {
	_, err := i.setStatus(ctx, tenantID, sessionID, entities.StatusConnected)
	return err
}

func (i *Ingestion) setStatus(ctx context.Context, tenantID, sessionID string, status entities.Status) (*entities.Session, error) {
	return i.apply(ctx, tenantID, sessionID, entities.SessionPatch{Status: &status}.Normalize())
}

// apply upserts and broadcasts under the session lock, so broadcasts follow upsert completion order
func (i *Ingestion) apply(ctx context.Context, tenantID, sessionID string, patch entities.SessionPatch) (*entities.Session, error) {
	if tenantID == "" {
		return nil, domainerrors.ErrTenantRequired
	}

	unlock := i.locks.lock(tenantID + "/" + sessionID)
	defer unlock()

	session, err := i.repo.Upsert(ctx, tenantID, sessionID, patch)
	if err != nil {
		i.logger.Error().
			Err(err).
			Str("tenant_id", tenantID).
			Str("session_id", sessionID).
			Msg("Failed to upsert session")
		return nil, err
	}

	i.cache.Set(sessionID, tenantID)
	i.broadcastSession(ctx, session)

	i.logger.Debug().
		Str("tenant_id", tenantID).
		Str("session_id", sessionID).
		Str("status", string(session.Status)).
		Bool("has_qr", session.QRCode != "").
		Msg("Session state applied")

	return session, nil
}

func (i *Ingestion) broadcastSession(ctx context.Context, session *entities.Session) {
	i.broadcaster.Broadcast(ctx, hubentities.Event{
		TenantID: session.TenantID,
		Kind:     hubentities.KindWhatsappSession,
		Payload: dto.SessionBroadcast{
			Action:  dto.ActionUpdate,
			Session: dto.NewSessionView(session),
		},
		DedupKey:    session.SessionID,
		Fingerprint: string(session.Status) + "|" + session.QRCode,
	})
}

// resolveTenant picks the owner of a webhook session: explicit hint, known owner, default tenant
func (i *Ingestion) resolveTenant(ctx context.Context, hint, sessionID string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}

	if tenantID, ok := i.cache.Get(sessionID); ok {
		return tenantID
	}

	session, err := i.repo.FindBySessionID(ctx, sessionID)
	if err == nil {
		i.cache.Set(sessionID, session.TenantID)
		return session.TenantID
	}
	if !pkgerrors.IsNotFound(err) {
		i.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to look up session owner")
	}

	return i.defaultTenant
}
