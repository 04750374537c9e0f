package business

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	hubentities "github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	domainerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

var _ deps.SessionService = (*UseCase)(nil)

// UseCase implements the session command API
type UseCase struct {
	repo        deps.SessionRepository
	bridge      deps.Bridge
	ingestion   *Ingestion
	qr          *QRAcquirer
	watcher     deps.Watcher
	broadcaster deps.Broadcaster
	cache       deps.TenantCache
	limiter     deps.CommandLimiter
	jidSuffix   string
	logger      zerolog.Logger
}

// NewUseCase creates a new session use case
func NewUseCase(
	repo deps.SessionRepository,
	bridge deps.Bridge,
	ingestion *Ingestion,
	qr *QRAcquirer,
	watcher deps.Watcher,
	broadcaster deps.Broadcaster,
	cache deps.TenantCache,
	limiter deps.CommandLimiter,
	jidSuffix string,
	logger zerolog.Logger,
) *UseCase {
	return &UseCase{
		repo:        repo,
		bridge:      bridge,
		ingestion:   ingestion,
		qr:          qr,
		watcher:     watcher,
		broadcaster: broadcaster,
		cache:       cache,
		limiter:     limiter,
		jidSuffix:   jidSuffix,
		logger:      logger.With().Str("component", "session_usecase").Logger(),
	}
}

// ListSessions returns the sessions of a tenant, default first
func (u *UseCase) ListSessions(ctx context.Context, tenantID string) ([]*entities.Session, error) {
	if tenantID == "" {
		return nil, domainerrors.ErrTenantRequired
	}
	return u.repo.List(ctx, tenantID)
}

// GetSession returns one session
func (u *UseCase) GetSession(ctx context.Context, tenantID, sessionID string) (*entities.Session, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}
	return u.repo.Get(ctx, tenantID, sessionID)
}

// CreateSession registers the session on the bridge, stores it and starts watching its stream
func (u *UseCase) CreateSession(ctx context.Context, tenantID string, req *dto.CreateSessionRequest) (*entities.Session, error) {
	if req == nil {
		return nil, domainerrors.ErrSessionIDRequired
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if err := validateTarget(tenantID, req.SessionID); err != nil {
		return nil, err
	}

	reply, err := u.bridge.IssueCommand(ctx, req.SessionID, entities.CommandCreate, map[string]interface{}{
		"sessionId": req.SessionID,
		"name":      req.Name,
		"isDefault": req.IsDefault,
	})
	if err != nil {
		u.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("session_id", req.SessionID).
			Msg("Failed to create session on bridge")
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.SessionID
	}
	session, err := u.repo.Upsert(ctx, tenantID, req.SessionID, entities.SessionPatch{
		Name:      &name,
		IsDefault: &req.IsDefault,
	})
	if err != nil {
		return nil, err
	}
	u.cache.Set(session.SessionID, tenantID)

	if qr := reply.QR(); qr != "" {
		updated, err := u.ingestion.ApplyQRCode(ctx, tenantID, session.SessionID, qr)
		if err != nil {
			u.logger.Warn().Err(err).Str("session_id", session.SessionID).Msg("Failed to record QR from create")
		} else {
			session = updated
		}
	}

	u.broadcastWhatsapp(ctx, dto.ActionUpdate, session)
	u.watcher.Watch(tenantID, session.SessionID)

	u.logger.Info().
		Str("tenant_id", tenantID).
		Str("session_id", session.SessionID).
		Uint("whatsapp_id", session.ID).
		Msg("Session created")

	return session, nil
}

// StartSession asks the bridge to start the session and watches its stream
func (u *UseCase) StartSession(ctx context.Context, tenantID, sessionID string) (*dto.CommandResult, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}
	if !u.limiter.Allow(tenantID + "/" + sessionID) {
		return nil, domainerrors.ErrTooManyQRRequests
	}

	reply, err := u.bridge.IssueCommand(ctx, sessionID, entities.CommandStart, nil)
	if err != nil {
		return nil, err
	}

	if qr := reply.QR(); qr != "" {
		if _, err := u.ingestion.ApplyQRCode(ctx, tenantID, sessionID, qr); err != nil {
			u.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to record QR from start")
		}
	}

	u.watcher.Watch(tenantID, sessionID)

	return newCommandResult(sessionID, reply), nil
}

// RequestNewQRCode obtains a fresh QR through the fallback chain and watches the stream for the next one
func (u *UseCase) RequestNewQRCode(ctx context.Context, tenantID, sessionID string) (*dto.QRCodeResponse, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}
	if _, err := u.repo.Get(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	if !u.limiter.Allow(tenantID + "/" + sessionID) {
		return nil, domainerrors.ErrTooManyQRRequests
	}

	result, err := u.qr.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp := &dto.QRCodeResponse{
		SessionID: sessionID,
		Strategy:  string(result.Strategy),
		QRCode:    result.QRCode,
		Pending:   result.QRCode == "",
	}

	if result.QRCode != "" {
		if _, err := u.ingestion.ApplyQRCode(ctx, tenantID, sessionID, result.QRCode); err != nil {
			return nil, err
		}

		image, err := RenderQRImage(result.QRCode)
		if err != nil {
			u.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to render QR image")
		}
		resp.Image = image
	}

	u.watcher.Watch(tenantID, sessionID)

	return resp, nil
}

// DisconnectSession logs the session out on the bridge and records it as DISCONNECTED
func (u *UseCase) DisconnectSession(ctx context.Context, tenantID string, whatsAppID uint) (*entities.Session, error) {
	if tenantID == "" {
		return nil, domainerrors.ErrTenantRequired
	}

	session, err := u.repo.GetByID(ctx, tenantID, whatsAppID)
	if err != nil {
		return nil, err
	}

	u.watcher.Stop(tenantID, session.SessionID)

	if _, err := u.bridge.IssueCommand(ctx, session.SessionID, entities.CommandDisconnect, nil); err != nil {
		if !pkgerrors.IsNotFound(err) {
			return nil, err
		}
		u.logger.Info().Str("session_id", session.SessionID).Msg("Session already gone on bridge")
	}

	return u.ingestion.ApplyStatus(ctx, tenantID, session.SessionID, "disconnected")
}

// DeleteSession tears the session down on the bridge and removes its record
func (u *UseCase) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return err
	}

	session, err := u.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}

	u.watcher.Stop(tenantID, sessionID)

	if _, err := u.bridge.IssueCommand(ctx, sessionID, entities.CommandDelete, nil); err != nil {
		if !pkgerrors.IsNotFound(err) {
			return err
		}
		u.logger.Info().Str("session_id", sessionID).Msg("Session already gone on bridge")
	}

	if err := u.repo.Delete(ctx, tenantID, sessionID); err != nil {
		return err
	}

	u.cache.Delete(sessionID)
	u.broadcaster.ForgetDedup(tenantID, hubentities.KindWhatsappSession, sessionID)
	u.broadcaster.Broadcast(ctx, hubentities.Event{
		TenantID: tenantID,
		Kind:     hubentities.KindWhatsapp,
		Payload: dto.WhatsappBroadcast{
			Action:     dto.ActionDelete,
			Whatsapp:   dto.NewSessionView(session),
			WhatsappID: session.ID,
		},
	})

	u.logger.Info().
		Str("tenant_id", tenantID).
		Str("session_id", sessionID).
		Msg("Session deleted")

	return nil
}

// SendMessage sends a text message; bare numbers get the JID suffix
func (u *UseCase) SendMessage(ctx context.Context, tenantID, sessionID string, req *dto.SendMessageRequest) (*dto.CommandResult, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, domainerrors.ErrRecipientRequired
	}

	jid, err := FormatJID(req.To, u.jidSuffix)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, domainerrors.ErrMessageRequired
	}

	reply, err := u.bridge.IssueCommand(ctx, sessionID, entities.CommandSend, map[string]interface{}{
		"jid":     jid,
		"type":    "number",
		"message": map[string]string{"text": req.Message},
		"options": map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	return newCommandResult(sessionID, reply), nil
}

// ListMessages returns the bridge's stored messages of one chat
func (u *UseCase) ListMessages(ctx context.Context, tenantID, sessionID, number string) (*dto.CommandResult, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}

	var payload interface{}
	if number = strings.TrimSpace(number); number != "" {
		payload = map[string]string{"number": number}
	}

	reply, err := u.bridge.IssueCommand(ctx, sessionID, entities.CommandMessages, payload)
	if err != nil {
		return nil, err
	}

	return newCommandResult(sessionID, reply), nil
}

// CheckConnection queries the bridge and reconciles a known session with the answer
func (u *UseCase) CheckConnection(ctx context.Context, tenantID, sessionID string) (*dto.ConnectionStatus, error) {
	if err := validateTarget(tenantID, sessionID); err != nil {
		return nil, err
	}

	reply, err := u.bridge.IssueCommand(ctx, sessionID, entities.CommandStatus, nil)
	if err != nil {
		return nil, err
	}

	raw := reply.RawStatus()
	status := entities.NormalizeStatus(raw)

	stored, err := u.repo.Get(ctx, tenantID, sessionID)
	switch {
	case err == nil && stored.Status != status:
		if _, err := u.ingestion.setStatus(ctx, tenantID, sessionID, status); err != nil {
			u.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to reconcile session status")
		}
	case err != nil && !pkgerrors.IsNotFound(err):
		u.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load session for reconciliation")
	}

	return &dto.ConnectionStatus{
		SessionID: sessionID,
		Status:    string(status),
		Connected: status == entities.StatusConnected,
		RawStatus: raw,
	}, nil
}

func (u *UseCase) broadcastWhatsapp(ctx context.Context, action string, session *entities.Session) {
	u.broadcaster.Broadcast(ctx, hubentities.Event{
		TenantID: session.TenantID,
		Kind:     hubentities.KindWhatsapp,
		Payload: dto.WhatsappBroadcast{
			Action:   action,
			Whatsapp: dto.NewSessionView(session),
		},
	})
}

// FormatJID turns a recipient into a WhatsApp JID.
// Values that already carry a domain are kept; otherwise non-digits are stripped and suffix appended.
func FormatJID(recipient, suffix string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", domainerrors.ErrRecipientRequired
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, recipient)
	if digits == "" {
		return "", domainerrors.ErrRecipientRequired
	}

	return digits + suffix, nil
}

func validateTarget(tenantID, sessionID string) error {
	if tenantID == "" {
		return domainerrors.ErrTenantRequired
	}
	return ValidateSessionID(sessionID)
}

func newCommandResult(sessionID string, reply *entities.BridgeReply) *dto.CommandResult {
	result := &dto.CommandResult{
		SessionID: sessionID,
		Message:   reply.Message,
	}
	if len(reply.Data) > 0 && json.Valid(reply.Data) {
		result.Bridge = reply.Data
	}
	return result
}
