package http

import (
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/middleware"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
	"github.com/alexander-mattos/baileys/pkg/httputil"
)

// SessionHandler handles the WhatsApp session command API
type SessionHandler struct {
	useCase deps.SessionService
	mapper  *pkgerrors.Mapper
	logger  zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(useCase deps.SessionService, mapper *pkgerrors.Mapper, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		useCase: useCase,
		mapper:  mapper,
		logger:  logger.With().Str("handler", "whatsapp_session").Logger(),
	}
}

// List handles GET /api/v1/whatsapp/sessions
func (h *SessionHandler) List(ctx *fasthttp.RequestCtx) {
	sessions, err := h.useCase.ListSessions(ctx, middleware.TenantFromCtx(ctx))
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.NewSessionViews(sessions))
}

// Create handles POST /api/v1/whatsapp/sessions
func (h *SessionHandler) Create(ctx *fasthttp.RequestCtx) {
	var req dto.CreateSessionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.WriteErrorResponse(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	session, err := h.useCase.CreateSession(ctx, middleware.TenantFromCtx(ctx), &req)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to create session")
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponseWithStatus(ctx, dto.NewSessionView(session), fasthttp.StatusCreated)
}

// Get handles GET /api/v1/whatsapp/sessions/{session_id}
func (h *SessionHandler) Get(ctx *fasthttp.RequestCtx) {
	session, err := h.useCase.GetSession(ctx, middleware.TenantFromCtx(ctx), sessionIDParam(ctx))
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.NewSessionView(session))
}

// Start handles POST /api/v1/whatsapp/sessions/{session_id}/start
func (h *SessionHandler) Start(ctx *fasthttp.RequestCtx) {
	sessionID := sessionIDParam(ctx)

	result, err := h.useCase.StartSession(ctx, middleware.TenantFromCtx(ctx), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to start session")
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, result)
}

// RequestQRCode handles POST /api/v1/whatsapp/sessions/{session_id}/qrcode
func (h *SessionHandler) RequestQRCode(ctx *fasthttp.RequestCtx) {
	sessionID := sessionIDParam(ctx)

	result, err := h.useCase.RequestNewQRCode(ctx, middleware.TenantFromCtx(ctx), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to request QR code")
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, result)
}

// Status handles GET /api/v1/whatsapp/sessions/{session_id}/status
func (h *SessionHandler) Status(ctx *fasthttp.RequestCtx) {
	status, err := h.useCase.CheckConnection(ctx, middleware.TenantFromCtx(ctx), sessionIDParam(ctx))
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, status)
}

// SendMessage handles POST /api/v1/whatsapp/sessions/{session_id}/messages
func (h *SessionHandler) SendMessage(ctx *fasthttp.RequestCtx) {
	var req dto.SendMessageRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.WriteErrorResponse(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}

	result, err := h.useCase.SendMessage(ctx, middleware.TenantFromCtx(ctx), sessionIDParam(ctx), &req)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, result)
}

// ListMessages handles GET /api/v1/whatsapp/sessions/{session_id}/messages
func (h *SessionHandler) ListMessages(ctx *fasthttp.RequestCtx) {
	number := string(ctx.QueryArgs().Peek("number"))

	result, err := h.useCase.ListMessages(ctx, middleware.TenantFromCtx(ctx), sessionIDParam(ctx), number)
	if err != nil {
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, result)
}

// Disconnect handles POST /api/v1/whatsapp/{whatsapp_id}/disconnect
func (h *SessionHandler) Disconnect(ctx *fasthttp.RequestCtx) {
	raw, _ := ctx.UserValue("whatsapp_id").(string)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		httputil.WriteErrorResponse(ctx, "whatsapp_id must be a positive integer", fasthttp.StatusBadRequest)
		return
	}

	session, err := h.useCase.DisconnectSession(ctx, middleware.TenantFromCtx(ctx), uint(id))
	if err != nil {
		h.logger.Error().Err(err).Uint64("whatsapp_id", id).Msg("failed to disconnect session")
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.NewSessionView(session))
}

// Delete handles DELETE /api/v1/whatsapp/sessions/{session_id}
func (h *SessionHandler) Delete(ctx *fasthttp.RequestCtx) {
	sessionID := sessionIDParam(ctx)

	if err := h.useCase.DeleteSession(ctx, middleware.TenantFromCtx(ctx), sessionID); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
		h.handleError(ctx, err)
		return
	}

	httputil.WriteResponse(ctx, dto.CommandResult{SessionID: sessionID, Message: "session deleted"})
}

func (h *SessionHandler) handleError(ctx *fasthttp.RequestCtx, err error) {
	httputil.WriteMappedError(ctx, h.mapper, err)
}

func sessionIDParam(ctx *fasthttp.RequestCtx) string {
	sessionID, _ := ctx.UserValue("session_id").(string)
	return sessionID
}
