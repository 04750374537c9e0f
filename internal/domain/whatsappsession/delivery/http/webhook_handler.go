package http

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/pkg/httputil"
)

// WebhookHandler receives bridge notifications. Every request is answered with 200
// so a failure never feeds the bridge's own retry loop; failures are only reported in the body.
type WebhookHandler struct {
	ingestion deps.IngestionService
	logger    zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingestion deps.IngestionService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestion: ingestion,
		logger:    logger.With().Str("handler", "webhook").Logger(),
	}
}

// Handle handles POST /webhook?tenant=
func (h *WebhookHandler) Handle(ctx *fasthttp.RequestCtx) {
	var payload dto.WebhookPayload
	if err := json.Unmarshal(ctx.PostBody(), &payload); err != nil {
		h.logger.Warn().Err(err).Int("body_size", len(ctx.PostBody())).Msg("undecodable webhook body")
		h.reply(ctx, "invalid webhook payload")
		return
	}

	tenantHint := string(ctx.QueryArgs().Peek("tenant"))
	if err := h.ingestion.HandleWebhook(ctx, tenantHint, &payload); err != nil {
		h.logger.Error().
			Err(err).
			Str("event", payload.Event).
			Str("session_id", payload.SessionID).
			Msg("failed to process webhook")
		h.reply(ctx, err.Error())
		return
	}

	h.reply(ctx, "")
}

func (h *WebhookHandler) reply(ctx *fasthttp.RequestCtx, errMessage string) {
	httputil.WriteJSON(ctx, dto.WebhookResponse{
		Success: errMessage == "",
		Error:   errMessage,
	}, fasthttp.StatusOK)
}
