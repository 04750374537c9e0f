package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/hub/usecase/business"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/middleware"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
	"github.com/alexander-mattos/baileys/pkg/httputil"
)

const defaultHeartbeat = 15 * time.Second

// EventsHandler exposes the hub over server-sent events
type EventsHandler struct {
	hub       *business.Hub
	mapper    *pkgerrors.Mapper
	heartbeat time.Duration
	logger    zerolog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *business.Hub, mapper *pkgerrors.Mapper, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		hub:       hub,
		mapper:    mapper,
		heartbeat: defaultHeartbeat,
		logger:    logger.With().Str("handler", "events").Logger(),
	}
}

// NotifyRequest is a plain CRUD notification for queue and prompt topics
type NotifyRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Stream handles GET /api/v1/events?topics=whatsappSession,whatsapp
func (h *EventsHandler) Stream(ctx *fasthttp.RequestCtx) {
	kinds, err := parseKinds(string(ctx.QueryArgs().Peek("topics")))
	if err != nil {
		httputil.WriteMappedError(ctx, h.mapper, err)
		return
	}

	sub, err := h.hub.Subscribe(middleware.TenantFromCtx(ctx), kinds...)
	if err != nil {
		httputil.WriteMappedError(ctx, h.mapper, err)
		return
	}

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		h.pump(w, sub)
	})
}

// pump writes messages until the subscription closes or the client goes away
func (h *EventsHandler) pump(w *bufio.Writer, sub *business.Subscription) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil || w.Flush() != nil {
		return
	}

	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				h.logger.Debug().Err(err).Str("subscription_id", sub.ID).Msg("event stream client gone")
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || w.Flush() != nil {
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, msg entities.Message) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Topic, msg.Payload); err != nil {
		return err
	}
	return w.Flush()
}

// Notify handles POST /api/v1/events/{kind}
func (h *EventsHandler) Notify(ctx *fasthttp.RequestCtx) {
	kind := entities.Kind(fmt.Sprint(ctx.UserValue("kind")))
	if kind != entities.KindQueue && kind != entities.KindPrompt {
		httputil.WriteErrorResponse(ctx, "only queue and prompt notifications are accepted", fasthttp.StatusBadRequest)
		return
	}

	var req NotifyRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		httputil.WriteErrorResponse(ctx, "invalid request body", fasthttp.StatusBadRequest)
		return
	}
	if req.Action == "" {
		req.Action = "update"
	}

	tenant := middleware.TenantFromCtx(ctx)
	h.hub.Broadcast(ctx, entities.Event{
		TenantID: tenant,
		Kind:     kind,
		Payload: map[string]interface{}{
			"action":     req.Action,
			string(kind): req.Data,
		},
	})

	httputil.WriteResponse(ctx, map[string]string{"topic": entities.Topic(tenant, kind)})
}

func parseKinds(raw string) ([]entities.Kind, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var kinds []entities.Kind
	for _, part := range strings.Split(raw, ",") {
		kind := entities.Kind(strings.TrimSpace(part))
		if kind == "" {
			continue
		}
		if !kind.Valid() {
			return nil, pkgerrors.NewValidationErrorf("unknown topic %q", kind)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
