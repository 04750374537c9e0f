package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/hub/usecase/business"
	"github.com/alexander-mattos/baileys/internal/infrastructure/http/middleware"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

func newTestHandler() (*EventsHandler, *business.Hub) {
	hub := business.NewHub(8, nil, zerolog.Nop(), metrics.GetDefaultMetrics())
	return NewEventsHandler(hub, pkgerrors.NewMapper(zerolog.Nop()), zerolog.Nop()), hub
}

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds("")
	require.NoError(t, err)
	assert.Nil(t, kinds)

	kinds, err = parseKinds("whatsappSession, queue,")
	require.NoError(t, err)
	assert.Equal(t, []entities.Kind{entities.KindWhatsappSession, entities.KindQueue}, kinds)

	_, err = parseKinds("whatsappSession,tickets")
	assert.Error(t, err)
}

func TestEventsHandler_Notify(t *testing.T) {
	h, hub := newTestHandler()

	sub, err := hub.Subscribe("company-1", entities.KindQueue)
	require.NoError(t, err)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetBodyString(`{"action":"delete","data":{"id":7}}`)
	ctx.SetUserValue("kind", "queue")
	middleware.SetTenant(ctx, "company-1")

	h.Notify(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "company-1-queue", msg.Topic)
		assert.JSONEq(t, `{"action":"delete","queue":{"id":7}}`, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("notification not broadcast")
	}
}

func TestEventsHandler_NotifyRejectsSessionTopics(t *testing.T) {
	h, _ := newTestHandler()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetBodyString(`{"action":"update"}`)
	ctx.SetUserValue("kind", "whatsappSession")
	middleware.SetTenant(ctx, "company-1")

	h.Notify(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestEventsHandler_StreamRejectsUnknownTopic(t *testing.T) {
	h, _ := newTestHandler()

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/api/v1/events?topics=bogus")
	middleware.SetTenant(ctx, "company-1")

	h.Stream(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestEventsHandler_Pump(t *testing.T) {
	h, hub := newTestHandler()
	h.heartbeat = time.Hour

	sub, err := hub.Subscribe("company-1", entities.KindWhatsappSession)
	require.NoError(t, err)

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.pump(bufio.NewWriter(pw), sub)
		_ = pw.Close()
	}()

	reader := bufio.NewReader(pr)
	readBlock := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "retry: 3000\n", readBlock())

	payload, _ := json.Marshal(map[string]string{"action": "update"})
	hub.Broadcast(context.Background(), entities.Event{TenantID: "company-1", Kind: entities.KindWhatsappSession, Payload: json.RawMessage(payload)})

	assert.Equal(t, "event: company-1-whatsappSession\ndata: {\"action\":\"update\"}\n", readBlock())

	hub.Unsubscribe(sub)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after unsubscribe")
	}
}
