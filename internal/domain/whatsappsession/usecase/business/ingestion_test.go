package business

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hubentities "github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/dto"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	domainerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

func qrWebhook(sessionID, qr string) *dto.WebhookPayload {
	return &dto.WebhookPayload{
		Event:     dto.EventQRCodeUpdated,
		SessionID: sessionID,
		Data:      dto.WebhookData{QR: qr},
	}
}

func statusWebhook(sessionID, status string) *dto.WebhookPayload {
	return &dto.WebhookPayload{
		Event:     dto.EventConnectionUpdate,
		SessionID: sessionID,
		Data:      dto.WebhookData{Status: status},
	}
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("s1"))
	assert.NoError(t, ValidateSessionID("company-1_main"))
	assert.ErrorIs(t, ValidateSessionID(""), domainerrors.ErrSessionIDRequired)
	assert.ErrorIs(t, ValidateSessionID("a/b"), domainerrors.ErrInvalidSessionID)
	assert.ErrorIs(t, ValidateSessionID(strings.Repeat("x", 129)), domainerrors.ErrInvalidSessionID)
}

func TestIngestion_QRCodeUpdated(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, qrWebhook("s1", "ABC")))

	s, err := f.repo.Get(ctx, testTenant, "s1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusAwaitingQR, s.Status)
	assert.Equal(t, "ABC", s.QRCode)

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, "company-1-whatsappSession", msgs[0].Topic)

	b := decodeSessionBroadcast(t, msgs[0])
	assert.Equal(t, dto.ActionUpdate, b.Action)
	assert.Equal(t, "s1", b.Session["sessionId"])
	assert.Equal(t, "AWAITING_QR", b.Session["status"])
	assert.Equal(t, "ABC", b.Session["qrcode"])
}

func TestIngestion_TimeoutBecomesConflict(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", "TIMEOUT")))

	s, err := f.repo.Get(ctx, testTenant, "s1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConflict, s.Status)

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, "CONFLICT", decodeSessionBroadcast(t, msgs[0]).Session["status"])
}

func TestIngestion_QRClearedAfterPairing(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, qrWebhook("s1", "ABC")))
	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", "connected")))

	msgs := drain(sub)
	require.Len(t, msgs, 2)

	first := decodeSessionBroadcast(t, msgs[0])
	second := decodeSessionBroadcast(t, msgs[1])
	assert.Equal(t, "ABC", first.Session["qrcode"])
	assert.Equal(t, "", second.Session["qrcode"])
	assert.Contains(t, string(msgs[1].Payload), `"qrcode":""`)
	assert.Equal(t, "CONNECTED", second.Session["status"])

	s, err := f.repo.Get(ctx, testTenant, "s1")
	require.NoError(t, err)
	assert.True(t, s.Paired())
}

func TestIngestion_RedundantTransitionBroadcastsOnce(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", "connecting")))
	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", "pairing")))

	assert.Len(t, drain(sub), 1)
	assert.Equal(t, 1, f.repo.count())
}

func TestIngestion_LegacyShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, &dto.WebhookPayload{
		Type:      "qrcode",
		SessionID: "s1",
		QRCode:    "LEGACY",
	}))

	s, err := f.repo.Get(ctx, testTenant, "s1")
	require.NoError(t, err)
	assert.Equal(t, "LEGACY", s.QRCode)

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, &dto.WebhookPayload{
		Type:      "status",
		SessionID: "s1",
		Status:    "scan_qr_code",
	}))

	s, err = f.repo.Get(ctx, testTenant, "s1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusAwaitingQR, s.Status)
	assert.Equal(t, "LEGACY", s.QRCode)
}

func TestIngestion_UnknownEventIgnored(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)

	err := f.ingestion.HandleWebhook(context.Background(), testTenant, &dto.WebhookPayload{
		Event:     "messages.upsert",
		SessionID: "s1",
	})

	require.NoError(t, err)
	assert.Empty(t, drain(sub))
	assert.Zero(t, f.repo.count())
}

func TestIngestion_InvalidWebhooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload *dto.WebhookPayload
	}{
		{"nil payload", nil},
		{"missing session", qrWebhook("", "ABC")},
		{"bad session", qrWebhook("../etc", "ABC")},
		{"missing qr", qrWebhook("s1", "")},
		{"missing status", statusWebhook("s1", " ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ingestion.HandleWebhook(ctx, testTenant, tt.payload)
			var validationErr *pkgerrors.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
	assert.Zero(t, f.repo.count())
}

func TestIngestion_TerminalStatusNotifiesListener(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"connecting", "connected", "logout", "DESTROYED", "disconnected"} {
		require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", raw)))
	}

	require.Eventually(t, func() bool { return len(f.listener.calls()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []entities.Status{
		entities.StatusDisconnected,
		entities.StatusDisconnected,
		entities.StatusDisconnected,
	}, f.listener.calls())
}

func TestIngestion_SlowListenerDoesNotDelayWebhook(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.listener.block = release
	defer close(release)

	done := make(chan error, 1)
	go func() {
		done <- f.ingestion.HandleWebhook(context.Background(), testTenant, statusWebhook("s1", "logout"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("webhook waited for the status listener")
	}

	s, err := f.repo.Get(context.Background(), testTenant, "s1")
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDisconnected, s.Status)
}

func TestIngestion_TenantResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// no owner known: default tenant
	require.NoError(t, f.ingestion.HandleWebhook(ctx, "", statusWebhook("orphan", "connecting")))
	_, err := f.repo.Get(ctx, defaultTenant, "orphan")
	require.NoError(t, err)

	// known owner from the store, bypassing the cache
	_, err = f.repo.Upsert(ctx, "company-7", "owned", entities.SessionPatch{})
	require.NoError(t, err)
	require.NoError(t, f.ingestion.HandleWebhook(ctx, "", qrWebhook("owned", "QR7")))

	s, err := f.repo.Get(ctx, "company-7", "owned")
	require.NoError(t, err)
	assert.Equal(t, "QR7", s.QRCode)
	tenant, ok := f.cache.Get("owned")
	assert.True(t, ok)
	assert.Equal(t, "company-7", tenant)

	// explicit hint wins
	require.NoError(t, f.ingestion.HandleWebhook(ctx, "company-9", statusWebhook("owned", "connected")))
	_, err = f.repo.Get(ctx, "company-9", "owned")
	require.NoError(t, err)
}

func TestIngestion_StreamEvents(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	status, err := f.ingestion.HandleStreamEvent(ctx, testTenant, "s1", &entities.StreamEvent{Type: "qrcode", QRCode: "Q1"})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusAwaitingQR, status)

	status, err = f.ingestion.HandleStreamEvent(ctx, testTenant, "s1", &entities.StreamEvent{Type: "message"})
	require.NoError(t, err)
	assert.Equal(t, entities.Status(""), status)

	status, err = f.ingestion.HandleStreamEvent(ctx, testTenant, "s1", &entities.StreamEvent{Type: "status", Status: "connected"})
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConnected, status)

	assert.Len(t, drain(sub), 2)
}

func TestIngestion_HandleConnectedBroadcastsOnce(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(t, testTenant, hubentities.KindWhatsappSession)
	ctx := context.Background()

	require.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, qrWebhook("s1", "ABC")))
	drain(sub)

	require.NoError(t, f.ingestion.HandleConnected(ctx, testTenant, "s1"))

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	b := decodeSessionBroadcast(t, msgs[0])
	assert.Equal(t, "CONNECTED", b.Session["status"])
	assert.Equal(t, "", b.Session["qrcode"])
	assert.Empty(t, f.listener.calls())
}

func TestIngestion_ConcurrentUpdatesKeepOneRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := "connecting"
			if i%2 == 0 {
				raw = "connected"
			}
			assert.NoError(t, f.ingestion.HandleWebhook(ctx, testTenant, statusWebhook("s1", raw)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.repo.count())
}
