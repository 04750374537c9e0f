package business

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, nil, zerolog.Nop(), metrics.GetDefaultMetrics())
}

func receive(t *testing.T, sub *Subscription) entities.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return entities.Message{}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message on %s: %s", msg.Topic, msg.Payload)
	default:
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "company-1-whatsappSession", entities.Topic("company-1", entities.KindWhatsappSession))
	assert.Equal(t, "company-1-queue", entities.Event{TenantID: "company-1", Kind: entities.KindQueue}.Topic())
}

func TestHub_BroadcastReachesTenantSubscribers(t *testing.T) {
	h := newTestHub(4)

	a, err := h.Subscribe("company-1", entities.KindWhatsappSession)
	require.NoError(t, err)
	b, err := h.Subscribe("company-1")
	require.NoError(t, err)
	other, err := h.Subscribe("company-2")
	require.NoError(t, err)
	queueOnly, err := h.Subscribe("company-1", entities.KindQueue)
	require.NoError(t, err)

	h.Broadcast(context.Background(), entities.Event{
		TenantID: "company-1",
		Kind:     entities.KindWhatsappSession,
		Payload:  map[string]string{"action": "update"},
	})

	for _, sub := range []*Subscription{a, b} {
		msg := receive(t, sub)
		assert.Equal(t, "company-1-whatsappSession", msg.Topic)
		assert.JSONEq(t, `{"action":"update"}`, string(msg.Payload))
	}
	assertEmpty(t, other)
	assertEmpty(t, queueOnly)
}

func TestHub_SubscribeValidation(t *testing.T) {
	h := newTestHub(1)

	_, err := h.Subscribe(" ")
	assert.Error(t, err)

	_, err = h.Subscribe("company-1", entities.Kind("bogus"))
	assert.Error(t, err)
}

func TestHub_SlowSubscriberDoesNotAffectOthers(t *testing.T) {
	h := newTestHub(1)
	ctx := context.Background()

	slow, err := h.Subscribe("company-1", entities.KindWhatsapp)
	require.NoError(t, err)
	fast, err := h.Subscribe("company-1", entities.KindWhatsapp)
	require.NoError(t, err)

	h.Broadcast(ctx, entities.Event{TenantID: "company-1", Kind: entities.KindWhatsapp, Payload: 1})
	receive(t, fast)

	// slow never drained: its buffer is full for the second broadcast
	h.Broadcast(ctx, entities.Event{TenantID: "company-1", Kind: entities.KindWhatsapp, Payload: 2})

	msg := receive(t, fast)
	assert.Equal(t, "2", string(msg.Payload))

	msg = receive(t, slow)
	assert.Equal(t, "1", string(msg.Payload))
	assertEmpty(t, slow)
}

func TestHub_DeduplicatesRedundantTransitions(t *testing.T) {
	h := newTestHub(8)
	ctx := context.Background()

	sub, err := h.Subscribe("company-1", entities.KindWhatsappSession)
	require.NoError(t, err)

	emit := func(fp string) {
		h.Broadcast(ctx, entities.Event{
			TenantID:    "company-1",
			Kind:        entities.KindWhatsappSession,
			Payload:     fp,
			DedupKey:    "s1",
			Fingerprint: fp,
		})
	}

	emit("AWAITING_QR|ABC")
	emit("AWAITING_QR|ABC")
	emit("CONNECTED|")
	emit("AWAITING_QR|ABC")

	assert.Equal(t, `"AWAITING_QR|ABC"`, string(receive(t, sub).Payload))
	assert.Equal(t, `"CONNECTED|"`, string(receive(t, sub).Payload))
	assert.Equal(t, `"AWAITING_QR|ABC"`, string(receive(t, sub).Payload))
	assertEmpty(t, sub)

	h.ForgetDedup("company-1", entities.KindWhatsappSession, "s1")
	emit("AWAITING_QR|ABC")
	receive(t, sub)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := newTestHub(1)

	sub, err := h.Subscribe("company-1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers("company-1-prompt"))

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, ok := <-sub.Messages()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers("company-1-prompt"))

	// broadcasting to a topic without subscribers is a no-op
	h.Broadcast(context.Background(), entities.Event{TenantID: "company-1", Kind: entities.KindPrompt, Payload: "x"})
}

func TestHub_UnmarshalablePayloadIsDropped(t *testing.T) {
	h := newTestHub(1)
	sub, err := h.Subscribe("company-1")
	require.NoError(t, err)

	h.Broadcast(context.Background(), entities.Event{TenantID: "company-1", Kind: entities.KindQueue, Payload: make(chan int)})
	assertEmpty(t, sub)
}

type loopBackplane struct {
	ch         chan entities.Envelope
	publishErr error
	published  int
	closed     bool
}

func newLoopBackplane() *loopBackplane {
	return &loopBackplane{ch: make(chan entities.Envelope, 16)}
}

func (b *loopBackplane) Name() string { return "loop" }

func (b *loopBackplane) Publish(ctx context.Context, env entities.Envelope) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published++
	b.ch <- env
	return nil
}

func (b *loopBackplane) Run(ctx context.Context, deliver func(entities.Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.ch:
			deliver(env)
		}
	}
}

func (b *loopBackplane) Close() error {
	b.closed = true
	return nil
}

func TestHub_BackplaneEcho(t *testing.T) {
	bp := newLoopBackplane()
	h := NewHub(4, bp, zerolog.Nop(), metrics.GetDefaultMetrics())
	require.NoError(t, h.Start(context.Background()))

	sub, err := h.Subscribe("company-1", entities.KindWhatsapp)
	require.NoError(t, err)

	h.Broadcast(context.Background(), entities.Event{TenantID: "company-1", Kind: entities.KindWhatsapp, Payload: map[string]int{"n": 1}})

	msg := receive(t, sub)
	assert.Equal(t, "company-1-whatsapp", msg.Topic)
	assert.Equal(t, 1, bp.published)

	// envelopes from other instances are delivered too
	remote, _ := json.Marshal(map[string]int{"n": 2})
	bp.ch <- entities.Envelope{Origin: "other", TenantID: "company-1", Kind: entities.KindWhatsapp, Payload: remote}
	msg = receive(t, sub)
	assert.JSONEq(t, `{"n":2}`, string(msg.Payload))

	require.NoError(t, h.Stop(context.Background()))
	assert.True(t, bp.closed)

	_, ok := <-sub.Messages()
	assert.False(t, ok)
}

func TestHub_BackplaneFailureFallsBackToLocal(t *testing.T) {
	bp := newLoopBackplane()
	bp.publishErr = errors.New("broker unavailable")
	h := NewHub(4, bp, zerolog.Nop(), metrics.GetDefaultMetrics())

	sub, err := h.Subscribe("company-1", entities.KindWhatsapp)
	require.NoError(t, err)

	h.Broadcast(context.Background(), entities.Event{TenantID: "company-1", Kind: entities.KindWhatsapp, Payload: "local"})

	msg := receive(t, sub)
	assert.Equal(t, `"local"`, string(msg.Payload))
}

func TestHub_MalformedEnvelopeIgnored(t *testing.T) {
	h := newTestHub(1)
	sub, err := h.Subscribe("company-1")
	require.NoError(t, err)

	h.deliverEnvelope(entities.Envelope{TenantID: "", Kind: entities.KindQueue})
	h.deliverEnvelope(entities.Envelope{TenantID: "company-1", Kind: "nope"})
	assertEmpty(t, sub)
}
