package business

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/internal/domain/hub/deps"
	"github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// AllKinds is the topic set a subscription gets when none is requested
var AllKinds = []entities.Kind{
	entities.KindWhatsappSession,
	entities.KindWhatsapp,
	entities.KindQueue,
	entities.KindPrompt,
}

// Hub fans broadcasts out to the subscribers of a tenant topic.
// Delivery is at-most-once: a subscriber whose buffer is full misses the message.
type Hub struct {
	buffer     int
	backplane  deps.Backplane
	instanceID string
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // topic -> subscription id

	dedupMu sync.Mutex
	last    map[string]string // topic + dedup key -> fingerprint

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. A nil backplane keeps delivery in-process.
func NewHub(buffer int, backplane deps.Backplane, logger zerolog.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 1
	}

	return &Hub{
		buffer:     buffer,
		backplane:  backplane,
		instanceID: uuid.NewString(),
		logger:     logger.With().Str("component", "hub").Logger(),
		metrics:    m,
		subs:       make(map[string]map[string]*Subscription),
		last:       make(map[string]string),
	}
}

// Start begins consuming the backplane, if any
func (h *Hub) Start(ctx context.Context) error {
	if h.backplane == nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		if err := h.backplane.Run(runCtx, h.deliverEnvelope); err != nil && runCtx.Err() == nil {
			h.logger.Error().Err(err).Str("backplane", h.backplane.Name()).Msg("backplane consumer stopped")
		}
	}()

	h.logger.Info().Str("backplane", h.backplane.Name()).Msg("hub backplane started")
	return nil
}

// Stop closes the backplane and every subscription
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
		}
	}

	if h.backplane != nil {
		if err := h.backplane.Close(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to close backplane")
		}
	}

	h.mu.Lock()
	all := make([]*Subscription, 0)
	seen := make(map[string]bool)
	for _, subs := range h.subs {
		for id, s := range subs {
			if !seen[id] {
				seen[id] = true
				all = append(all, s)
			}
		}
	}
	h.subs = make(map[string]map[string]*Subscription)
	h.mu.Unlock()

	for _, s := range all {
		if s.close() {
			h.metrics.SubscriberRemoved()
		}
	}

	return nil
}

// Subscribe registers a subscriber for the given kinds of one tenant; no kinds means all
func (h *Hub) Subscribe(tenantID string, kinds ...entities.Kind) (*Subscription, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, pkgerrors.NewValidationError("tenant is required to subscribe")
	}

	if len(kinds) == 0 {
		kinds = AllKinds
	}

	topics := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, pkgerrors.NewValidationErrorf("unknown topic kind %q", kind)
		}
		topics = append(topics, entities.Topic(tenantID, kind))
	}

	sub := &Subscription{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Topics:   topics,
		ch:       make(chan entities.Message, h.buffer),
	}

	h.mu.Lock()
	for _, topic := range topics {
		if h.subs[topic] == nil {
			h.subs[topic] = make(map[string]*Subscription)
		}
		h.subs[topic][sub.ID] = sub
	}
	h.mu.Unlock()

	h.metrics.SubscriberAdded()
	h.logger.Debug().
		Str("subscription_id", sub.ID).
		Strs("topics", topics).
		Msg("subscriber added")

	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	for _, topic := range sub.Topics {
		if subs, ok := h.subs[topic]; ok {
			delete(subs, sub.ID)
			if len(subs) == 0 {
				delete(h.subs, topic)
			}
		}
	}
	h.mu.Unlock()

	if sub.close() {
		h.metrics.SubscriberRemoved()
	}
}

// Subscribers returns the number of subscribers of a topic
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Broadcast emits an event. It never blocks on subscribers and never fails the caller.
func (h *Hub) Broadcast(ctx context.Context, event entities.Event) {
	topic := event.Topic()

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal broadcast payload")
		return
	}

	if h.isDuplicate(topic, event.DedupKey, event.Fingerprint) {
		h.metrics.RecordBroadcastDeduplicated(string(event.Kind))
		h.logger.Debug().
			Str("topic", topic).
			Str("dedup_key", event.DedupKey).
			Msg("redundant broadcast suppressed")
		return
	}

	h.metrics.RecordBroadcast(string(event.Kind))

	if h.backplane != nil {
		env := entities.Envelope{
			Origin:      h.instanceID,
			TenantID:    event.TenantID,
			Kind:        event.Kind,
			Payload:     payload,
			DedupKey:    event.DedupKey,
			Fingerprint: event.Fingerprint,
		}

		// local subscribers receive the backplane echo
		err := h.backplane.Publish(ctx, env)
		if err == nil {
			h.metrics.RecordBackplanePublish(h.backplane.Name(), "success")
			return
		}
		h.metrics.RecordBackplanePublish(h.backplane.Name(), "failure")
		h.logger.Warn().Err(err).Str("topic", topic).Msg("backplane publish failed, delivering locally")
	}

	h.deliver(topic, payload)
}

// ForgetDedup drops the dedup state of a key, e.g. after its session is deleted
func (h *Hub) ForgetDedup(tenantID string, kind entities.Kind, key string) {
	h.dedupMu.Lock()
	delete(h.last, entities.Topic(tenantID, kind)+"|"+key)
	h.dedupMu.Unlock()
}

func (h *Hub) isDuplicate(topic, key, fingerprint string) bool {
	if key == "" {
		return false
	}

	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()

	k := topic + "|" + key
	if prev, ok := h.last[k]; ok && prev == fingerprint {
		return true
	}
	h.last[k] = fingerprint
	return false
}

func (h *Hub) deliverEnvelope(env entities.Envelope) {
	if env.TenantID == "" || !env.Kind.Valid() {
		h.logger.Warn().Str("origin", env.Origin).Msg("dropping malformed backplane envelope")
		return
	}
	h.deliver(entities.Topic(env.TenantID, env.Kind), env.Payload)
}

func (h *Hub) deliver(topic string, payload json.RawMessage) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs[topic]))
	for _, s := range h.subs[topic] {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	msg := entities.Message{
		Topic:   topic,
		Payload: payload,
		SentAt:  time.Now(),
	}

	kind := topic[strings.LastIndex(topic, "-")+1:]
	for _, s := range subs {
		if !s.offer(msg) {
			h.metrics.RecordBroadcastDropped(kind)
			h.logger.Debug().
				Str("topic", topic).
				Str("subscription_id", s.ID).
				Msg("subscriber buffer full, message dropped")
		}
	}
}

// Subscription is one live client attachment to a tenant
type Subscription struct {
	ID       string
	TenantID string
	Topics   []string

	mu     sync.Mutex
	ch     chan entities.Message
	closed bool
}

// Messages returns the delivery channel; it is closed on unsubscribe
func (s *Subscription) Messages() <-chan entities.Message {
	return s.ch
}

func (s *Subscription) offer(msg entities.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}
