package business

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	hubentities "github.com/alexander-mattos/baileys/internal/domain/hub/entities"
	hubbusiness "github.com/alexander-mattos/baileys/internal/domain/hub/usecase/business"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	domainerrors "github.com/alexander-mattos/baileys/internal/domain/whatsappsession/errors"
	"github.com/alexander-mattos/baileys/internal/infrastructure/cache"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	"github.com/alexander-mattos/baileys/internal/infrastructure/ratelimit"
)

const (
	testTenant    = "company-1"
	defaultTenant = "company-default"
)

// memRepo is an in-memory SessionRepository with upsert merge semantics
type memRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*entities.Session
	clock  time.Time
	failQR bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		rows:  make(map[string]*entities.Session),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memRepo) Upsert(ctx context.Context, tenantID, sessionID string, patch entities.SessionPatch) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failQR && patch.QRCode != nil && *patch.QRCode != "" {
		return nil, fmt.Errorf("qr write refused for %s", sessionID)
	}

	key := tenantID + "/" + sessionID
	s, ok := r.rows[key]
	r.clock = r.clock.Add(time.Millisecond)
	if !ok {
		r.nextID++
		s = &entities.Session{
			ID:        r.nextID,
			TenantID:  tenantID,
			SessionID: sessionID,
			Status:    entities.StatusDisconnected,
			CreatedAt: r.clock,
		}
		r.rows[key] = s
	}

	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.QRCode != nil {
		s.QRCode = *patch.QRCode
	}
	if patch.IsDefault != nil {
		s.IsDefault = *patch.IsDefault
	}
	if patch.Retries != nil {
		s.Retries = *patch.Retries
	}
	s.UpdatedAt = r.clock

	out := *s
	return &out, nil
}

func (r *memRepo) Get(ctx context.Context, tenantID, sessionID string) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rows[tenantID+"/"+sessionID]
	if !ok {
		return nil, domainerrors.ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

func (r *memRepo) GetByID(ctx context.Context, tenantID string, id uint) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.rows {
		if s.TenantID == tenantID && s.ID == id {
			out := *s
			return &out, nil
		}
	}
	return nil, domainerrors.ErrSessionNotFound
}

func (r *memRepo) FindBySessionID(ctx context.Context, sessionID string) (*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.rows {
		if s.SessionID == sessionID {
			out := *s
			return &out, nil
		}
	}
	return nil, domainerrors.ErrSessionNotFound
}

func (r *memRepo) List(ctx context.Context, tenantID string) ([]*entities.Session, error) {
	all, _ := r.ListAll(ctx)
	out := make([]*entities.Session, 0, len(all))
	for _, s := range all {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) ListAll(ctx context.Context) ([]*entities.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*entities.Session, 0, len(r.rows))
	for _, s := range r.rows {
		c := *s
		out = append(out, &c)
	}
	return out, nil
}

func (r *memRepo) Delete(ctx context.Context, tenantID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := tenantID + "/" + sessionID
	if _, ok := r.rows[key]; !ok {
		return domainerrors.ErrSessionNotFound
	}
	delete(r.rows, key)
	return nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

type bridgeCall struct {
	Command   entities.Command
	SessionID string
	Payload   interface{}
}

type replyFunc func(payload interface{}) (*entities.BridgeReply, error)

// scriptedBridge answers each command from a table; unscripted commands succeed empty
type scriptedBridge struct {
	mu      sync.Mutex
	replies map[entities.Command]replyFunc
	calls   []bridgeCall
}

func newScriptedBridge() *scriptedBridge {
	return &scriptedBridge{replies: make(map[entities.Command]replyFunc)}
}

func (b *scriptedBridge) on(cmd entities.Command, f replyFunc) *scriptedBridge {
	b.mu.Lock()
	b.replies[cmd] = f
	b.mu.Unlock()
	return b
}

func (b *scriptedBridge) IssueCommand(ctx context.Context, sessionID string, cmd entities.Command, payload interface{}) (*entities.BridgeReply, error) {
	b.mu.Lock()
	b.calls = append(b.calls, bridgeCall{Command: cmd, SessionID: sessionID, Payload: payload})
	f := b.replies[cmd]
	b.mu.Unlock()

	if f == nil {
		return &entities.BridgeReply{Success: true}, nil
	}
	return f(payload)
}

func (b *scriptedBridge) OpenEventStream(ctx context.Context, sessionID string) (deps.EventStream, error) {
	return nil, fmt.Errorf("streams are not scripted")
}

func (b *scriptedBridge) commands() []entities.Command {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]entities.Command, 0, len(b.calls))
	for _, c := range b.calls {
		out = append(out, c.Command)
	}
	return out
}

func (b *scriptedBridge) lastCall() bridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[len(b.calls)-1]
}

func reply(r *entities.BridgeReply) replyFunc {
	return func(interface{}) (*entities.BridgeReply, error) { return r, nil }
}

func fail(err error) replyFunc {
	return func(interface{}) (*entities.BridgeReply, error) { return nil, err }
}

type fakeListener struct {
	mu       sync.Mutex
	notified []entities.Status
	block    chan struct{}
}

func (l *fakeListener) NotifyStatus(ctx context.Context, sessionID string, status entities.Status) error {
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Lock()
	l.notified = append(l.notified, status)
	l.mu.Unlock()
	return nil
}

func (l *fakeListener) calls() []entities.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entities.Status(nil), l.notified...)
}

type fakeWatcher struct {
	mu      sync.Mutex
	watched []string
	stopped []string
}

func (w *fakeWatcher) Watch(tenantID, sessionID string) {
	w.mu.Lock()
	w.watched = append(w.watched, tenantID+"/"+sessionID)
	w.mu.Unlock()
}

func (w *fakeWatcher) Stop(tenantID, sessionID string) {
	w.mu.Lock()
	w.stopped = append(w.stopped, tenantID+"/"+sessionID)
	w.mu.Unlock()
}

type fixture struct {
	repo      *memRepo
	bridge    *scriptedBridge
	hub       *hubbusiness.Hub
	cache     *cache.TenantCache
	listener  *fakeListener
	watcher   *fakeWatcher
	ingestion *Ingestion
	uc        *UseCase
	logs      *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := metrics.GetDefaultMetrics()
	f := &fixture{
		repo:     newMemRepo(),
		bridge:   newScriptedBridge(),
		hub:      hubbusiness.NewHub(32, nil, zerolog.Nop(), m),
		listener: &fakeListener{},
		watcher:  &fakeWatcher{},
		logs:     &bytes.Buffer{},
	}
	f.cache = cache.NewTenantCache(f.repo, zerolog.Nop())
	f.ingestion = NewIngestion(f.repo, f.hub, f.cache, f.listener, defaultTenant, zerolog.Nop(), m)
	f.uc = NewUseCase(
		f.repo,
		f.bridge,
		f.ingestion,
		NewQRAcquirer(f.bridge, zerolog.Nop(), m),
		f.watcher,
		f.hub,
		f.cache,
		ratelimit.NewKeyedLimiter(60, 2),
		"@s.whatsapp.net",
		zerolog.New(f.logs),
	)

	return f
}

func (f *fixture) subscribe(t *testing.T, tenantID string, kind hubentities.Kind) *hubbusiness.Subscription {
	t.Helper()
	sub, err := f.hub.Subscribe(tenantID, kind)
	require.NoError(t, err)
	t.Cleanup(func() { f.hub.Unsubscribe(sub) })
	return sub
}

// drain returns the messages already buffered for sub
func drain(sub *hubbusiness.Subscription) []hubentities.Message {
	var out []hubentities.Message
	for {
		select {
		case msg := <-sub.Messages():
			out = append(out, msg)
		default:
			return out
		}
	}
}

type sessionBroadcastJSON struct {
	Action  string                 `json:"action"`
	Session map[string]interface{} `json:"session"`
}

type whatsappBroadcastJSON struct {
	Action     string                 `json:"action"`
	Whatsapp   map[string]interface{} `json:"whatsapp"`
	WhatsappID uint                   `json:"whatsappId"`
}

func decodeSessionBroadcast(t *testing.T, msg hubentities.Message) sessionBroadcastJSON {
	t.Helper()
	var out sessionBroadcastJSON
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}

func decodeWhatsappBroadcast(t *testing.T, msg hubentities.Message) whatsappBroadcastJSON {
	t.Helper()
	var out whatsappBroadcastJSON
	require.NoError(t, json.Unmarshal(msg.Payload, &out))
	return out
}
