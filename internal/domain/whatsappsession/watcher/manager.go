package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/entities"
	"github.com/alexander-mattos/baileys/internal/infrastructure/metrics"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

const (
	// MaxAttempts is the number of reconnects one watch may schedule
	MaxAttempts = 2
	// BaseDelay is doubled per attempt: 10s, then 20s
	BaseDelay = 5 * time.Second
)

// State is the lifecycle position of a watch
type State string

const (
	StateOpening  State = "OPENING"
	StateOpen     State = "OPEN"
	StateChecking State = "CHECKING"
	StateBackoff  State = "BACKOFF"
	StateClosed   State = "CLOSED"
)

// Reasons a watch ends
const (
	ReasonReplaced  = "replaced"
	ReasonStopped   = "stopped"
	ReasonShutdown  = "shutdown"
	ReasonNotFound  = "not_found"
	ReasonConnected = "connected"
	ReasonRejected  = "rejected"
	ReasonExhausted = "exhausted"
)

var _ deps.Watcher = (*Manager)(nil)

// BackoffDelay returns the wait before reconnect number attempt (1-based)
func BackoffDelay(attempt int) time.Duration {
	return BaseDelay * time.Duration(1<<uint(attempt))
}

// Snapshot is the observable state of a watch
type Snapshot struct {
	State    State
	Attempts int
}

// Manager keeps at most one bridge stream watch per tenant session
type Manager struct {
	bridge  deps.Bridge
	sink    deps.StreamSink
	clock   Clock
	logger  zerolog.Logger
	metrics *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	watches map[string]*watch
}

// NewManager creates a watch manager on the wall clock
func NewManager(bridge deps.Bridge, sink deps.StreamSink, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	return NewManagerWithClock(bridge, sink, realClock{}, logger, m)
}

// NewManagerWithClock creates a watch manager scheduling reconnects on clock
func NewManagerWithClock(bridge deps.Bridge, sink deps.StreamSink, clock Clock, logger zerolog.Logger, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		bridge:  bridge,
		sink:    sink,
		clock:   clock,
		logger:  logger.With().Str("component", "stream_watcher").Logger(),
		metrics: m,
		baseCtx: ctx,
		cancel:  cancel,
		watches: make(map[string]*watch),
	}
}

func watchKey(tenantID, sessionID string) string {
	return tenantID + "/" + sessionID
}

// Watch starts a fresh watch with zero attempts, closing the running one first
func (m *Manager) Watch(tenantID, sessionID string) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	w := &watch{
		m:         m,
		key:       watchKey(tenantID, sessionID),
		tenantID:  tenantID,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateOpening,
		logger: m.logger.With().
			Str("tenant_id", tenantID).
			Str("session_id", sessionID).
			Logger(),
	}

	m.mu.Lock()
	old := m.watches[w.key]
	m.watches[w.key] = w
	m.mu.Unlock()

	if old != nil {
		old.close(ReasonReplaced)
	}

	m.metrics.WatcherStarted()
	w.logger.Debug().Msg("watch started")

	go w.open()
}

// Stop ends the watch of a session, cancelling any pending reconnect before it returns
func (m *Manager) Stop(tenantID, sessionID string) {
	m.mu.Lock()
	w := m.watches[watchKey(tenantID, sessionID)]
	m.mu.Unlock()

	if w != nil {
		w.close(ReasonStopped)
	}
}

// StopAll ends every watch
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*watch, 0, len(m.watches))
	for _, w := range m.watches {
		all = append(all, w)
	}
	m.mu.Unlock()

	for _, w := range all {
		w.close(ReasonShutdown)
	}
	m.cancel()

	m.logger.Info().Int("watches", len(all)).Msg("all watches stopped")
	return nil
}

// State returns the snapshot of a running watch
func (m *Manager) State(tenantID, sessionID string) (Snapshot, bool) {
	m.mu.Lock()
	w := m.watches[watchKey(tenantID, sessionID)]
	m.mu.Unlock()

	if w == nil {
		return Snapshot{State: StateClosed}, false
	}
	return w.snapshot(), true
}

// Active returns the number of running watches
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

func (m *Manager) forget(w *watch) {
	m.mu.Lock()
	if m.watches[w.key] == w {
		delete(m.watches, w.key)
	}
	m.mu.Unlock()
}

// watch runs OPEN -> CHECKING -> BACKOFF -> OPEN until it reaches CLOSED
type watch struct {
	m         *Manager
	key       string
	tenantID  string
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	logger    zerolog.Logger

	mu       sync.Mutex
	state    State
	attempts int
	stream   deps.EventStream
	timer    Timer
	closed   bool
}

func (w *watch) snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{State: w.state, Attempts: w.attempts}
}

func (w *watch) open() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.state = StateOpening
	w.mu.Unlock()

	stream, err := w.m.bridge.OpenEventStream(w.ctx, w.sessionID)
	if err != nil {
		w.handleFailure(nil, err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = stream.Close()
		return
	}
	w.stream = stream
	w.state = StateOpen
	w.mu.Unlock()

	w.logger.Debug().Msg("event stream open")
	go w.read(stream)
}

func (w *watch) read(stream deps.EventStream) {
	for {
		event, err := stream.Next()
		if err != nil {
			w.handleFailure(stream, err)
			return
		}

		// attempts reset on the first delivered event rather than on open, so a
		// stream that opens and then drops without delivering still counts
		w.mu.Lock()
		if w.closed || w.stream != stream {
			w.mu.Unlock()
			return
		}
		w.attempts = 0
		w.mu.Unlock()

		w.m.metrics.RecordStreamEvent(event.Type)

		status, err := w.m.sink.HandleStreamEvent(w.ctx, w.tenantID, w.sessionID, event)
		if err != nil {
			w.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to apply stream event")
			continue
		}

		if status == entities.StatusConnected {
			w.close(ReasonConnected)
			return
		}
	}
}

// handleFailure closes the failed stream and decides between reconnecting and closing
func (w *watch) handleFailure(stream deps.EventStream, cause error) {
	w.mu.Lock()
	if w.closed || (stream != nil && w.stream != stream) {
		w.mu.Unlock()
		return
	}
	w.stream = nil
	w.state = StateChecking
	w.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}

	w.logger.Warn().Err(cause).Msg("event stream failed, checking bridge status")

	reply, err := w.m.bridge.IssueCommand(w.ctx, w.sessionID, entities.CommandStatus, nil)
	switch {
	case err != nil && pkgerrors.IsNotFound(err):
		w.close(ReasonNotFound)
		return
	case err != nil && !pkgerrors.IsRetryable(err):
		w.logger.Warn().Err(err).Msg("bridge rejected status query")
		w.close(ReasonRejected)
		return
	case err == nil && entities.NormalizeStatus(reply.RawStatus()) == entities.StatusConnected:
		if err := w.m.sink.HandleConnected(w.ctx, w.tenantID, w.sessionID); err != nil {
			w.logger.Warn().Err(err).Msg("failed to record connected session")
		}
		w.close(ReasonConnected)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.attempts >= MaxAttempts {
		w.mu.Unlock()
		w.close(ReasonExhausted)
		return
	}
	w.attempts++
	delay := BackoffDelay(w.attempts)
	w.state = StateBackoff
	w.timer = w.m.clock.AfterFunc(delay, w.reopen)
	attempt := w.attempts
	w.mu.Unlock()

	w.m.metrics.RecordReconnectAttempt()
	w.logger.Info().
		Int("attempt", attempt).
		Dur("delay", delay).
		Msg("reconnect scheduled")
}

func (w *watch) reopen() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.open()
}

func (w *watch) close(reason string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.state = StateClosed
	timer := w.timer
	stream := w.stream
	w.timer = nil
	w.stream = nil
	w.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	w.cancel()
	if stream != nil {
		_ = stream.Close()
	}

	w.m.forget(w)
	w.m.metrics.WatcherClosed(reason)
	w.logger.Info().Str("reason", reason).Msg("watch closed")
}
