package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the session sync service
type Metrics struct {
	// Bridge metrics
	BridgeRequests        *prometheus.CounterVec
	BridgeRequestDuration *prometheus.HistogramVec
	QRAcquisitions        *prometheus.CounterVec

	// Ingestion metrics
	WebhookEvents *prometheus.CounterVec
	StreamEvents  *prometheus.CounterVec

	// Hub metrics
	Broadcasts             *prometheus.CounterVec
	BroadcastsDropped      *prometheus.CounterVec
	BroadcastsDeduplicated *prometheus.CounterVec
	ActiveSubscribers      prometheus.Gauge
	BackplanePublishes     *prometheus.CounterVec

	// Watcher metrics
	ActiveWatchers    prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	WatchersClosed    *prometheus.CounterVec
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	GetDefaultMetrics()
}

// NewMetrics registers all collectors with the default registry
func NewMetrics() *Metrics {
	return &Metrics{
		BridgeRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_bridge_requests_total",
				Help: "Total number of bridge commands by outcome",
			},
			[]string{"command", "outcome"},
		),
		BridgeRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "session_sync_bridge_request_duration_seconds",
				Help:    "Duration of bridge commands in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"command"},
		),
		QRAcquisitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_qr_acquisitions_total",
				Help: "QR acquisition attempts by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),

		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_webhook_events_total",
				Help: "Webhook events received by event name and result",
			},
			[]string{"event", "result"},
		),
		StreamEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_stream_events_total",
				Help: "Events read from bridge push streams",
			},
			[]string{"type"},
		),

		Broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_broadcasts_total",
				Help: "Broadcasts emitted by topic kind",
			},
			[]string{"kind"},
		),
		BroadcastsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_broadcasts_dropped_total",
				Help: "Deliveries dropped because a subscriber buffer was full",
			},
			[]string{"kind"},
		),
		BroadcastsDeduplicated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_broadcasts_deduplicated_total",
				Help: "Broadcasts suppressed as redundant transitions",
			},
			[]string{"kind"},
		),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "session_sync_active_subscribers",
			Help: "Current number of hub subscribers",
		}),
		BackplanePublishes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_backplane_publishes_total",
				Help: "Broadcasts published to the backplane by driver and outcome",
			},
			[]string{"driver", "outcome"},
		),

		ActiveWatchers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "session_sync_active_watchers",
			Help: "Current number of bridge stream watchers",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "session_sync_reconnect_attempts_total",
			Help: "Total number of scheduled stream reconnects",
		}),
		WatchersClosed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_sync_watchers_closed_total",
				Help: "Watchers closed by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordBridgeRequest records one bridge command
func (m *Metrics) RecordBridgeRequest(command, outcome string, duration float64) {
	m.BridgeRequests.WithLabelValues(command, outcome).Inc()
	m.BridgeRequestDuration.WithLabelValues(command).Observe(duration)
}

// RecordQRAcquisition records one QR strategy attempt
func (m *Metrics) RecordQRAcquisition(strategy, outcome string) {
	m.QRAcquisitions.WithLabelValues(strategy, outcome).Inc()
}

// RecordWebhookEvent records a processed webhook
func (m *Metrics) RecordWebhookEvent(event, result string) {
	if event == "" {
		event = "unknown"
	}
	m.WebhookEvents.WithLabelValues(event, result).Inc()
}

// RecordStreamEvent records an event read from a push stream
func (m *Metrics) RecordStreamEvent(eventType string) {
	if eventType == "" {
		eventType = "message"
	}
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// RecordBroadcast records an emitted broadcast
func (m *Metrics) RecordBroadcast(kind string) {
	m.Broadcasts.WithLabelValues(kind).Inc()
}

// RecordBroadcastDropped records a delivery dropped for a slow subscriber
func (m *Metrics) RecordBroadcastDropped(kind string) {
	m.BroadcastsDropped.WithLabelValues(kind).Inc()
}

// RecordBroadcastDeduplicated records a suppressed redundant broadcast
func (m *Metrics) RecordBroadcastDeduplicated(kind string) {
	m.BroadcastsDeduplicated.WithLabelValues(kind).Inc()
}

// RecordBackplanePublish records a backplane publish
func (m *Metrics) RecordBackplanePublish(driver, outcome string) {
	m.BackplanePublishes.WithLabelValues(driver, outcome).Inc()
}

// SubscriberAdded increments the active subscriber gauge
func (m *Metrics) SubscriberAdded() {
	m.ActiveSubscribers.Inc()
}

// SubscriberRemoved decrements the active subscriber gauge
func (m *Metrics) SubscriberRemoved() {
	m.ActiveSubscribers.Dec()
}

// WatcherStarted increments the active watcher gauge
func (m *Metrics) WatcherStarted() {
	m.ActiveWatchers.Inc()
}

// WatcherClosed decrements the active watcher gauge and records the reason
func (m *Metrics) WatcherClosed(reason string) {
	m.ActiveWatchers.Dec()
	m.WatchersClosed.WithLabelValues(reason).Inc()
}

// RecordReconnectAttempt records a scheduled reconnect
func (m *Metrics) RecordReconnectAttempt() {
	m.ReconnectAttempts.Inc()
}
