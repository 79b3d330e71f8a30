package broadcaster

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricConnectionsActive    = "todo_ws_connections_active"
	MetricConnectionsAdmitted  = "todo_ws_connections_admitted_total"
	MetricConnectionsEvicted   = "todo_ws_connections_evicted_total"
	MetricInboundMessages      = "todo_ws_inbound_messages_total"
	MetricDecodeErrors         = "todo_ws_decode_errors_total"
	MetricNotifications        = "todo_ws_notifications_total"
	MetricNotificationsDropped = "todo_ws_notifications_dropped_total"
	MetricSweepDuration        = "todo_ws_liveness_sweep_duration_seconds"
)

const (
	EvictionReplaced     = "replaced"
	EvictionStale        = "stale"
	EvictionSlowConsumer = "slow_consumer"
	EvictionShutdown     = "shutdown"
)

const (
	OutcomeDelivered   = "delivered"
	OutcomeUnreachable = "unreachable"
)

// Metrics holds the Prometheus collectors of the realtime layer.
type Metrics struct {
	connectionsActive    prometheus.Gauge
	connectionsAdmitted  prometheus.Counter
	connectionsEvicted   *prometheus.CounterVec
	inboundMessages      *prometheus.CounterVec
	decodeErrors         prometheus.Counter
	notifications        *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricConnectionsActive,
			Help: "Number of live WebSocket connections",
		}),
		connectionsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConnectionsAdmitted,
			Help: "Total number of WebSocket connections admitted to the registry",
		}),
		connectionsEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricConnectionsEvicted,
				Help: "Total number of connections closed by the server by reason",
			},
			[]string{"reason"},
		),
		inboundMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricInboundMessages,
				Help: "Total number of decoded inbound frames by message type",
			},
			[]string{"type"},
		),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricDecodeErrors,
			Help: "Total number of inbound frames that failed to decode",
		}),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotifications,
				Help: "Total number of notification deliveries by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		notificationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotificationsDropped,
				Help: "Total number of notifications dropped because the dispatch queue was full",
			},
			[]string{"type"},
		),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSweepDuration,
			Help:    "Histogram of liveness sweep duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1},
		}),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectionsActive,
		m.connectionsAdmitted,
		m.connectionsEvicted,
		m.inboundMessages,
		m.decodeErrors,
		m.notifications,
		m.notificationsDropped,
		m.sweepDuration,
	}
}

func (m *Metrics) SetConnectionsActive(n int) {
	m.connectionsActive.Set(float64(n))
}

func (m *Metrics) IncConnectionsAdmitted() {
	m.connectionsAdmitted.Inc()
}

func (m *Metrics) IncConnectionsEvicted(reason string) {
	m.connectionsEvicted.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncInboundMessages(messageType string) {
	m.inboundMessages.WithLabelValues(messageType).Inc()
}

func (m *Metrics) IncDecodeErrors() {
	m.decodeErrors.Inc()
}

func (m *Metrics) IncNotifications(messageType, outcome string) {
	m.notifications.WithLabelValues(messageType, outcome).Inc()
}

func (m *Metrics) IncNotificationsDropped(messageType string) {
	m.notificationsDropped.WithLabelValues(messageType).Inc()
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	m.sweepDuration.Observe(seconds)
}
