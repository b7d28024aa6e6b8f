package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors exposed at /metrics.
type Metrics struct {
	ActiveRecordings prometheus.Gauge
	QueueDepth       *prometheus.GaugeVec
	TasksByStatus    *prometheus.GaugeVec
	StepsCompleted   *prometheus.CounterVec
	StepsFailed      *prometheus.CounterVec
	WSClients        prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all streamvault collectors on a fresh
// registry. A dedicated registry keeps test instances independent.
func NewMetrics() *Metrics {
	m := &Metrics{
		ActiveRecordings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamvault",
			Name:      "active_recordings",
			Help:      "Number of currently active stream captures.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamvault",
			Name:      "queue_depth",
			Help:      "Queued tasks per streamer queue.",
		}, []string{"streamer"}),
		TasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamvault",
			Name:      "tasks_by_status",
			Help:      "Tracked tasks grouped by status.",
		}, []string{"status"}),
		StepsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamvault",
			Name:      "processing_steps_completed_total",
			Help:      "Completed post-processing steps by step name.",
		}, []string{"step"}),
		StepsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamvault",
			Name:      "processing_steps_failed_total",
			Help:      "Failed post-processing steps by step name.",
		}, []string{"step"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamvault",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ActiveRecordings,
		m.QueueDepth,
		m.TasksByStatus,
		m.StepsCompleted,
		m.StepsFailed,
		m.WSClients,
	)

	return m
}

// Registry returns the prometheus registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
