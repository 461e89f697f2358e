package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded by the realtime layer
const (
	OutcomeSent      = "sent"
	OutcomeOffline   = "offline"
	OutcomeDropped   = "dropped"
	OutcomeForwarded = "forwarded"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Realtime metrics
	RealtimeConnectionsActive  prometheus.Gauge
	RealtimeRegisteredUsers    prometheus.Gauge
	RealtimeDeliveriesTotal    *prometheus.CounterVec
	RealtimeRosterBroadcasts   prometheus.Counter
	RealtimeClusterMessages    *prometheus.CounterVec
	RealtimeConnectionsEvicted *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPResponseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),

			RealtimeConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "realtime_connections_active",
					Help: "Number of open realtime socket connections, registered or anonymous",
				},
			),
			RealtimeRegisteredUsers: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "realtime_registered_users",
					Help: "Number of user ids in the local presence registry",
				},
			),
			RealtimeDeliveriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_deliveries_total",
					Help: "Routed event deliveries by event name and outcome",
				},
				[]string{"event", "outcome"},
			),
			RealtimeRosterBroadcasts: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "realtime_roster_broadcasts_total",
					Help: "Total number of presence roster broadcasts",
				},
			),
			RealtimeClusterMessages: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_cluster_messages_total",
					Help: "Cluster envelopes by direction and kind",
				},
				[]string{"direction", "kind"},
			),
			RealtimeConnectionsEvicted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_connections_evicted_total",
					Help: "Connections closed by the server, by reason",
				},
				[]string{"reason"},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors",
				},
				[]string{"error_type", "component"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}

// RecordDelivery counts one routed event delivery attempt
func (m *Metrics) RecordDelivery(event, outcome string) {
	m.RealtimeDeliveriesTotal.WithLabelValues(event, outcome).Inc()
}

// RecordClusterMessage counts an envelope sent to or received from the broker
func (m *Metrics) RecordClusterMessage(direction, kind string) {
	m.RealtimeClusterMessages.WithLabelValues(direction, kind).Inc()
}

// RecordEviction counts a connection the server closed on its own
func (m *Metrics) RecordEviction(reason string) {
	m.RealtimeConnectionsEvicted.WithLabelValues(reason).Inc()
}

// RecordError counts an error by type and component
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}
