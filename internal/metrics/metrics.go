// Package metrics exposes relay counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relaychat"

// Rejection reasons used as label values.
const (
	ReasonUnauthorized      = "unauthorized"
	ReasonRateLimited       = "rate_limited"
	ReasonPersistenceFailed = "persistence_failed"
	ReasonBadRequest        = "bad_request"
)

// Metrics groups the collectors used by the relay. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Gauge
	messagesAccepted  prometheus.Counter
	messagesRejected  *prometheus.CounterVec
	statusUpdates     *prometheus.CounterVec
	fanoutPublishErrs prometheus.Counter
	relayedIn         prometheus.Counter
}

// New creates collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Live connections held by this instance.",
		}),
		messagesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_accepted_total",
			Help:      "Messages persisted and broadcast.",
		}),
		messagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Submissions rejected, by reason.",
		}, []string{"reason"}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_updates_total",
			Help:      "Message status transitions broadcast, by target status.",
		}, []string{"status"}),
		fanoutPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_publish_errors_total",
			Help:      "Failed cross-instance publishes.",
		}),
		relayedIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_relayed_total",
			Help:      "Events received from peer instances and relayed locally.",
		}),
	}

	reg.MustRegister(m.connections, m.messagesAccepted, m.messagesRejected, m.statusUpdates, m.fanoutPublishErrs, m.relayedIn)
	return m
}

// WatchDegraded exports a 0/1 gauge for a backing-store component.
func (m *Metrics) WatchDegraded(component string, degraded func() bool) {
	if m == nil || degraded == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "backing_store_degraded",
		Help:        "1 when the component is running on its fallback path.",
		ConstLabels: prometheus.Labels{"component": component},
	}, func() float64 {
		if degraded() {
			return 1
		}
		return 0
	}))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened counts a newly registered connection.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

// ConnectionClosed releases a connection counted by ConnectionOpened.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// MessageAccepted counts a persisted and broadcast message.
func (m *Metrics) MessageAccepted() {
	if m != nil {
		m.messagesAccepted.Inc()
	}
}

// MessageRejected counts a rejected submission under reason.
func (m *Metrics) MessageRejected(reason string) {
	if m != nil {
		m.messagesRejected.WithLabelValues(reason).Inc()
	}
}

// StatusUpdated counts a broadcast status transition.
func (m *Metrics) StatusUpdated(status string) {
	if m != nil {
		m.statusUpdates.WithLabelValues(status).Inc()
	}
}

// FanoutPublishFailed counts a publish that did not reach Redis.
func (m *Metrics) FanoutPublishFailed() {
	if m != nil {
		m.fanoutPublishErrs.Inc()
	}
}

// Relayed counts an event received from a peer instance.
func (m *Metrics) Relayed() {
	if m != nil {
		m.relayedIn.Inc()
	}
}
