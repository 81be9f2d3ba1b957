// Package metrics exposes Prometheus instrumentation for the change
// distribution path. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one server instance.
type Metrics struct {
	ChangesEmitted     *prometheus.CounterVec
	Publishes          *prometheus.CounterVec
	WorkspaceCache     *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	SubscriptionsTotal prometheus.Gauge
	FramesSent         *prometheus.CounterVec
	BrokerDropped      *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChangesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_changes_emitted_total",
				Help: "Change notices accepted by the broadcaster",
			},
			[]string{"table", "operation"},
		),
		Publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_publishes_total",
				Help: "Per-topic publish attempts by namespace and result",
			},
			[]string{"namespace", "result"},
		),
		WorkspaceCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_workspace_cache_total",
				Help: "Workspace cache lookups and invalidations",
			},
			[]string{"result"},
		),
		ConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanout_ws_connections_active",
				Help: "Open realtime WebSocket connections",
			},
		),
		SubscriptionsTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fanout_ws_subscriptions_active",
				Help: "Topic subscriptions held by open connections",
			},
		),
		FramesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_ws_frames_sent_total",
				Help: "Frames written to realtime connections by type",
			},
			[]string{"type"},
		),
		BrokerDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fanout_broker_dropped_total",
				Help: "Messages a transport discarded because a subscriber's buffer was full",
			},
			[]string{"transport", "namespace"},
		),
	}
}

func (m *Metrics) ChangeEmitted(table, operation string) {
	if m == nil {
		return
	}
	m.ChangesEmitted.WithLabelValues(table, operation).Inc()
}

func (m *Metrics) Published(namespace string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Publishes.WithLabelValues(namespace, result).Inc()
}

// CacheResult records "hit", "miss", "unresolved" or "invalidate".
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.WorkspaceCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

func (m *Metrics) SubscriptionAdded() {
	if m == nil {
		return
	}
	m.SubscriptionsTotal.Inc()
}

func (m *Metrics) SubscriptionsRemoved(n int) {
	if m == nil || n == 0 {
		return
	}
	m.SubscriptionsTotal.Sub(float64(n))
}

func (m *Metrics) FrameSent(frameType string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(frameType).Inc()
}

// BrokerDrop records a message discarded for a slow subscriber.
func (m *Metrics) BrokerDrop(transport, namespace string) {
	if m == nil {
		return
	}
	m.BrokerDropped.WithLabelValues(transport, namespace).Inc()
}
