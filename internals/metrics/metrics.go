// Package metrics provides Prometheus collectors for the broker and its
// HTTP/WebSocket bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/treebus/treebus/internals/message"
)

// Metrics wraps the Prometheus collectors. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Published *prometheus.CounterVec
	Delivered prometheus.Counter
	Dropped   prometheus.Counter

	LiveMessages    prometheus.GaugeFunc
	LiveSubscribers prometheus.Gauge
	// Connections is registered and exported, but nothing in the server
	// sets or changes it, so it always reads 0.
	Connections prometheus.Gauge
}

// New creates the collector set and registers it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treebus_messages_published_total",
			Help: "Messages published, by topic",
		}, []string{"topic"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treebus_messages_delivered_total",
			Help: "Successful pushes onto subscriber queues",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treebus_messages_dropped_total",
			Help: "Pushes rejected or displaced by queue overflow",
		}),
		LiveMessages: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "treebus_messages_live",
			Help: "Messages currently held by at least one reference",
		}, func() float64 { return float64(message.Live()) }),
		LiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treebus_subscribers_live",
			Help: "Subscribers currently allocated",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treebus_ws_connections_active",
			Help: "Active WebSocket bridge connections",
		}),
	}

	reg.MustRegister(m.Published, m.Delivered, m.Dropped,
		m.LiveMessages, m.LiveSubscribers, m.Connections)
	return m
}

// Handler returns an HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
