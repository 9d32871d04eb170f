// Package metrics 为客户端和开发服务端提供 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有注册在私有 registry 上的指标，多个实例之间不会重复注册冲突。
type Metrics struct {
	registry *prometheus.Registry

	// 客户端
	MessagesReceived  *prometheus.CounterVec
	MalformedMessages prometheus.Counter
	DroppedSends      prometheus.Counter
	JoinOutcomes      *prometheus.CounterVec

	// 服务端
	ActiveConnections prometheus.Gauge
	Broadcasts        *prometheus.CounterVec
	Generations       prometheus.Counter
}

// New 创建 Metrics 实例，namespace 为空时使用 "grid"
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "grid"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Inbound protocol messages applied, by message type",
			},
			[]string{"type"},
		),
		MalformedMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_messages_total",
				Help:      "Inbound messages dropped because they could not be decoded",
			},
		),
		DroppedSends: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_sends_total",
				Help:      "Outbound messages dropped because the connection was not open",
			},
		),
		JoinOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "join_outcomes_total",
				Help:      "Join attempts by outcome (confirmed, failed)",
			},
			[]string{"outcome"},
		),
		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently connected websocket clients",
			},
		),
		Broadcasts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_total",
				Help:      "Messages broadcast to channels, by message type",
			},
			[]string{"type"},
		),
		Generations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Game of Life generations computed across all channels",
			},
		),
	}
}

// Registry 返回底层的 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回输出本实例指标的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
