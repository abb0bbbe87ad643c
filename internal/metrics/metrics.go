// Package metrics exports per-run Push-Sum simulation counters and
// gauges on an isolated Prometheus registry, mirroring the project's
// own metrics packages rather than pushing to the global default
// registry (each run — and each test — gets its own collectors).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmxmxh/pushsum-gossip-sim/internal/message"
)

// Metrics holds the collectors for one simulation run.
type Metrics struct {
	Registry *prometheus.Registry

	EventsDelivered   prometheus.Counter
	EventsDropped     prometheus.Counter
	Retransmissions   prometheus.Counter
	MessagesTotal     *prometheus.CounterVec
	RoundsReached     *prometheus.GaugeVec
	ConvergedAggregate *prometheus.GaugeVec
	RunDurationMs     prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered on a
// fresh registry, labeled with runID so a harness running several
// simulations concurrently can export them side by side.
func New(runID string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pushsum_events_delivered_total",
			Help:        "Total number of events that passed the loss and validity filters.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pushsum_events_dropped_total",
			Help:        "Total number of events dropped by the loss filter.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pushsum_retransmissions_total",
			Help:        "Total number of delivered RETRANSMISSION events that re-issued a message.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "pushsum_messages_total",
				Help:        "Total delivered messages by kind.",
				ConstLabels: prometheus.Labels{"run": runID},
			},
			[]string{"kind"},
		),
		RoundsReached: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "pushsum_node_round",
				Help:        "Final round reached by each node.",
				ConstLabels: prometheus.Labels{"run": runID},
			},
			[]string{"node"},
		),
		ConvergedAggregate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "pushsum_node_aggregate",
				Help:        "Final sum/weight aggregate computed by each node.",
				ConstLabels: prometheus.Labels{"run": runID},
			},
			[]string{"node"},
		),
		RunDurationMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pushsum_run_horizon_instant",
			Help:        "Logical time instant reached when the run stopped.",
			ConstLabels: prometheus.Labels{"run": runID},
		}),
	}

	reg.MustRegister(
		m.EventsDelivered,
		m.EventsDropped,
		m.Retransmissions,
		m.MessagesTotal,
		m.RoundsReached,
		m.ConvergedAggregate,
		m.RunDurationMs,
	)

	return m
}

// ObserveMessageCounts adds one run's per-kind delivered message
// counts to the MessagesTotal vector.
func (m *Metrics) ObserveMessageCounts(counts map[message.MsgKind]int) {
	for kind, n := range counts {
		m.MessagesTotal.WithLabelValues(kind.String()).Add(float64(n))
	}
}

// ObserveNode records a node's final round and aggregate.
func (m *Metrics) ObserveNode(id message.NodeID, round int, aggregate float64) {
	m.RoundsReached.WithLabelValues(string(id)).Set(float64(round))
	m.ConvergedAggregate.WithLabelValues(string(id)).Set(aggregate)
}

// Handler returns an http.Handler that serves this run's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
