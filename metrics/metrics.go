// Package metrics adapts engine lifecycle events into Prometheus
// instrumentation. It is an optional eventbus.Observer; the scheduler has no
// direct dependency on Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/burstgraph/eventbus"
)

// PrometheusObserver records superstep duration, node run outcomes, and the
// active-node count as Prometheus metrics.
type PrometheusObserver struct {
	superstepDuration *prometheus.HistogramVec
	nodeRuns          *prometheus.CounterVec
	activeNodes       *prometheus.GaugeVec
}

// NewPrometheusObserver registers the engine's metrics against reg and
// returns an observer ready to subscribe to an eventbus.Bus.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		superstepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "burstgraph_superstep_duration_seconds",
			Help: "Wall-clock duration of one superstep, labeled by run.",
		}, []string{"run_id"}),
		nodeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burstgraph_node_runs_total",
			Help: "Count of node invocations, labeled by node id and outcome.",
		}, []string{"node_id", "outcome"}),
		activeNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "burstgraph_active_nodes",
			Help: "Number of nodes active in the most recent superstep, labeled by run.",
		}, []string{"run_id"}),
	}
	reg.MustRegister(o.superstepDuration, o.nodeRuns, o.activeNodes)
	return o
}

// OnEvent implements eventbus.Observer.
func (o *PrometheusObserver) OnEvent(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.SuperstepStart:
		o.activeNodes.WithLabelValues(ev.RunID).Set(float64(len(ev.Active)))
	case eventbus.SuperstepEnd:
		o.superstepDuration.WithLabelValues(ev.RunID).Observe(ev.Duration.Seconds())
	case eventbus.NodeEnd:
		o.nodeRuns.WithLabelValues(string(ev.NodeID), "success").Inc()
	case eventbus.NodeError:
		o.nodeRuns.WithLabelValues(string(ev.NodeID), "error").Inc()
	}
}
