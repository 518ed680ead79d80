// Package metrics exposes Prometheus counters for the graph core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records plan, compile and save activity on its own registry.
type Collector struct {
	reg *prometheus.Registry

	plansApplied      *prometheus.CounterVec
	planNodes         prometheus.Counter
	planEdges         prometheus.Counter
	droppedConnection prometheus.Counter
	compilations      *prometheus.CounterVec
	omitted           *prometheus.CounterVec
	saves             *prometheus.CounterVec
	retired           *prometheus.CounterVec
}

// NewCollector registers every metric under namespace on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		plansApplied: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_applied_total",
			Help:      "Action plans applied, by outcome.",
		}, []string{"outcome"}),
		planNodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_nodes_added_total",
			Help:      "Nodes created by action plans.",
		}),
		planEdges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_edges_added_total",
			Help:      "Edges created by action plans.",
		}),
		droppedConnection: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_connections_dropped_total",
			Help:      "CONNECT_NODES actions dropped because an endpoint did not resolve.",
		}),
		compilations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compilations_total",
			Help:      "Process definitions compiled, by outcome.",
		}, []string{"outcome"}),
		omitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_omitted_total",
			Help:      "Graph elements left out of compiled documents, by kind.",
		}, []string{"kind"}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Workflow saves, by outcome.",
		}, []string{"outcome"}),
		retired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_retired_total",
			Help:      "Old workflow versions deleted by retention, by outcome.",
		}, []string{"outcome"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// PlanApplied records a successful plan.
func (c *Collector) PlanApplied(nodes, edges, dropped int) {
	c.plansApplied.WithLabelValues(outcome(true)).Inc()
	c.planNodes.Add(float64(nodes))
	c.planEdges.Add(float64(edges))
	c.droppedConnection.Add(float64(dropped))
}

// PlanRejected records a plan that failed validation or resolution.
func (c *Collector) PlanRejected() {
	c.plansApplied.WithLabelValues(outcome(false)).Inc()
}

// Compiled records a compilation and what it left out.
func (c *Collector) Compiled(ok bool, omittedNodes, omittedFlows, droppedConditions int) {
	c.compilations.WithLabelValues(outcome(ok)).Inc()
	c.omitted.WithLabelValues("node").Add(float64(omittedNodes))
	c.omitted.WithLabelValues("flow").Add(float64(omittedFlows))
	c.omitted.WithLabelValues("condition").Add(float64(droppedConditions))
}

// Save implements version.Recorder.
func (c *Collector) Save(ok bool) {
	c.saves.WithLabelValues(outcome(ok)).Inc()
}

// Retired implements version.Recorder.
func (c *Collector) Retired(ok bool) {
	c.retired.WithLabelValues(outcome(ok)).Inc()
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
