// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "streamrouter"

// Collector is a prometheus.Collector that collects metrics about the
// stream routers. A single collector is shared by all routers of a
// process; each router labels its series with its own address.
type Collector struct {
	tuplesRouted      *prometheus.CounterVec
	routeFailures     *prometheus.CounterVec
	reconfigurations  *prometheus.CounterVec
	workersCreated    *prometheus.CounterVec
	unhandledMessages *prometheus.CounterVec
	partitions        *prometheus.GaugeVec
	keys              *prometheus.GaugeVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		tuplesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tuples_routed_total",
				Help:      "The number of tuples forwarded to a worker.",
			}, []string{"router"},
		),
		routeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "route_failures_total",
				Help:      "The number of tuples that could not be forwarded.",
			}, []string{"router"},
		),
		reconfigurations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconfigurations_total",
				Help:      "The number of routing table reconfigurations, by operation and result.",
			}, []string{"router", "op", "result"},
		),
		workersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "workers_created_total",
				Help:      "The number of workers provisioned through a worker factory.",
			}, []string{"router"},
		),
		unhandledMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "unhandled_messages_total",
				Help:      "The number of messages a router did not understand.",
			}, []string{"router"},
		),
		partitions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "partitions",
				Help:      "The number of ranges in a range router's partition tree.",
			}, []string{"router"},
		),
		keys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "keys",
				Help:      "The number of distinct keys known to an exact-key router.",
			}, []string{"router"},
		),
	}
}

// TupleRouted records a forwarded tuple.
func (c *Collector) TupleRouted(router string) {
	c.tuplesRouted.WithLabelValues(router).Inc()
}

// RouteFailed records a tuple that could not be forwarded.
func (c *Collector) RouteFailed(router string) {
	c.routeFailures.WithLabelValues(router).Inc()
}

// Reconfigured records a reconfiguration attempt.
func (c *Collector) Reconfigured(router, op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.reconfigurations.WithLabelValues(router, op, result).Inc()
}

// WorkerCreated records a worker provisioned for a router.
func (c *Collector) WorkerCreated(router string) {
	c.workersCreated.WithLabelValues(router).Inc()
}

// Unhandled records a message a router did not understand.
func (c *Collector) Unhandled(router string) {
	c.unhandledMessages.WithLabelValues(router).Inc()
}

// SetPartitions records the size of a router's partition tree.
func (c *Collector) SetPartitions(router string, n int) {
	c.partitions.WithLabelValues(router).Set(float64(n))
}

// SetKeys records the size of a router's key map.
func (c *Collector) SetKeys(router string, n int) {
	c.keys.WithLabelValues(router).Set(float64(n))
}

// Forget drops every series labelled with the router.
func (c *Collector) Forget(router string) {
	labels := prometheus.Labels{"router": router}
	c.tuplesRouted.DeletePartialMatch(labels)
	c.routeFailures.DeletePartialMatch(labels)
	c.reconfigurations.DeletePartialMatch(labels)
	c.workersCreated.DeletePartialMatch(labels)
	c.unhandledMessages.DeletePartialMatch(labels)
	c.partitions.DeletePartialMatch(labels)
	c.keys.DeletePartialMatch(labels)
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.tuplesRouted.Describe(ch)
	c.routeFailures.Describe(ch)
	c.reconfigurations.Describe(ch)
	c.workersCreated.Describe(ch)
	c.unhandledMessages.Describe(ch)
	c.partitions.Describe(ch)
	c.keys.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.tuplesRouted.Collect(ch)
	c.routeFailures.Collect(ch)
	c.reconfigurations.Collect(ch)
	c.workersCreated.Collect(ch)
	c.unhandledMessages.Collect(ch)
	c.partitions.Collect(ch)
	c.keys.Collect(ch)
}
