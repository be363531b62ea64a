// Package metrics exposes Prometheus counters for task writes, HTTP
// requests and maintenance sweeps. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskcal"

type Metrics struct {
	registry *prometheus.Registry

	TaskWrites    *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	SweepRuns     prometheus.Counter
	SweepPruned   *prometheus.CounterVec
	SweepFailures prometheus.Counter
}

// New registers every collector on a private registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TaskWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_writes_total",
			Help:      "Task store writes by operation.",
		}, []string{"op"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Maintenance sweeps executed.",
		}),
		SweepPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_pruned_total",
			Help:      "Records removed by maintenance sweeps, by kind.",
		}, []string{"kind"}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Maintenance sweeps that ended with an error.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TaskWrites,
		m.Requests,
		m.SweepRuns,
		m.SweepPruned,
		m.SweepFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskWrite(op string) {
	if m == nil {
		return
	}
	m.TaskWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) Request(route string, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, code).Inc()
}

// Sweep records one finished sweep.
func (m *Metrics) Sweep(buckets, hidden int, failed bool) {
	if m == nil {
		return
	}
	m.SweepRuns.Inc()
	m.SweepPruned.WithLabelValues("bucket").Add(float64(buckets))
	m.SweepPruned.WithLabelValues("hidden_instance").Add(float64(hidden))
	if failed {
		m.SweepFailures.Inc()
	}
}
