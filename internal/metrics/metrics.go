// Package metrics exposes the daemon's Prometheus metrics. It implements
// server.Recorder, nvramrpc.Recorder and middleware.RejectRecorder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ezcd"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	connectionsAccepted *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	rpcOperations       *prometheus.CounterVec
	workersBusy         prometheus.Gauge
	nvramEvents         *prometheus.CounterVec
	adminRejected       *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_accepted_total",
				Help:      "Accepted connections by protocol.",
			},
			[]string{"protocol"},
		),
		connectionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_rejected_total",
				Help:      "Connections closed by the accept rate limit.",
			},
			[]string{"listener"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Served connections by protocol and outcome.",
			},
			[]string{"protocol", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from worker pickup to connection close.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
		rpcOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_operations_total",
				Help:      "NVRAM operations by name and result.",
			},
			[]string{"op", "result"},
		),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Workers currently serving a connection.",
		}),
		nvramEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nvram_events_total",
				Help:      "NVRAM change events by operation.",
			},
			[]string{"op"},
		),
		adminRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_requests_rejected_total",
				Help:      "Admin API requests refused by authentication or rate limiting.",
			},
			[]string{"reason"},
		),
	}

	m.registry.MustRegister(
		m.connectionsAccepted,
		m.connectionsRejected,
		m.requests,
		m.requestDuration,
		m.rpcOperations,
		m.workersBusy,
		m.nvramEvents,
		m.adminRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionAccepted(protocol string) {
	m.connectionsAccepted.WithLabelValues(protocol).Inc()
}

func (m *Metrics) ConnectionRejected(listener string) {
	m.connectionsRejected.WithLabelValues(listener).Inc()
}

func (m *Metrics) RequestHandled(protocol, outcome string, d time.Duration) {
	m.requests.WithLabelValues(protocol, outcome).Inc()
	m.requestDuration.WithLabelValues(protocol).Observe(d.Seconds())
}

func (m *Metrics) WorkersBusy(n int) {
	m.workersBusy.Set(float64(n))
}

// RecordRPC counts one NVRAM operation as ok or fault.
func (m *Metrics) RecordRPC(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "fault"
	}
	m.rpcOperations.WithLabelValues(op, result).Inc()
}

// RecordEvent counts one NVRAM change event.
func (m *Metrics) RecordEvent(op string) {
	m.nvramEvents.WithLabelValues(op).Inc()
}

// AdminRejected counts one refused admin API request.
func (m *Metrics) AdminRejected(reason string) {
	m.adminRejected.WithLabelValues(reason).Inc()
}
