// Package metrics wraps a small set of Prometheus collectors for
// fdemon's core: how many sessions are active, how many log lines
// flow through each session's pipeline, and how long reload/restart
// actions take. The core only registers and updates these collectors;
// mounting the resulting registry behind an HTTP `/metrics` handler is
// left to the headless adapter (an external collaborator per §6), the
// same registry-owns-collectors-handler-is-separate split the
// teacher's `oriys-nova` metrics package uses.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fdemon"

var reloadDurationBucketsMS = []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000}

// Collectors bundles every metric fdemon's core updates. Construct one
// with New, which creates a private prometheus.Registry and registers
// every collector in it; the default global registry is not used.
type Collectors struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped prometheus.Counter

	LogLinesTotal *prometheus.CounterVec // labeled by source: app|daemon

	ReloadDuration  *prometheus.HistogramVec // labeled by kind: reload|restart
	ReloadFailures  *prometheus.CounterVec   // labeled by kind

	DiscoveryDuration *prometheus.HistogramVec // labeled by target: devices|emulators
}

// New constructs a fresh registry and collector set, registering the
// standard Go/process collectors alongside fdemon's own.
func New() *Collectors {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &Collectors{
		registry: registry,

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of Flutter app sessions currently tracked.",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of sessions that reached the Running phase.",
		}),
		SessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_stopped_total",
			Help:      "Total number of sessions that reached the Stopped phase.",
		}),

		LogLinesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_total",
			Help:      "Total log lines fed into a session's pipeline, by source.",
		}, []string{"source"}),

		ReloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_milliseconds",
			Help:      "Hot reload/restart wall-clock duration.",
			Buckets:   reloadDurationBucketsMS,
		}, []string{"kind"}),
		ReloadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reload_failures_total",
			Help:      "Total reload/restart attempts that failed.",
		}, []string{"kind"}),

		DiscoveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_duration_seconds",
			Help:      "Device/emulator discovery shell-out duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
	}

	registry.MustRegister(
		c.SessionsActive, c.SessionsStarted, c.SessionsStopped,
		c.LogLinesTotal, c.ReloadDuration, c.ReloadFailures, c.DiscoveryDuration,
	)
	return c
}

// Handler returns an http.Handler exposing this Collectors' registry
// in the Prometheus text exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordReload records one reload/restart attempt's outcome and
// duration. kind is "reload" or "restart".
func (c *Collectors) RecordReload(kind string, durationMS int64, err error) {
	c.ReloadDuration.WithLabelValues(kind).Observe(float64(durationMS))
	if err != nil {
		c.ReloadFailures.WithLabelValues(kind).Inc()
	}
}

// RecordSessionStarted increments the started counter and the active
// gauge.
func (c *Collectors) RecordSessionStarted() {
	c.SessionsStarted.Inc()
	c.SessionsActive.Inc()
}

// RecordSessionStopped increments the stopped counter and decrements
// the active gauge.
func (c *Collectors) RecordSessionStopped() {
	c.SessionsStopped.Inc()
	c.SessionsActive.Dec()
}

// RecordLogLine increments the log-lines counter for the given source
// ("app" or "daemon").
func (c *Collectors) RecordLogLine(source string) {
	c.LogLinesTotal.WithLabelValues(source).Inc()
}
