// Package telemetry holds the service's Prometheus metrics and its opt-in
// OpenTelemetry tracing setup.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of collectors of one process. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	achievements *prometheus.CounterVec
	migrations   *prometheus.CounterVec
	devices      prometheus.GaugeFunc
}

// NewMetrics registers every collector on a fresh registry. openDevices is
// sampled for the open device database gauge; it may be nil.
func NewMetrics(openDevices func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storyline_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_narrative_transitions_total",
			Help: "Applied narrative transitions by kind.",
		}, []string{"kind"}),
		achievements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_achievements_unlocked_total",
			Help: "Achievement unlocks by id.",
		}, []string{"id"}),
		migrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storyline_migrations_total",
			Help: "Guest to account migrations by outcome.",
		}, []string{"outcome"}),
	}
	if openDevices != nil {
		m.devices = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "storyline_open_device_stores",
			Help: "Device databases currently open.",
		}, func() float64 { return float64(openDevices()) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metrics) AchievementUnlocked(id string) {
	if m == nil {
		return
	}
	m.achievements.WithLabelValues(id).Inc()
}

// Migration counts one reconciler run; outcome is completed, failed or skipped.
func (m *Metrics) Migration(outcome string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(outcome).Inc()
}
