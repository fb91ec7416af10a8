package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gheregistry"

// Metrics contains all Prometheus metrics for gheregistry.
type Metrics struct {
	registry *prometheus.Registry

	// Registry.
	ServersRegistered prometheus.Gauge
	CreatesTotal      *prometheus.CounterVec

	// Probe.
	ProbesTotal     *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	ServerReachable *prometheus.GaugeVec

	// HTTP.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    *prometheus.CounterVec

	// WebSocket.
	WebSocketClients prometheus.Gauge

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance with its own registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		// Registry.
		ServersRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "servers_registered",
				Help:      "Current number of registered GitHub servers",
			},
		),
		CreatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "server_creates_total",
				Help:      "Total number of server create requests by result",
			},
			[]string{"result"},
		),

		// Probe.
		ProbesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of identity probes by outcome",
			},
			[]string{"outcome"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Identity probe duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		ServerReachable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "server_reachable",
				Help:      "Whether a registered server answered its last probe as a GitHub API (1) or not (0)",
			},
			[]string{"server_id", "name"},
		),

		// HTTP.
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_rate_limited_total",
				Help:      "Total number of requests rejected by the per-IP rate limiter",
			},
			[]string{"tier"},
		),

		// WebSocket.
		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Current number of connected event stream clients",
			},
		),

		// Build info.
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "date"},
		),
	}

	return m
}

// Registry returns the registry all metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetBuildInfo sets the build info metric.
func (m *Metrics) SetBuildInfo(version, commit, date string) {
	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// SetServersRegistered sets the registered servers gauge.
func (m *Metrics) SetServersRegistered(count int) {
	m.ServersRegistered.Set(float64(count))
}

// RecordCreate increments the create counter for result.
func (m *Metrics) RecordCreate(result string) {
	m.CreatesTotal.WithLabelValues(result).Inc()
}

// ObserveProbe records a probe outcome and its duration.
func (m *Metrics) ObserveProbe(outcome string, duration time.Duration) {
	m.ProbesTotal.WithLabelValues(outcome).Inc()
	m.ProbeDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// SetServerReachable sets the reachability gauge of a server.
func (m *Metrics) SetServerReachable(serverID, name string, reachable bool) {
	value := 0.0
	if reachable {
		value = 1
	}

	m.ServerReachable.WithLabelValues(serverID, name).Set(value)
}

// DeleteServerReachable drops the reachability gauge of a deleted server.
func (m *Metrics) DeleteServerReachable(serverID, name string) {
	m.ServerReachable.DeleteLabelValues(serverID, name)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordRateLimited counts a request rejected by the rate limiter of tier.
func (m *Metrics) RecordRateLimited(tier string) {
	m.RateLimitedTotal.WithLabelValues(tier).Inc()
}

// SetWebSocketClients sets the connected clients gauge.
func (m *Metrics) SetWebSocketClients(count int) {
	m.WebSocketClients.Set(float64(count))
}
