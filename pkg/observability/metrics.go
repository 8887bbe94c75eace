package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the federation service
type Metrics struct {
	// Authentication metrics
	AuthAttemptsTotal *prometheus.CounterVec
	TokenValidations  *prometheus.CounterVec

	// Session metrics
	SessionsActive        prometheus.Gauge
	SessionsCreatedTotal  prometheus.Counter
	SessionEvictionsTotal *prometheus.CounterVec
	SweepDurationSeconds  prometheus.Histogram

	// Provisioning metrics
	UsersProvisionedTotal *prometheus.CounterVec

	// SCIM metrics
	SCIMRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_auth_attempts_total",
				Help: "Authentication attempts by terminal status and reason",
			},
			[]string{"status", "reason"},
		),
		TokenValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_token_validations_total",
				Help: "Token validations by provider and result",
			},
			[]string{"provider", "result"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fedgate_sessions_active",
				Help: "Sessions currently held in the in-memory index",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fedgate_sessions_created_total",
				Help: "Total sessions issued",
			},
		),
		SessionEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_session_evictions_total",
				Help: "Sessions evicted by cause (sweep, lazy, logout, revoke)",
			},
			[]string{"cause"},
		),
		SweepDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fedgate_session_sweep_duration_seconds",
				Help:    "Duration of periodic session sweeps",
				Buckets: prometheus.DefBuckets,
			},
		),
		UsersProvisionedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_users_provisioned_total",
				Help: "User records created or updated by source (jit, scim)",
			},
			[]string{"source", "operation"},
		),
		SCIMRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedgate_scim_requests_total",
				Help: "SCIM requests by operation and status code",
			},
			[]string{"operation", "status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.AuthAttemptsTotal,
		m.TokenValidations,
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionEvictionsTotal,
		m.SweepDurationSeconds,
		m.UsersProvisionedTotal,
		m.SCIMRequestsTotal,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
