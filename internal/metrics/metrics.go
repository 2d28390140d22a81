package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the access-control counters exported on /metrics
type Metrics struct {
	LoginsTotal         *prometheus.CounterVec
	TokenRejectsTotal   *prometheus.CounterVec
	AuthzDecisionsTotal *prometheus.CounterVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	ResolveErrorsTotal  prometheus.Counter
}

// New creates and registers all counters on registry
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ispmanager_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ispmanager_token_rejects_total",
				Help: "Rejected bearer tokens by kind",
			},
			[]string{"kind"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ispmanager_authz_decisions_total",
				Help: "Authorization gate decisions by check and reason",
			},
			[]string{"check", "reason"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ispmanager_principal_cache_hits_total",
			Help: "Principal cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ispmanager_principal_cache_misses_total",
			Help: "Principal cache misses",
		}),
		ResolveErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ispmanager_principal_resolve_errors_total",
			Help: "Principal resolutions that failed after retries",
		}),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.TokenRejectsTotal,
		m.AuthzDecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ResolveErrorsTotal,
	)
	return m
}

// NewNop returns counters registered on a private registry, for tests and tools
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
