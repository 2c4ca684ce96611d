// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studentfund"

// Metrics groups the provider's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts   *prometheus.CounterVec
	Signups         prometheus.Counter
	ProfilesCreated *prometheus.CounterVec
	Uploads         *prometheus.CounterVec
	OrphansFound    prometheus.Counter
	OrphansPurged   prometheus.Counter
}

// New creates and registers all collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Password sign-in attempts by result.",
		}, []string{"result"}),
		Signups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signups_total",
			Help:      "Accounts created.",
		}),
		ProfilesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_created_total",
			Help:      "Profiles created by user type.",
		}, []string{"user_type"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_uploads_total",
			Help:      "Object uploads by bucket and result.",
		}, []string{"bucket", "result"}),
		OrphansFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_accounts_found_total",
			Help:      "Accounts found without a profile after the grace period.",
		}),
		OrphansPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_accounts_purged_total",
			Help:      "Orphaned accounts deleted by the reconciler.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoginAttempts,
		m.Signups,
		m.ProfilesCreated,
		m.Uploads,
		m.OrphansFound,
		m.OrphansPurged,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
