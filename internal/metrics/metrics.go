// Package metrics exposes prometheus counters for authentication outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	LoginsTotal          *prometheus.CounterVec
	TokenRejectionsTotal *prometheus.CounterVec
	UserOperationsTotal  *prometheus.CounterVec
}

// New creates and registers all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctrlauth_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		TokenRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctrlauth_token_rejections_total",
				Help: "Bearer tokens rejected by reason",
			},
			[]string{"reason"},
		),
		UserOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ctrlauth_user_operations_total",
				Help: "User management operations by operation and result",
			},
			[]string{"op", "result"},
		),
	}
	m.registry.MustRegister(m.LoginsTotal, m.TokenRejectionsTotal, m.UserOperationsTotal)
	return m
}

// RecordLogin counts a login attempt. A nil *Metrics records nothing.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordTokenRejection counts a refused bearer token.
func (m *Metrics) RecordTokenRejection(reason string) {
	if m == nil {
		return
	}
	m.TokenRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordUserOperation counts a user management call.
func (m *Metrics) RecordUserOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UserOperationsTotal.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
