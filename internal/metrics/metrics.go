// Package metrics defines the Prometheus collectors for the sign-in flow.
// Collectors live on a struct (not package globals) so tests can register
// against their own registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FlowTransitions *prometheus.CounterVec
	ExternalCalls   *prometheus.HistogramVec
	OTPResults      *prometheus.CounterVec
	SignInOutcomes  *prometheus.CounterVec
}

// New registers all collectors on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		FlowTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signin_flow_transitions_total",
			Help: "Sign-in flow state transitions",
		}, []string{"from", "to"}),
		ExternalCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signin_external_call_seconds",
			Help:    "Latency of calls to the IdP, profile directory and OTP gateway",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"target", "outcome"}),
		OTPResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signin_otp_results_total",
			Help: "OTP validation results by provider response code",
		}, []string{"code"}),
		SignInOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signin_outcomes_total",
			Help: "Terminal sign-in outcomes",
		}, []string{"outcome"}),
	}
}

// All observers are nil-safe so wiring stays optional in tests.

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.FlowTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveExternalCall(target string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExternalCalls.WithLabelValues(target, outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveOTPResult(code string) {
	if m == nil {
		return
	}
	m.OTPResults.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SignInOutcomes.WithLabelValues(outcome).Inc()
}
