// Package metrics declares the Prometheus collectors of the client.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the client collectors. A nil *Metrics records nothing.
type Metrics struct {
	SessionTransitions *prometheus.CounterVec
	SignatureRequests  prometheus.Counter
	APIRequests        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moduls",
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		SignatureRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moduls",
			Name:      "signature_requests_total",
			Help:      "Sign-in signature prompts sent to the wallet.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moduls",
			Name:      "api_requests_total",
			Help:      "Remote API requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.SessionTransitions, m.SignatureRequests, m.APIRequests)
	}

	return m
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SignatureRequested() {
	if m == nil {
		return
	}
	m.SignatureRequests.Inc()
}

// APIRequest counts a request; status 0 means no response was received
func (m *Metrics) APIRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(endpoint, label).Inc()
}
