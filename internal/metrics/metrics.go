// Package metrics exposes Prometheus counters for the journal.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prn-tf/cinelog/internal/domain"
	"github.com/prn-tf/cinelog/internal/events"
)

const namespace = "cinelog"

// Login results.
const (
	LoginSuccess  = "success"
	LoginFailure  = "failure"
	LoginRejected = "rejected"
)

// Metrics holds the journal's collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	reviewEvents *prometheus.CounterVec
	logins       *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reviewEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_events_total",
			Help:      "Review ledger changes by event type.",
		}, []string{"event"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store failures swallowed at the service boundary.",
		}, []string{"component", "op"}),
	}

	m.registry.MustRegister(
		m.reviewEvents,
		m.logins,
		m.storeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveStoreError counts a store failure in component during op.
func (m *Metrics) ObserveStoreError(component, op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(component, op).Inc()
}

// ObserveReviewEvent adds n to the counter of event.
func (m *Metrics) ObserveReviewEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reviewEvents.WithLabelValues(event).Add(float64(n))
}

// Listener returns an events.Listener counting ledger changes.
// Bulk deletes count every removed review.
func (m *Metrics) Listener() events.Listener {
	return &events.ListenerFuncs{
		Added:       func(*domain.Review) { m.ObserveReviewEvent("added", 1) },
		Updated:     func(*domain.Review) { m.ObserveReviewEvent("updated", 1) },
		Deleted:     func(int64) { m.ObserveReviewEvent("deleted", 1) },
		BulkDeleted: func(count int) { m.ObserveReviewEvent("deleted", count) },
		Cleared:     func() { m.ObserveReviewEvent("cleared", 1) },
	}
}
