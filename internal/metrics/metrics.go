// Package metrics holds the Prometheus collectors for the API and the
// reward engine. Every method is safe to call on a nil *Metrics, which is
// what tests pass when they do not care about instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "greenquest"

// Metrics holds Prometheus metrics for the service.
type Metrics struct {
	RequestCounter      *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	Verdicts            *prometheus.CounterVec
	ClassifierDuration  *prometheus.HistogramVec
	PointsAwarded       *prometheus.CounterVec
	TicketsResolved     *prometheus.CounterVec
	ChallengeCompletion *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide with the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "verdicts_total",
				Help:      "Verdicts produced, by category, source and match outcome",
			},
			[]string{"category", "source", "matches"},
		),
		ClassifierDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "verify",
				Name:      "classifier_duration_seconds",
				Help:      "Latency of classifier calls",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"outcome"},
		),
		PointsAwarded: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "points_total",
				Help:      "Sum of ledger deltas by cause",
			},
			[]string{"cause"},
		),
		TicketsResolved: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tickets",
				Name:      "resolved_total",
				Help:      "Tickets resolved by action",
			},
			[]string{"action"},
		),
		ChallengeCompletion: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "challenges",
				Name:      "completions_total",
				Help:      "Challenge completions by path (auto or manual)",
			},
			[]string{"path"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) ObserveVerdict(category, source string, matches bool) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(category, source, strconv.FormatBool(matches)).Inc()
}

func (m *Metrics) ObserveClassifier(took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ClassifierDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

func (m *Metrics) AddPoints(cause string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	// Counters only go up; debits are tracked under their own cause label.
	if delta < 0 {
		delta = -delta
	}
	m.PointsAwarded.WithLabelValues(cause).Add(float64(delta))
}

func (m *Metrics) TicketResolved(action string) {
	if m == nil {
		return
	}
	m.TicketsResolved.WithLabelValues(action).Inc()
}

func (m *Metrics) ChallengeCompleted(path string) {
	if m == nil {
		return
	}
	m.ChallengeCompletion.WithLabelValues(path).Inc()
}
