package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision module.
// Tracks request creation, decision outcomes, escalations, and the latency
// of the decide path.
type Metrics struct {
	DecisionsCreated   prometheus.Counter
	DecisionsDecided   *prometheus.CounterVec
	DecisionsEscalated prometheus.Counter
	DecideDuration     prometheus.Histogram
	InboxDuration      prometheus.Histogram
}

// New creates a Metrics instance with all decision module metrics registered.
func New() *Metrics {
	return &Metrics{
		DecisionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_decisions_created_total",
			Help: "Total number of decision requests created",
		}),
		DecisionsDecided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_decisions_decided_total",
			Help: "Total number of decision outcomes recorded, by outcome",
		}, []string{"outcome"}),
		DecisionsEscalated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_decisions_escalated_total",
			Help: "Total number of SLA escalations recorded",
		}),
		DecideDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_decide_duration_seconds",
			Help:    "Duration of Decide operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		InboxDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_inbox_duration_seconds",
			Help:    "Duration of inbox listing operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful request creation.
func (m *Metrics) IncrementCreated() {
	m.DecisionsCreated.Inc()
}

// IncrementDecided records a decision outcome ("approved" or "rejected").
func (m *Metrics) IncrementDecided(outcome string) {
	m.DecisionsDecided.WithLabelValues(outcome).Inc()
}

// IncrementEscalated records one SLA escalation.
func (m *Metrics) IncrementEscalated() {
	m.DecisionsEscalated.Inc()
}

// ObserveDecide records the duration of a Decide operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDecide(start time.Time) {
	m.DecideDuration.Observe(time.Since(start).Seconds())
}

// ObserveInbox records the duration of an inbox listing.
func (m *Metrics) ObserveInbox(start time.Time) {
	m.InboxDuration.Observe(time.Since(start).Seconds())
}
