package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discovery"

// Metrics groups the discovery collectors. A nil *Metrics is valid and
// records nothing, which keeps tests and optional wiring simple.
type Metrics struct {
	fetchDuration  prometheus.Histogram
	fetchTotal     *prometheus.CounterVec
	droppedRows    *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	matches        prometheus.Counter
	recordFailures prometheus.Counter
	activeSessions prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_fetch_duration_seconds",
			Help:      "Time spent fetching one candidate batch, retries included",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_fetch_total",
			Help:      "Candidate fetch attempts by result",
		}, []string{"result"}),
		droppedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_rows_dropped_total",
			Help:      "Remote profile rows dropped during validation",
		}, []string{"reason"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions persisted by kind",
		}, []string{"kind"}),
		matches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "New mutual matches detected",
		}),
		recordFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_record_failures_total",
			Help:      "Decisions that could not be saved after all retries",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open discovery sessions",
		}),
	}
}

func (m *Metrics) ObserveFetch(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(took.Seconds())
}

func (m *Metrics) FetchAttemptFailed() {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues("retry").Inc()
}

func (m *Metrics) RowDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedRows.WithLabelValues(reason).Inc()
}

func (m *Metrics) DecisionRecorded(kind string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind).Inc()
}

func (m *Metrics) MatchCreated() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
