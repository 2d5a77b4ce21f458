// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_submissions_total",
		Help: "Attendance submissions by terminal outcome.",
	}, []string{"status", "reason"})

	matcherDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "presence_matcher_duration_seconds",
		Help:    "Latency of biometric matcher calls.",
		Buckets: prometheus.DefBuckets,
	})

	evidenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_evidence_persist_failures_total",
		Help: "Evidence writes that failed and were skipped.",
	})
)

// Submission counts one terminal submission outcome.
func Submission(status, reason string) {
	if reason == "" {
		reason = "none"
	}
	submissionsTotal.WithLabelValues(status, reason).Inc()
}

// MatcherObserved records one matcher round trip.
func MatcherObserved(d time.Duration) {
	matcherDuration.Observe(d.Seconds())
}

// EvidenceFailure counts a failed evidence write.
func EvidenceFailure() {
	evidenceFailures.Inc()
}
