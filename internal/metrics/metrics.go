// Package metrics defines and registers all custom Prometheus metrics for the
// access-control service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init through promauto and exposed by the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "access"

// Channel labels for DecisionsTotal.
const (
	ChannelFace       = "face"
	ChannelCredential = "credential"
)

// ── Decision metrics ──────────────────────────────────────────────────────────

// DecisionsTotal counts every terminal decision.
// Labels:
//   - channel: "face" or "credential"
//   - outcome: "granted" or "denied"
//   - reason: the decision reason (e.g. "no_match", "card_not_found")
var DecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Total number of access decisions, by channel, outcome and reason.",
	},
	[]string{"channel", "outcome", "reason"},
)

// RecognitionDuration measures the face pipeline from payload to verdict.
// Label:
//   - outcome: "granted", "denied" or "error"
var RecognitionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "recognition_duration_seconds",
		Help:      "Duration of the face recognition pipeline.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// ── Cache metrics ─────────────────────────────────────────────────────────────

// CacheEmbeddings is the number of embeddings in the published snapshot.
var CacheEmbeddings = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_embeddings",
		Help:      "Number of embeddings in the currently published cache snapshot.",
	},
)

// CacheRebuildsTotal counts rebuild attempts.
// Label:
//   - result: "ok", "error" (previous snapshot kept) or "inconsistent" (degraded to empty)
var CacheRebuildsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_rebuilds_total",
		Help:      "Total number of embedding cache rebuilds, by result.",
	},
	[]string{"result"},
)

// CacheRebuildDuration measures how long a rebuild takes, store read included.
var CacheRebuildDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cache_rebuild_duration_seconds",
		Help:      "Duration of embedding cache rebuilds.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditFailuresTotal counts audit entries that could not be persisted.
var AuditFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Total number of access log entries that failed to persist.",
	},
)
