// Package metrics defines and registers all custom Prometheus metrics for the
// gate service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default registry on package init via
// promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gate"

// ── Verify metrics ────────────────────────────────────────────────────────────

// VerifyDecisionsTotal counts terminal verify decisions.
// Labels:
//   - stage: pipeline stage that decided ("classify", "allowlist", "proof", "issue")
//   - outcome: "pass", "automated", "denied", "invalid_input", "not_authorized", ...
var VerifyDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verify_decisions_total",
		Help:      "Total number of verify requests by deciding stage and outcome.",
	},
	[]string{"stage", "outcome"},
)

// ClassifierHitsTotal counts classifier predicates that fired.
// Label:
//   - reason: the reason code of the predicate (e.g. "honeypot", "user_agent")
var ClassifierHitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifier_hits_total",
		Help:      "Total number of requests stopped by a classifier predicate.",
	},
	[]string{"reason"},
)

// ProofVerifyDuration measures calls to the external verification service.
// Label:
//   - outcome: "verified", "rejected" or "service_unavailable"
var ProofVerifyDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_verify_duration_seconds",
		Help:      "Duration of proof verification calls including retries.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts issued redemption tokens.
var TokensIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of redemption tokens issued.",
	},
)

// TokensEvictedTotal counts live tokens replaced by a reissue for the same identity.
var TokensEvictedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_evicted_total",
		Help:      "Total number of live tokens evicted by reissue.",
	},
)

// TokenRedemptionsTotal counts redeem attempts.
// Label:
//   - result: "redeemed", "not_found" or "expired"
var TokenRedemptionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_redemptions_total",
		Help:      "Total number of token redemption attempts by result.",
	},
	[]string{"result"},
)

// TokensSweptTotal counts expired tokens removed by the background sweep.
var TokensSweptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_swept_total",
		Help:      "Total number of expired tokens removed by the sweep.",
	},
)

// TokensLive tracks the number of entries held by the in-memory registry.
var TokensLive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tokens_live",
		Help:      "Current number of entries held by the token registry.",
	},
)

// ── Allow-list metrics ────────────────────────────────────────────────────────

// AllowlistSize tracks the size of the active allow-list.
var AllowlistSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "allowlist_size",
		Help:      "Number of identities in the active allow-list.",
	},
)

// AllowlistReloadsTotal counts reload attempts.
// Labels:
//   - trigger: "startup", "watch", "signal", "interval" or "admin"
//   - result: "ok" or "error"
var AllowlistReloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allowlist_reloads_total",
		Help:      "Total number of allow-list reload attempts.",
	},
	[]string{"trigger", "result"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditDroppedTotal counts audit events dropped because a worker queue was full.
var AuditDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit events dropped on a full queue.",
	},
)

// AuditWriteErrorsTotal counts audit events the writer failed to persist.
var AuditWriteErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_write_errors_total",
		Help:      "Total number of audit events that failed to persist.",
	},
)

// ── Rate limit metrics ────────────────────────────────────────────────────────

// RateLimitedTotal counts requests rejected by the rate limiter.
// Label:
//   - store: "memory" or "redis"
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter.",
	},
	[]string{"store"},
)
