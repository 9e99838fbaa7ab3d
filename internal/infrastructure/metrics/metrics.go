// Package metrics defines and registers all custom Prometheus metrics for the
// auth service. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation via promauto; the /metrics route exposes that registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authd"

// ── Lifecycle metrics ─────────────────────────────────────────────────────────

// AuthEventsTotal counts audited lifecycle decisions.
// Labels:
//   - action: register, login, refresh, refresh_reuse, logout, change_password, update_profile
//   - outcome: success or failure
var AuthEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_events_total",
		Help:      "Total number of credential lifecycle events, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// RefreshReuseTotal counts presentations of refresh tokens that were already
// rotated away or revoked. A rising rate is a token theft signal.
var RefreshReuseTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_reuse_total",
		Help:      "Total number of refresh attempts with a rotated-away or revoked token.",
	},
)

// HashDuration measures bcrypt hashing and comparison time.
// Label:
//   - kind: "password" or "token"
var HashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hash_duration_seconds",
		Help:      "Duration of bcrypt hash and compare operations.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	},
	[]string{"kind"},
)

// ── Audit pipeline metrics ────────────────────────────────────────────────────

// AuditDroppedTotal counts audit events dropped because their shard was full.
var AuditDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_dropped_total",
		Help:      "Total number of audit events dropped on a full dispatcher shard.",
	},
)

// AuditQueueDepth tracks the number of audit events waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
