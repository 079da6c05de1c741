// Package metrics defines prometheus instrumentation for the sync
// engine, the status monitor, and the command dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine metrics
var (
	// SnapshotsApplied tracks accepted snapshot deliveries by source (push/pull)
	// and completeness (full/partial).
	SnapshotsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmwatch_snapshots_applied_total",
			Help: "Snapshot deliveries applied by source and completeness",
		},
		[]string{"source", "completeness"},
	)

	// SnapshotsDiscarded tracks deliveries dropped because they arrived
	// after stop or under a stale generation.
	SnapshotsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmwatch_snapshots_discarded_total",
			Help: "Snapshot deliveries discarded as stale",
		},
	)

	// StreamReconnects tracks push channel reconnection attempts.
	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmwatch_stream_reconnects_total",
			Help: "Push channel reconnection attempts",
		},
	)

	// StreamConnected is 1 while the push channel is established.
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmwatch_stream_connected",
			Help: "Whether the push channel is currently connected",
		},
	)

	// PullErrors tracks failed pull channel fetches by resource.
	PullErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmwatch_pull_errors_total",
			Help: "Failed pull channel fetches by resource",
		},
		[]string{"resource"},
	)
)

// Status monitor metrics
var (
	// ProbesTotal tracks health probes by outcome (ok/error).
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmwatch_probes_total",
			Help: "Health probes by outcome",
		},
		[]string{"outcome"},
	)

	// QueueDepth is the last observed queue count.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmwatch_queue_depth",
			Help: "Last observed queue count on the monitored server",
		},
	)

	// ThresholdAlerts tracks edge-triggered queue depth advisories.
	ThresholdAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmwatch_threshold_alerts_total",
			Help: "Queue depth threshold advisories emitted",
		},
	)
)

// Dispatcher metrics
var (
	// KillsIssued tracks cancellation commands by result (ok/error/soft_failure).
	KillsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmwatch_kills_total",
			Help: "Cancellation commands by result",
		},
		[]string{"result"},
	)
)

// Session metrics
var (
	// TokenRefreshes tracks refresh attempts by result (ok/error).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmwatch_token_refreshes_total",
			Help: "Access token refresh attempts by result",
		},
		[]string{"result"},
	)
)
