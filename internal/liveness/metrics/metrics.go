package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeartbeatsReceived tracks total heartbeats consumed per queue
	HeartbeatsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_heartbeats_received_total",
			Help: "Total number of heartbeat messages consumed",
		},
		[]string{"queue"},
	)

	// HeartbeatsStale tracks duplicates and out-of-order events dropped
	HeartbeatsStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtower_heartbeats_stale_total",
			Help: "Total number of stale or duplicate heartbeats dropped",
		},
	)

	// HeartbeatsInvalid tracks malformed events routed to the dead letter queue
	HeartbeatsInvalid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtower_heartbeats_invalid_total",
			Help: "Total number of invalid heartbeat messages",
		},
	)

	// Transitions tracks host state transitions by direction
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_transitions_total",
			Help: "Total number of host state transitions",
		},
		[]string{"direction"},
	)

	// CASConflicts tracks compare-and-set conflicts seen by the engine
	CASConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchtower_cas_conflicts_total",
			Help: "Total number of compare-and-set version conflicts",
		},
	)

	// IngestLatency tracks heartbeat ingestion latency
	IngestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchtower_ingest_latency_seconds",
			Help:    "Heartbeat ingestion latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HostsUp tracks the number of hosts currently up
	HostsUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_hosts_up",
			Help: "Number of hosts currently in state up",
		},
	)

	// HostsDown tracks the number of hosts currently down
	HostsDown = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_hosts_down",
			Help: "Number of hosts currently in state down",
		},
	)

	// SweepDuration tracks how long a down-detector sweep takes
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "watchtower_sweep_duration_seconds",
			Help:    "Down detector sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
