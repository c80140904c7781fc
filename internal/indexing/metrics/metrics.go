package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks worker cycles per service and outcome
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_cycles_total",
			Help: "Total number of worker cycles",
		},
		[]string{"service", "outcome"},
	)

	// CycleDuration tracks how long a worker cycle takes
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prime_cycle_duration_seconds",
			Help:    "Worker cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// EventsProcessed tracks decoded events per category
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_events_processed_total",
			Help: "Total number of chain events processed",
		},
		[]string{"category"},
	)

	// EventErrors tracks events skipped because of decode or re-query errors
	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_event_errors_total",
			Help: "Total number of events skipped after an error",
		},
		[]string{"reason"},
	)

	// PositionsWritten tracks position rows written by the indexer
	PositionsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_positions_written_total",
			Help: "Total number of position rows written",
		},
		[]string{"kind"},
	)

	// RelayOutcomes tracks relay transaction transitions
	RelayOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_relay_outcomes_total",
			Help: "Total number of relay transaction outcomes",
		},
		[]string{"queue", "tx_type", "status"},
	)

	// ChainCalls tracks ledger calls per chain and method
	ChainCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_chain_calls_total",
			Help: "Total number of ledger calls",
		},
		[]string{"chain", "method"},
	)

	// ChainErrors tracks failed ledger calls
	ChainErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_chain_errors_total",
			Help: "Total number of failed ledger calls",
		},
		[]string{"chain", "method"},
	)

	// ChainLatency tracks ledger call latency
	ChainLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prime_chain_latency_seconds",
			Help:    "Ledger call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prime_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// IndexerLatestBlock tracks the block cursor of the indexer
	IndexerLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prime_indexer_latest_block",
			Help: "Latest block height committed by the indexer",
		},
	)

	// NotificationsPublished tracks notifications drained from the outbox
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prime_notifications_published_total",
			Help: "Total number of notifications published",
		},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prime_db_connection_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)

	// DBErrors tracks database failures by operation
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prime_db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"op"},
	)
)
