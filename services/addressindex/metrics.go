package addressindex

import (
	"sync"

	"github.com/bsv-blockchain/addressindex/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusAddressIndexHealth           prometheus.Counter
	prometheusAddressIndexApplyBlock       prometheus.Histogram
	prometheusAddressIndexUndoBlocks       prometheus.Histogram
	prometheusAddressIndexOperations       prometheus.Counter
	prometheusAddressIndexHistory          prometheus.Histogram
	prometheusAddressIndexSummary          prometheus.Histogram
	prometheusAddressIndexUnspent          prometheus.Histogram
	prometheusAddressIndexCheckpointHits   prometheus.Counter
	prometheusAddressIndexCheckpointMisses prometheus.Counter
	prometheusAddressIndexCheckpointStale  prometheus.Counter
	prometheusAddressIndexCheckpointStored prometheus.Counter
	prometheusAddressIndexTxidListHits     prometheus.Counter
	prometheusAddressIndexAddressErrors    prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusAddressIndexHealth = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "health",
			Help:      "Number of calls to the health endpoint of the address index",
		},
	)

	prometheusAddressIndexApplyBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "addressindex",
			Name:      "apply_block",
			Help:      "Histogram of building the index operations of a connected block",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusAddressIndexUndoBlocks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "addressindex",
			Name:      "undo_blocks",
			Help:      "Histogram of building the index operations of disconnected blocks",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusAddressIndexOperations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "operations",
			Help:      "Number of put and delete operations committed to the index",
		},
	)

	prometheusAddressIndexHistory = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "addressindex",
			Name:      "history",
			Help:      "Histogram of address history queries",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusAddressIndexSummary = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "addressindex",
			Name:      "summary",
			Help:      "Histogram of address summary queries",
			Buckets:   util.MetricsBucketsMilliLongSeconds,
		},
	)

	prometheusAddressIndexUnspent = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "addressindex",
			Name:      "unspent",
			Help:      "Histogram of address unspent output queries",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusAddressIndexCheckpointHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "checkpoint_hits",
			Help:      "Number of summary queries seeded from a valid checkpoint",
		},
	)

	prometheusAddressIndexCheckpointMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "checkpoint_misses",
			Help:      "Number of summary queries without a checkpoint",
		},
	)

	prometheusAddressIndexCheckpointStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "checkpoint_stale",
			Help:      "Number of checkpoints discarded because their anchor left the chain",
		},
	)

	prometheusAddressIndexCheckpointStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "checkpoint_stored",
			Help:      "Number of checkpoints written",
		},
	)

	prometheusAddressIndexTxidListHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "txid_list_cache_hits",
			Help:      "Number of paginated history queries served from the txid list cache",
		},
	)

	prometheusAddressIndexAddressErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "addressindex",
			Name:      "address_errors",
			Help:      "Number of per-address sub-queries that failed and were left out of a result",
		},
	)
}
