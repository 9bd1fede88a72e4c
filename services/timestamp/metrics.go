package timestamp

import (
	"sync"

	"github.com/bsv-blockchain/addressindex/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusTimestampProcessBlock prometheus.Histogram
	prometheusTimestampCacheHits    prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusTimestampProcessBlock = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "timestamp",
			Name:      "process_block",
			Help:      "Histogram of indexing the timestamp of a connected block",
			Buckets:   util.MetricsBucketsMicroSeconds,
		},
	)

	prometheusTimestampCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timestamp",
			Name:      "cache_hits",
			Help:      "Number of block timestamps served from the cache",
		},
	)
}
