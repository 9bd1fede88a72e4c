package util

import "github.com/prometheus/client_golang/prometheus"

// Histogram buckets in seconds, doubling per step.
var (
	// MetricsBucketsMicroSeconds covers single key lookups, 128µs to 262ms.
	MetricsBucketsMicroSeconds = prometheus.ExponentialBuckets(128e-6, 2, 12)

	// MetricsBucketsMilliSeconds covers queries over one address, 1ms to 2s.
	MetricsBucketsMilliSeconds = prometheus.ExponentialBuckets(1e-3, 2, 12)

	// MetricsBucketsMilliLongSeconds covers block indexing and multi address queries,
	// 64ms to 131s.
	MetricsBucketsMilliLongSeconds = prometheus.ExponentialBuckets(64e-3, 2, 12)
)
