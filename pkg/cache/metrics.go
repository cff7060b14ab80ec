package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheReads tracks validator outcomes by kind and status
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_reads_total",
			Help: "Total number of cache reads by kind and validation status",
		},
		[]string{"kind", "status"}, // status: valid, expired, not_found, corrupted
	)

	// CacheWrites tracks entries written by kind
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_writes_total",
			Help: "Total number of cache entries written",
		},
		[]string{"kind"},
	)

	// SkippedWrites tracks writes deliberately not performed
	SkippedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_skipped_writes_total",
			Help: "Total number of cache writes skipped by kind and reason",
		},
		[]string{"kind", "reason"}, // reason: empty, invalid_page, invalid
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation", "class"}, // operation: get, put, delete, keys
	)

	// InvalidatedKeys tracks keys removed by store invalidation
	InvalidatedKeys = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cache_invalidated_keys_total",
			Help: "Total number of cache keys removed by store invalidation",
		},
	)

	// SweptKeys tracks expired or corrupted keys removed by the sweeper
	SweptKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_swept_keys_total",
			Help: "Total number of cache keys removed by the sweeper",
		},
		[]string{"reason"}, // reason: expired, corrupted
	)
)
