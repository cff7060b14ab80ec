// Package metrics exposes the Prometheus registry used by the storefront
// cache. Metrics are defined in their respective packages (cache, client,
// pagination, ratelimit) via promauto to avoid circular dependencies; this package
// serves them and documents the catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registerer every package registers with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Names of the metrics defined across the module.
var Names = []string{
	"storefront_cache_reads_total",
	"storefront_cache_writes_total",
	"storefront_cache_skipped_writes_total",
	"storefront_cache_errors_total",
	"storefront_cache_invalidated_keys_total",
	"storefront_cache_swept_keys_total",
	"storefront_api_requests_total",
	"storefront_api_request_duration_seconds",
	"storefront_api_retries_total",
	"storefront_api_retry_exhausted_total",
	"storefront_prefetch_pages_total",
	"storefront_rate_limit_hits_total",
	"storefront_rate_limit_blocks_total",
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_reads_total{kind, status} (Counter): Reads by validation status (valid, expired, not_found, corrupted)
//   - storefront_cache_writes_total{kind} (Counter): Entries written
//   - storefront_cache_skipped_writes_total{kind, reason} (Counter): Writes skipped (empty, invalid_page)
//   - storefront_cache_errors_total{operation, class} (Counter): Storage errors by taxonomy class
//   - storefront_cache_invalidated_keys_total (Counter): Keys removed by store invalidation
//   - storefront_cache_swept_keys_total{reason} (Counter): Keys removed by the sweeper (expired, corrupted)
//
// Request Metrics (pkg/client):
//   - storefront_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - storefront_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - storefront_api_retries_total{error_class} (Counter): Retry attempts by error class
//   - storefront_api_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Prefetch Metrics (pkg/pagination):
//   - storefront_prefetch_pages_total{kind, result} (Counter): Prefetched pages by kind and result
//
// Rate Limit Metrics (pkg/ratelimit):
//   - storefront_rate_limit_hits_total (Counter): 429 responses observed
//   - storefront_rate_limit_blocks_total (Counter): Requests held back until Retry-After passed
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_reads_total{status="valid"}[5m])) /
//   sum(rate(storefront_cache_reads_total[5m]))
//
//   # Corrupted entries seen
//   rate(storefront_cache_reads_total{status="corrupted"}[5m])
//
//   # P95 API Latency
//   histogram_quantile(0.95, rate(storefront_api_request_duration_seconds_bucket[5m]))
