// Package cache provides the store data cache sitting in front of the
// storefront REST API.
//
// The cache keeps four entity kinds per store, each with a fixed TTL:
//
//   - store profile (24h)
//   - products, one entry per page (1h)
//   - categories (1h)
//   - reviews, one entry per page (6h)
//
// # Basic Usage
//
//	// Open a durable local store
//	store, err := cache.NewSQLiteStore(ctx, "storefront-cache.db")
//	if err != nil {
//		return err
//	}
//
//	// Create cache manager
//	manager := cache.NewManager(store)
//	defer manager.Close()
//
//	// Seed the cache with server-fetched data
//	manager.WriteFromServerFetch(ctx, "omega", cache.ServerFetch{
//		Profile:       profile,
//		ProductsPage1: productsPage,
//	})
//
//	// Read before going to the network
//	res := manager.ReadProducts(ctx, "omega", 1)
//	if res.OK() {
//		// use res.Data.Products
//	}
//
// # Validation
//
// Every read returns a Result with one of four statuses: valid, expired,
// not_found or corrupted. Expiry is checked before the payload is decoded,
// so stale data always reports expired. Expired entries are left in
// storage; Manager.Sweep or a Sweeper removes them.
//
// # Writes
//
// Server-fetched data always overwrites what is cached, even when the
// cached entry is still fresh. Empty product, category and review
// collections are never written. Write failures are logged and counted,
// never returned to the page.
//
// # Backends
//
//   - SQLiteStore: local database file, survives restarts (default)
//   - RedisStore: shared Redis instance
//   - MemoryStore: process memory, for tests
//
// # Metrics
//
//   - storefront_cache_reads_total{kind,status}
//   - storefront_cache_writes_total{kind}
//   - storefront_cache_skipped_writes_total{kind,reason}
//   - storefront_cache_errors_total{operation,class}
//   - storefront_cache_invalidated_keys_total
//   - storefront_cache_swept_keys_total{reason}
package cache
