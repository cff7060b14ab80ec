// Package pagination prefetches the remaining pages of a store's paged
// listings (products, reviews) into the cache.
//
// The first page of a listing is served while the user waits; pages 2..N
// are loaded in the background by a small worker pool so that paging
// through a store is answered from cache.
//
// Example usage:
//
//	prefetcher := pagination.NewPrefetcher(pagination.DefaultConfig())
//	res, err := prefetcher.Prefetch(ctx, "omega", pagination.ProductPages(apiClient))
//
// The prefetcher:
//   - Loads page 1 to learn the total page count
//   - Spawns a worker pool (default 4 workers)
//   - Distributes pages 2..min(N, MaxPages) across workers
//   - Keeps going past failed pages and reports them in the result
package pagination
