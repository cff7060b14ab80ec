package pagination

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/storefront-cache/pkg/cache"
	"github.com/Sternrassler/storefront-cache/pkg/client"
)

var prefetchPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_prefetch_pages_total",
	Help: "Total prefetched listing pages by kind and result",
}, []string{"kind", "result"})

// Config holds prefetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel page loads.
	MaxConcurrency int
	// Timeout per page load.
	Timeout time.Duration
	// MaxPages caps the highest page prefetched. Deep pages are rarely
	// visited and are left to on-demand loading.
	MaxPages int
}

// DefaultConfig returns the default prefetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxPages:       10,
	}
}

// PageLoader loads one page of a store listing, caching it as a side
// effect, and reports the listing's total page count.
type PageLoader interface {
	Kind() cache.Kind
	LoadPage(ctx context.Context, storeID string, page int) (totalPages int, err error)
}

// Result summarizes one prefetch run.
type Result struct {
	Kind       cache.Kind
	TotalPages int
	Loaded     int
	Failed     []int
}

// Prefetcher loads listing pages in parallel using a worker pool.
type Prefetcher struct {
	config Config
}

// NewPrefetcher creates a new prefetcher.
func NewPrefetcher(config Config) *Prefetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 10
	}
	return &Prefetcher{config: config}
}

// Prefetch loads page 1 of the listing and then pages 2..N in parallel.
// It fails only when page 1 cannot be loaded; failed later pages are
// listed in the result.
func (p *Prefetcher) Prefetch(ctx context.Context, storeID string, loader PageLoader) (Result, error) {
	start := time.Now()
	kind := loader.Kind()
	res := Result{Kind: kind}

	totalPages, err := loader.LoadPage(ctx, storeID, 1)
	if err != nil {
		prefetchPagesTotal.WithLabelValues(string(kind), "error").Inc()
		return res, fmt.Errorf("load first %s page: %w", kind, err)
	}
	prefetchPagesTotal.WithLabelValues(string(kind), "ok").Inc()
	res.TotalPages = totalPages
	res.Loaded = 1

	last := min(totalPages, p.config.MaxPages)
	if last <= 1 {
		return res, nil
	}

	pageQueue := make(chan int, last-1)
	for page := 2; page <= last; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	workers := min(p.config.MaxConcurrency, last-1)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for page := range pageQueue {
				if ctx.Err() != nil {
					log.Debug().Int("worker_id", workerID).Msg("Prefetch worker stopping (context cancelled)")
					return
				}

				pageCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
				_, err := loader.LoadPage(pageCtx, storeID, page)
				cancel()

				mu.Lock()
				if err != nil {
					res.Failed = append(res.Failed, page)
				} else {
					res.Loaded++
				}
				mu.Unlock()

				if err != nil {
					prefetchPagesTotal.WithLabelValues(string(kind), "error").Inc()
					log.Warn().
						Err(err).
						Str("store_id", storeID).
						Str("kind", string(kind)).
						Int("page", page).
						Msg("Page prefetch failed")
					continue
				}
				prefetchPagesTotal.WithLabelValues(string(kind), "ok").Inc()
			}
		}(i)
	}
	wg.Wait()
	sort.Ints(res.Failed)

	log.Debug().
		Str("store_id", storeID).
		Str("kind", string(kind)).
		Int("loaded", res.Loaded).
		Int("total", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Prefetch complete")

	if err := ctx.Err(); err != nil {
		return res, errors.Join(fmt.Errorf("prefetch %s interrupted (%d/%d pages)", kind, res.Loaded, last), err)
	}
	return res, nil
}

// PrefetchStore prefetches products and reviews of storeID.
func (p *Prefetcher) PrefetchStore(ctx context.Context, storeID string, c *client.Client) []Result {
	var results []Result
	for _, loader := range []PageLoader{ProductPages(c), ReviewPages(c)} {
		res, err := p.Prefetch(ctx, storeID, loader)
		if err != nil {
			log.Warn().Err(err).Str("store_id", storeID).Str("kind", string(loader.Kind())).Msg("Store prefetch failed")
		}
		results = append(results, res)
	}
	return results
}

type loaderFunc struct {
	kind cache.Kind
	load func(ctx context.Context, storeID string, page int) (int, error)
}

func (l loaderFunc) Kind() cache.Kind { return l.kind }

func (l loaderFunc) LoadPage(ctx context.Context, storeID string, page int) (int, error) {
	return l.load(ctx, storeID, page)
}

// ProductPages loads product pages through c, cache-first.
func ProductPages(c *client.Client) PageLoader {
	return loaderFunc{kind: cache.KindProducts, load: func(ctx context.Context, storeID string, page int) (int, error) {
		res, err := c.Products(ctx, storeID, page)
		if err != nil {
			return 0, err
		}
		return res.TotalPages, nil
	}}
}

// ReviewPages loads review pages through c, cache-first.
func ReviewPages(c *client.Client) PageLoader {
	return loaderFunc{kind: cache.KindReviews, load: func(ctx context.Context, storeID string, page int) (int, error) {
		res, err := c.Reviews(ctx, storeID, page)
		if err != nil {
			return 0, err
		}
		return res.TotalPages, nil
	}}
}
