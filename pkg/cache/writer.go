package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-cache/pkg/storefront"
)

// ServerFetch holds freshly fetched, authoritative data for one store.
// Nil fields are not written.
type ServerFetch struct {
	Profile       *storefront.StoreProfile
	ProductsPage1 *storefront.ProductPage
	Categories    *storefront.CategoryList
	ReviewsPage1  *storefront.ReviewPage
}

// WriteSummary reports what a write pass did per kind.
type WriteSummary struct {
	Written []Kind
	Skipped []Kind
	Failed  []Kind
}

func (s *WriteSummary) record(kind Kind, written bool, err error) {
	switch {
	case err != nil:
		s.Failed = append(s.Failed, kind)
	case written:
		s.Written = append(s.Written, kind)
	default:
		s.Skipped = append(s.Skipped, kind)
	}
}

// Reconciler writes authoritative data into the store. Writes always
// overwrite; empty collections are never written so a transient empty
// response cannot shadow a previously cached page.
type Reconciler struct {
	store  Store
	now    func() time.Time
	logger zerolog.Logger

	pending sync.WaitGroup
}

// NewReconciler creates a reconciler writing to store.
func NewReconciler(store Store, now func() time.Time, logger zerolog.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:  store,
		now:    now,
		logger: logger,
	}
}

// WriteFromServerFetch writes every kind present in fetch for storeID.
// Kinds are written independently; a failure on one does not stop the
// others. Failures are logged and never returned.
func (r *Reconciler) WriteFromServerFetch(ctx context.Context, storeID string, fetch ServerFetch) WriteSummary {
	var summary WriteSummary

	if fetch.Profile != nil {
		written, err := r.WriteProfile(ctx, storeID, fetch.Profile)
		summary.record(KindProfile, written, err)
	}
	if fetch.ProductsPage1 != nil {
		page := *fetch.ProductsPage1
		page.Page = 1
		written, err := r.WriteProductsPage(ctx, storeID, &page)
		summary.record(KindProducts, written, err)
	}
	if fetch.Categories != nil {
		written, err := r.WriteCategories(ctx, storeID, fetch.Categories)
		summary.record(KindCategories, written, err)
	}
	if fetch.ReviewsPage1 != nil {
		page := *fetch.ReviewsPage1
		page.Page = 1
		written, err := r.WriteReviewsPage(ctx, storeID, &page)
		summary.record(KindReviews, written, err)
	}

	r.logger.Debug().
		Str("store_id", storeID).
		Int("written", len(summary.Written)).
		Int("skipped", len(summary.Skipped)).
		Int("failed", len(summary.Failed)).
		Msg("Reconciled server fetch into cache")

	return summary
}

// WriteFromServerFetchAsync runs WriteFromServerFetch in the background.
// The write is detached from ctx cancellation so it outlives the request
// that triggered it. Use Wait to drain pending writes.
func (r *Reconciler) WriteFromServerFetchAsync(ctx context.Context, storeID string, fetch ServerFetch) {
	r.Go(ctx, func(ctx context.Context) {
		r.WriteFromServerFetch(ctx, storeID, fetch)
	})
}

// Go runs write in the background with a context that keeps ctx's values
// but not its cancellation. Wait drains it like any other pending write.
func (r *Reconciler) Go(ctx context.Context, write func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		write(bg)
	}()
}

// Wait blocks until all background writes have finished.
func (r *Reconciler) Wait() {
	r.pending.Wait()
}

// WriteProfile caches a store profile. The error is returned for
// bookkeeping only and has already been logged.
func (r *Reconciler) WriteProfile(ctx context.Context, storeID string, profile *storefront.StoreProfile) (bool, error) {
	if profile == nil {
		return false, nil
	}
	if profile.ID == "" && profile.Username == "" {
		SkippedWrites.WithLabelValues(string(KindProfile), "invalid").Inc()
		r.logger.Warn().Str("store_id", storeID).Msg("Refusing to cache profile without id or username")
		return false, nil
	}
	err := r.put(ctx, ProfileKey(storeID), func(cachedAt, expiresAt int64) Entry {
		return &CachedStoreProfile{
			StoreData: *profile,
			CachedAt:  cachedAt,
			ExpiresAt: expiresAt,
		}
	})
	return err == nil, err
}

// WriteProductsPage caches one page of products under its page number.
func (r *Reconciler) WriteProductsPage(ctx context.Context, storeID string, page *storefront.ProductPage) (bool, error) {
	if page == nil {
		return false, nil
	}
	key := ProductsKey(storeID, page.Page)
	if !r.admit(key, len(page.Products)) {
		return false, nil
	}
	err := r.put(ctx, key, func(cachedAt, expiresAt int64) Entry {
		return &CachedStoreProducts{
			StoreID:       storeID,
			Page:          page.Page,
			Products:      page.Products,
			TotalPages:    page.TotalPages,
			TotalProducts: page.TotalProducts,
			HasNextPage:   page.HasNextPage,
			CachedAt:      cachedAt,
			ExpiresAt:     expiresAt,
		}
	})
	return err == nil, err
}

// WriteCategories caches a store's category list.
func (r *Reconciler) WriteCategories(ctx context.Context, storeID string, list *storefront.CategoryList) (bool, error) {
	if list == nil {
		return false, nil
	}
	key := CategoriesKey(storeID)
	if !r.admit(key, len(list.Categories)) {
		return false, nil
	}
	err := r.put(ctx, key, func(cachedAt, expiresAt int64) Entry {
		return &CachedStoreCategories{
			StoreID:    storeID,
			Categories: list.Categories,
			TotalItems: list.TotalItems,
			CachedAt:   cachedAt,
			ExpiresAt:  expiresAt,
		}
	})
	return err == nil, err
}

// WriteReviewsPage caches one page of reviews under its page number.
func (r *Reconciler) WriteReviewsPage(ctx context.Context, storeID string, page *storefront.ReviewPage) (bool, error) {
	if page == nil {
		return false, nil
	}
	key := ReviewsKey(storeID, page.Page)
	if !r.admit(key, len(page.Reviews)) {
		return false, nil
	}
	err := r.put(ctx, key, func(cachedAt, expiresAt int64) Entry {
		return &CachedStoreReviews{
			StoreID:      storeID,
			Page:         page.Page,
			Reviews:      page.Reviews,
			Stats:        page.Stats,
			TotalPages:   page.TotalPages,
			TotalReviews: page.TotalReviews,
			HasNextPage:  page.HasNextPage,
			CachedAt:     cachedAt,
			ExpiresAt:    expiresAt,
		}
	})
	return err == nil, err
}

// admit decides whether a collection of size n may be written under key.
func (r *Reconciler) admit(key CacheKey, n int) bool {
	if key.Kind.Paged() && key.Page < 1 {
		SkippedWrites.WithLabelValues(string(key.Kind), "invalid_page").Inc()
		r.logger.Warn().Str("key", key.String()).Int("page", key.Page).Msg("Refusing to cache invalid page number")
		return false
	}
	if n == 0 {
		SkippedWrites.WithLabelValues(string(key.Kind), "empty").Inc()
		r.logger.Debug().Str("key", key.String()).Msg("Not caching empty collection")
		return false
	}
	return true
}

// put builds the record for key at the current time and stores it.
func (r *Reconciler) put(ctx context.Context, key CacheKey, build func(cachedAt, expiresAt int64) Entry) error {
	keyStr := key.String()

	meta, err := NewMetadata(keyStr, r.now(), TTLFor(key.Kind))
	if err != nil {
		return r.fail("put", key, fmt.Errorf("%w: %v", ErrSerialization, err))
	}

	payload, err := json.Marshal(build(meta.Timestamp, meta.ExpiresAt))
	if err != nil {
		return r.fail("put", key, fmt.Errorf("%w: payload: %v", ErrSerialization, err))
	}

	data, err := json.Marshal(Record{Kind: key.Kind, Metadata: meta, Payload: payload})
	if err != nil {
		return r.fail("put", key, fmt.Errorf("%w: record: %v", ErrSerialization, err))
	}

	if err := r.store.Put(ctx, keyStr, data); err != nil {
		return r.fail("put", key, err)
	}

	CacheWrites.WithLabelValues(string(key.Kind)).Inc()
	r.logger.Debug().
		Str("key", keyStr).
		Str("kind", string(key.Kind)).
		Int64("expires_at", meta.ExpiresAt).
		Msg("Cached entry")
	return nil
}

func (r *Reconciler) fail(op string, key CacheKey, err error) error {
	class := errorClass(err)
	CacheErrors.WithLabelValues(op, class).Inc()
	r.logger.Warn().
		Err(err).
		Str("key", key.String()).
		Str("error_class", class).
		Msg("Cache write failed")
	return err
}
