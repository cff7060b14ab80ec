package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager is the single entry point to the store data cache. Reads go
// through the validator and writes through the embedded Reconciler. Storage
// failures never surface to callers: writes become logged no-ops and reads
// degrade to not_found or corrupted.
type Manager struct {
	*Reconciler

	store  Store
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a cache manager on top of store.
func NewManager(store Store, opts ...Option) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	m := &Manager{
		store:  store,
		now:    time.Now,
		logger: log.With().Str("component", "store-cache").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.Reconciler = NewReconciler(store, m.now, m.logger)
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// ReadProfile returns the cached profile of storeID if still valid.
func (m *Manager) ReadProfile(ctx context.Context, storeID string) Result[CachedStoreProfile] {
	return logRead(m, Validate[CachedStoreProfile](ctx, m.store, ProfileKey(storeID), m.now()), ProfileKey(storeID))
}

// ReadProducts returns one cached page of products if still valid.
func (m *Manager) ReadProducts(ctx context.Context, storeID string, page int) Result[CachedStoreProducts] {
	key := ProductsKey(storeID, page)
	return logRead(m, Validate[CachedStoreProducts](ctx, m.store, key, m.now()), key)
}

// ReadCategories returns the cached categories of storeID if still valid.
func (m *Manager) ReadCategories(ctx context.Context, storeID string) Result[CachedStoreCategories] {
	key := CategoriesKey(storeID)
	return logRead(m, Validate[CachedStoreCategories](ctx, m.store, key, m.now()), key)
}

// ReadReviews returns one cached page of reviews if still valid.
func (m *Manager) ReadReviews(ctx context.Context, storeID string, page int) Result[CachedStoreReviews] {
	key := ReviewsKey(storeID, page)
	return logRead(m, Validate[CachedStoreReviews](ctx, m.store, key, m.now()), key)
}

func logRead[T any](m *Manager, res Result[T], key CacheKey) Result[T] {
	switch res.Status {
	case StatusCorrupted:
		m.logger.Warn().Err(res.Err).Str("key", key.String()).Msg("Corrupted cache entry")
	case StatusNotFound:
		if res.Err != nil {
			m.logger.Warn().Err(res.Err).Str("key", key.String()).Msg("Cache read failed")
			break
		}
		fallthrough
	default:
		m.logger.Debug().Str("key", key.String()).Str("status", string(res.Status)).Msg("Cache read")
	}
	return res
}

// Invalidate removes a single entry.
func (m *Manager) Invalidate(ctx context.Context, key CacheKey) {
	if err := m.store.Delete(ctx, key.String()); err != nil {
		CacheErrors.WithLabelValues("delete", errorClass(err)).Inc()
		m.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache delete failed")
	}
}

// InvalidateStore removes every entry of storeID across all kinds and pages
// and returns the number of entries removed. Other stores are untouched.
func (m *Manager) InvalidateStore(ctx context.Context, storeID string) int {
	keys, err := m.store.Keys(ctx, StorePrefix(storeID))
	if err != nil {
		CacheErrors.WithLabelValues("keys", errorClass(err)).Inc()
		m.logger.Warn().Err(err).Str("store_id", storeID).Msg("Listing store keys failed")
		return 0
	}

	removed := 0
	for _, k := range keys {
		if err := m.store.Delete(ctx, k); err != nil {
			CacheErrors.WithLabelValues("delete", errorClass(err)).Inc()
			m.logger.Warn().Err(err).Str("key", k).Msg("Cache delete failed")
			continue
		}
		removed++
	}

	InvalidatedKeys.Add(float64(removed))
	m.logger.Info().Str("store_id", storeID).Int("removed", removed).Msg("Invalidated store cache")
	return removed
}

// Close waits for background writes and closes the store.
func (m *Manager) Close() error {
	m.Wait()
	return m.store.Close()
}
