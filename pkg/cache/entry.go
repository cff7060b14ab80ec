package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/storefront-cache/pkg/storefront"
)

// Metadata describes the lifetime of a stored entry. All times are epoch
// milliseconds and ExpiresAt always equals Timestamp + TTL.
type Metadata struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	TTL       int64  `json:"ttl"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewMetadata builds metadata for key cached at now with the given ttl.
func NewMetadata(key string, now time.Time, ttl time.Duration) (Metadata, error) {
	if ttl <= 0 {
		return Metadata{}, fmt.Errorf("ttl must be positive (got %v)", ttl)
	}
	ts := now.UnixMilli()
	return Metadata{
		Key:       key,
		Timestamp: ts,
		TTL:       ttl.Milliseconds(),
		ExpiresAt: ts + ttl.Milliseconds(),
	}, nil
}

// IsExpired reports whether the entry is stale at now.
func (m Metadata) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= m.ExpiresAt
}

// Remaining returns the time until expiration, or 0 if already expired.
func (m Metadata) Remaining(now time.Time) time.Duration {
	ms := m.ExpiresAt - now.UnixMilli()
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Record is the persisted form of every entry: the kind tag and lifetime
// next to the kind-specific payload.
type Record struct {
	Kind     Kind            `json:"kind"`
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// Entry is implemented by the typed cached entries.
type Entry interface {
	// CacheKind returns the kind tag the entry is stored under.
	CacheKind() Kind

	// check verifies the decoded entry has the shape expected for key.
	check(key CacheKey) error

	// lifetime returns the cachedAt and expiresAt stamps carried in the payload.
	lifetime() (cachedAt, expiresAt int64)
}

var errShape = errors.New("unexpected entry shape")

// CachedStoreProfile is the cached profile of one store.
type CachedStoreProfile struct {
	StoreData storefront.StoreProfile `json:"storeData"`
	CachedAt  int64                   `json:"cachedAt"`
	ExpiresAt int64                   `json:"expiresAt"`
}

// CacheKind implements Entry.
func (*CachedStoreProfile) CacheKind() Kind { return KindProfile }

func (e *CachedStoreProfile) lifetime() (int64, int64) { return e.CachedAt, e.ExpiresAt }

func (e *CachedStoreProfile) check(key CacheKey) error {
	if err := checkLifetime(KindProfile, e.CachedAt, e.ExpiresAt); err != nil {
		return err
	}
	if e.StoreData.ID == "" && e.StoreData.Username == "" {
		return fmt.Errorf("%w: profile without id or username", errShape)
	}
	return nil
}

// CachedStoreProducts is one cached page of a store's products.
type CachedStoreProducts struct {
	StoreID       string                   `json:"storeId"`
	Page          int                      `json:"page"`
	Products      []storefront.MiniProduct `json:"products"`
	TotalPages    int                      `json:"totalPages"`
	TotalProducts int                      `json:"totalProducts"`
	HasNextPage   bool                     `json:"hasNextPage"`
	CachedAt      int64                    `json:"cachedAt"`
	ExpiresAt     int64                    `json:"expiresAt"`
}

// CacheKind implements Entry.
func (*CachedStoreProducts) CacheKind() Kind { return KindProducts }

func (e *CachedStoreProducts) lifetime() (int64, int64) { return e.CachedAt, e.ExpiresAt }

func (e *CachedStoreProducts) check(key CacheKey) error {
	if err := checkLifetime(KindProducts, e.CachedAt, e.ExpiresAt); err != nil {
		return err
	}
	if err := checkIdentity(key, e.StoreID, e.Page); err != nil {
		return err
	}
	if e.Products == nil {
		return fmt.Errorf("%w: missing products", errShape)
	}
	return nil
}

// CachedStoreCategories is the cached category list of one store.
type CachedStoreCategories struct {
	StoreID    string                     `json:"storeId"`
	Categories []storefront.StoreCategory `json:"categories"`
	TotalItems int                        `json:"totalItems"`
	CachedAt   int64                      `json:"cachedAt"`
	ExpiresAt  int64                      `json:"expiresAt"`
}

// CacheKind implements Entry.
func (*CachedStoreCategories) CacheKind() Kind { return KindCategories }

func (e *CachedStoreCategories) lifetime() (int64, int64) { return e.CachedAt, e.ExpiresAt }

func (e *CachedStoreCategories) check(key CacheKey) error {
	if err := checkLifetime(KindCategories, e.CachedAt, e.ExpiresAt); err != nil {
		return err
	}
	if err := checkIdentity(key, e.StoreID, 0); err != nil {
		return err
	}
	if e.Categories == nil {
		return fmt.Errorf("%w: missing categories", errShape)
	}
	return nil
}

// CachedStoreReviews is one cached page of a store's reviews.
type CachedStoreReviews struct {
	StoreID      string                 `json:"storeId"`
	Page         int                    `json:"page"`
	Reviews      []storefront.Review    `json:"reviews"`
	Stats        storefront.ReviewStats `json:"stats"`
	TotalPages   int                    `json:"totalPages"`
	TotalReviews int                    `json:"totalReviews"`
	HasNextPage  bool                   `json:"hasNextPage"`
	CachedAt     int64                  `json:"cachedAt"`
	ExpiresAt    int64                  `json:"expiresAt"`
}

// CacheKind implements Entry.
func (*CachedStoreReviews) CacheKind() Kind { return KindReviews }

func (e *CachedStoreReviews) lifetime() (int64, int64) { return e.CachedAt, e.ExpiresAt }

func (e *CachedStoreReviews) check(key CacheKey) error {
	if err := checkLifetime(KindReviews, e.CachedAt, e.ExpiresAt); err != nil {
		return err
	}
	if err := checkIdentity(key, e.StoreID, e.Page); err != nil {
		return err
	}
	if e.Reviews == nil {
		return fmt.Errorf("%w: missing reviews", errShape)
	}
	return nil
}

func checkLifetime(kind Kind, cachedAt, expiresAt int64) error {
	if expiresAt-cachedAt != TTLFor(kind).Milliseconds() {
		return fmt.Errorf("%w: lifetime %dms does not match %s ttl", errShape, expiresAt-cachedAt, kind)
	}
	return nil
}

func checkIdentity(key CacheKey, storeID string, page int) error {
	if storeID != key.StoreID {
		return fmt.Errorf("%w: store %q stored under key for %q", errShape, storeID, key.StoreID)
	}
	if key.Kind.Paged() && page != key.Page {
		return fmt.Errorf("%w: page %d stored under key for page %d", errShape, page, key.Page)
	}
	return nil
}
