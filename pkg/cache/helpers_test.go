package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-cache/pkg/storefront"
)

// testClock is a settable clock in epoch milliseconds.
type testClock struct {
	mu sync.Mutex
	ms int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *testClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms = ms
}

func newTestManager(t *testing.T, store Store) (*Manager, *testClock) {
	t.Helper()
	clock := &testClock{}
	m := NewManager(store, WithClock(clock.Now), WithLogger(zerolog.Nop()))
	t.Cleanup(func() { m.Wait() })
	return m, clock
}

func productPage(page, n int) *storefront.ProductPage {
	products := make([]storefront.MiniProduct, n)
	for i := range products {
		products[i] = storefront.MiniProduct{
			ID:      fmt.Sprintf("p%d-%d", page, i),
			Name:    fmt.Sprintf("Product %d", i),
			Price:   float64(1000 + i),
			InStock: true,
		}
	}
	return &storefront.ProductPage{
		Products:      products,
		Page:          page,
		TotalPages:    3,
		TotalProducts: 55,
		HasNextPage:   page < 3,
	}
}

func reviewPage(page, n int) *storefront.ReviewPage {
	reviews := make([]storefront.Review, n)
	for i := range reviews {
		reviews[i] = storefront.Review{
			ID:         fmt.Sprintf("r%d-%d", page, i),
			AuthorName: "Ada",
			Rating:     5,
			CreatedAt:  int64(i),
		}
	}
	return &storefront.ReviewPage{
		Reviews:      reviews,
		Stats:        storefront.ReviewStats{AverageRating: 4.5, TotalReviews: 30, Distribution: map[int]int{5: 20, 4: 10}},
		Page:         page,
		TotalPages:   2,
		TotalReviews: 30,
		HasNextPage:  page < 2,
	}
}

func testProfile(id string) *storefront.StoreProfile {
	return &storefront.StoreProfile{ID: id, Username: id, Name: "Store " + id, Verified: true, Rating: 4.5}
}

func testCategories(n int) *storefront.CategoryList {
	cats := make([]storefront.StoreCategory, n)
	for i := range cats {
		cats[i] = storefront.StoreCategory{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("Category %d", i)}
	}
	return &storefront.CategoryList{Categories: cats, TotalItems: n}
}

// putRaw stores a hand-built record for key, bypassing the reconciler.
func putRaw(t *testing.T, store Store, kind Kind, key CacheKey, cachedAt int64, payload string) {
	t.Helper()
	meta, err := NewMetadata(key.String(), time.UnixMilli(cachedAt), TTLFor(kind))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}
	data, err := json.Marshal(Record{Kind: kind, Metadata: meta, Payload: json.RawMessage(payload)})
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := store.Put(context.Background(), key.String(), data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

// failingStore simulates an unavailable storage medium.
type failingStore struct {
	err error
}

func (s failingStore) Put(context.Context, string, []byte) error { return s.err }

func (s failingStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, s.err }

func (s failingStore) Delete(context.Context, string) error { return s.err }

func (s failingStore) DeleteIf(context.Context, string, []byte) (bool, error) { return false, s.err }

func (s failingStore) Keys(context.Context, string) ([]string, error) { return nil, s.err }

func (s failingStore) Close() error { return nil }

var errDiskFull = errors.New("database or disk is full")
