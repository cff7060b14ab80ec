// Package testutil provides a mock storefront REST API for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/storefront-cache/pkg/storefront"
)

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockStore sizes the generated catalogue of one store.
type MockStore struct {
	Products   int
	Categories int
	Reviews    int
}

// MockStorefront is a configurable mock of the storefront API. Unless a
// path has a custom handler it serves generated data for registered stores
// and 404 for unknown ones.
type MockStorefront struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	stores   map[string]MockStore
	counts   map[string]int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockStorefront starts a mock storefront API server.
func NewMockStorefront() *MockStorefront {
	mock := &MockStorefront{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		stores:   make(map[string]MockStore),
		counts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.counts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockStorefront) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStorefront) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockStorefront) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.counts = make(map[string]int)
	m.LastRequestHeader = nil
}

// AddStore registers a store served by the default handler.
func (m *MockStorefront) AddStore(id string, store MockStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[id] = store
}

// SetHandler sets a custom handler for a specific path.
func (m *MockStorefront) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockStorefront) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence answers successive requests to path with responses in order,
// repeating the last one once exhausted.
func (m *MockStorefront) SetSequence(path string, responses ...MockResponse) {
	var mu sync.Mutex
	i := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(i, len(responses)-1)]
		i++
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockStorefront) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// PathCount returns the number of requests made to path.
func (m *MockStorefront) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[path]
}

// defaultHandler serves /stores/{id}[/products|/categories|/reviews].
func (m *MockStorefront) defaultHandler(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "stores" {
		http.NotFound(w, r)
		return
	}

	id := parts[1]
	m.mu.RLock()
	store, ok := m.stores[id]
	m.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	switch {
	case len(parts) == 2:
		writeJSON(w, http.StatusOK, Profile(id, store))
	case parts[2] == "products":
		writeJSON(w, http.StatusOK, ProductsPage(id, store.Products, page))
	case parts[2] == "categories":
		writeJSON(w, http.StatusOK, Categories(store.Categories))
	case parts[2] == "reviews":
		writeJSON(w, http.StatusOK, ReviewsPage(id, store.Reviews, page))
	default:
		http.NotFound(w, r)
	}
}

// Profile builds the generated profile of a mock store.
func Profile(id string, store MockStore) storefront.StoreProfile {
	return storefront.StoreProfile{
		ID:           id,
		Username:     id,
		Name:         "Store " + id,
		Verified:     true,
		Rating:       4.5,
		ReviewCount:  store.Reviews,
		ProductCount: store.Products,
	}
}

// ProductsPage builds one generated page of a catalogue of total products.
func ProductsPage(storeID string, total, page int) storefront.ProductPage {
	start, end, pages := pageBounds(total, page)
	products := make([]storefront.MiniProduct, 0, end-start)
	for i := start; i < end; i++ {
		products = append(products, storefront.MiniProduct{
			ID:      fmt.Sprintf("%s-p%d", storeID, i),
			Name:    fmt.Sprintf("Product %d", i),
			Price:   float64(100 + i),
			InStock: i%7 != 0,
		})
	}
	return storefront.ProductPage{
		Products:      products,
		Page:          page,
		TotalPages:    pages,
		TotalProducts: total,
		HasNextPage:   page < pages,
	}
}

// Categories builds a generated category list.
func Categories(n int) storefront.CategoryList {
	cats := make([]storefront.StoreCategory, n)
	for i := range cats {
		cats[i] = storefront.StoreCategory{ID: fmt.Sprintf("c%d", i), Name: fmt.Sprintf("Category %d", i), ProductCount: i}
	}
	return storefront.CategoryList{Categories: cats, TotalItems: n}
}

// ReviewsPage builds one generated page of total reviews.
func ReviewsPage(storeID string, total, page int) storefront.ReviewPage {
	start, end, pages := pageBounds(total, page)
	reviews := make([]storefront.Review, 0, end-start)
	for i := start; i < end; i++ {
		reviews = append(reviews, storefront.Review{
			ID:         fmt.Sprintf("%s-r%d", storeID, i),
			AuthorName: "Customer",
			Rating:     5 - i%3,
			CreatedAt:  int64(1_700_000_000_000 + i),
		})
	}
	return storefront.ReviewPage{
		Reviews:      reviews,
		Stats:        storefront.ReviewStats{AverageRating: 4.2, TotalReviews: total},
		Page:         page,
		TotalPages:   pages,
		TotalReviews: total,
		HasNextPage:  page < pages,
	}
}

func pageBounds(total, page int) (start, end, pages int) {
	size := storefront.DefaultPageSize
	pages = (total + size - 1) / size
	start = min((page-1)*size, total)
	end = min(start+size, total)
	return start, end, pages
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// NewJSONResponse creates a 200 OK response with body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
