package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-cache/internal/testutil"
	"github.com/Sternrassler/storefront-cache/pkg/cache"
	"github.com/Sternrassler/storefront-cache/pkg/ratelimit"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func setupClient(t *testing.T) (*Client, *testutil.MockStorefront, *cache.Manager) {
	t.Helper()

	mock := testutil.NewMockStorefront()
	t.Cleanup(mock.Close)
	mock.AddStore("omega", testutil.MockStore{Products: 45, Categories: 3, Reviews: 25})
	mock.AddStore("empty", testutil.MockStore{})

	manager := cache.NewManager(cache.NewMemoryStore(), cache.WithLogger(zerolog.Nop()))
	t.Cleanup(func() { manager.Close() })

	cfg := DefaultConfig(manager, mock.URL(), "storefront-cache-test/1.0")
	cfg.Retry = fastRetry()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, mock, manager
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			config: Config{BaseURL: "https://api.example.com/v1", UserAgent: "test/1.0"},
		},
		{
			name:     "missing base url",
			config:   Config{UserAgent: "test/1.0"},
			errorMsg: "base url is required",
		},
		{
			name:     "unsupported scheme",
			config:   Config{BaseURL: "ftp://example.com", UserAgent: "test/1.0"},
			errorMsg: "base url must be http or https",
		},
		{
			name:     "empty user agent",
			config:   Config{BaseURL: "https://api.example.com"},
			errorMsg: "user-agent is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if c.config.PageSize != 20 || c.config.Timeout != 15*time.Second {
					t.Errorf("Defaults not applied: %+v", c.config)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("New() error = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}

func TestClient_ProductsCacheFirst(t *testing.T) {
	c, mock, manager := setupClient(t)
	ctx := context.Background()

	page, err := c.Products(ctx, "omega", 1)
	if err != nil {
		t.Fatalf("Products() error = %v", err)
	}
	if len(page.Products) != 20 || page.TotalPages != 3 || !page.HasNextPage {
		t.Errorf("Products() = %d products, %d pages, next=%v", len(page.Products), page.TotalPages, page.HasNextPage)
	}
	manager.Wait()

	again, err := c.Products(ctx, "omega", 1)
	if err != nil {
		t.Fatalf("second Products() error = %v", err)
	}
	if got := mock.PathCount("/stores/omega/products"); got != 1 {
		t.Errorf("API calls = %d, want 1 (second read served from cache)", got)
	}
	if again.Products[0].ID != page.Products[0].ID {
		t.Errorf("cached page differs: %s vs %s", again.Products[0].ID, page.Products[0].ID)
	}

	if res := manager.ReadProducts(ctx, "omega", 1); !res.OK() {
		t.Errorf("page 1 not cached: %s", res.Status)
	}

	last, err := c.Products(ctx, "omega", 3)
	if err != nil {
		t.Fatalf("Products(page 3) error = %v", err)
	}
	if len(last.Products) != 5 || last.HasNextPage {
		t.Errorf("last page = %d products, next=%v", len(last.Products), last.HasNextPage)
	}
	manager.Wait()
	if res := manager.ReadProducts(ctx, "omega", 3); !res.OK() {
		t.Errorf("page 3 not cached: %s", res.Status)
	}
}

func TestClient_EmptyPageIsNotCached(t *testing.T) {
	c, mock, manager := setupClient(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		page, err := c.Products(ctx, "empty", 1)
		if err != nil {
			t.Fatalf("Products() error = %v", err)
		}
		if len(page.Products) != 0 {
			t.Errorf("Products = %d, want 0", len(page.Products))
		}
	}
	manager.Wait()
	if got := mock.PathCount("/stores/empty/products"); got != 2 {
		t.Errorf("API calls = %d, want 2", got)
	}
	if s := manager.ReadProducts(ctx, "empty", 1).Status; s != cache.StatusNotFound {
		t.Errorf("cache status = %s, want not_found", s)
	}
}

func TestClient_AllKinds(t *testing.T) {
	c, mock, manager := setupClient(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		profile, err := c.StoreProfile(ctx, "omega")
		if err != nil {
			t.Fatalf("StoreProfile() error = %v", err)
		}
		if profile.ID != "omega" || profile.ProductCount != 45 {
			t.Errorf("StoreProfile() = %+v", profile)
		}

		cats, err := c.Categories(ctx, "omega")
		if err != nil {
			t.Fatalf("Categories() error = %v", err)
		}
		if len(cats.Categories) != 3 || cats.TotalItems != 3 {
			t.Errorf("Categories() = %+v", cats)
		}

		reviews, err := c.Reviews(ctx, "omega", 2)
		if err != nil {
			t.Fatalf("Reviews() error = %v", err)
		}
		if len(reviews.Reviews) != 5 || reviews.Page != 2 || reviews.Stats.TotalReviews != 25 {
			t.Errorf("Reviews() = %d reviews, page %d", len(reviews.Reviews), reviews.Page)
		}
		manager.Wait()
	}

	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("API calls = %d, want 3", got)
	}
	if ua := mock.LastRequestHeader.Get("User-Agent"); ua != "storefront-cache-test/1.0" {
		t.Errorf("User-Agent = %q", ua)
	}
}

func TestClient_WriteBackOutlivesCancellation(t *testing.T) {
	tests := []struct {
		name  string
		call  func(ctx context.Context, c *Client) error
		check func(ctx context.Context, m *cache.Manager) cache.Status
	}{
		{
			name: "profile",
			call: func(ctx context.Context, c *Client) error { _, err := c.StoreProfile(ctx, "omega"); return err },
			check: func(ctx context.Context, m *cache.Manager) cache.Status {
				return m.ReadProfile(ctx, "omega").Status
			},
		},
		{
			name: "products",
			call: func(ctx context.Context, c *Client) error { _, err := c.Products(ctx, "omega", 2); return err },
			check: func(ctx context.Context, m *cache.Manager) cache.Status {
				return m.ReadProducts(ctx, "omega", 2).Status
			},
		},
		{
			name: "categories",
			call: func(ctx context.Context, c *Client) error { _, err := c.Categories(ctx, "omega"); return err },
			check: func(ctx context.Context, m *cache.Manager) cache.Status {
				return m.ReadCategories(ctx, "omega").Status
			},
		},
		{
			name: "reviews",
			call: func(ctx context.Context, c *Client) error { _, err := c.Reviews(ctx, "omega", 1); return err },
			check: func(ctx context.Context, m *cache.Manager) cache.Status {
				return m.ReadReviews(ctx, "omega", 1).Status
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, manager := setupClient(t)
			ctx, cancel := context.WithCancel(context.Background())

			if err := tt.call(ctx, c); err != nil {
				t.Fatalf("call error = %v", err)
			}
			cancel()
			manager.Wait()

			if s := tt.check(context.Background(), manager); s != cache.StatusValid {
				t.Errorf("cache status after cancel = %s, want valid", s)
			}
		})
	}
}

func TestClient_InvalidPage(t *testing.T) {
	c, _, _ := setupClient(t)

	if _, err := c.Products(context.Background(), "omega", 0); err == nil {
		t.Error("Products(page 0) should fail")
	}
	if _, err := c.Reviews(context.Background(), "omega", -1); err == nil {
		t.Error("Reviews(page -1) should fail")
	}
}

func TestClient_NotFound(t *testing.T) {
	c, mock, _ := setupClient(t)

	_, err := c.StoreProfile(context.Background(), "nobody")
	if !IsNotFound(err) {
		t.Fatalf("StoreProfile(unknown) error = %v, want 404", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("API calls = %d, want 1 (404 not retried)", got)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	c, mock, _ := setupClient(t)
	mock.SetSequence("/stores/omega",
		testutil.NewServerErrorResponse(),
		testutil.NewRateLimitResponse(0),
		testutil.NewJSONResponse(`{"id":"omega","username":"omega","name":"Omega"}`),
	)

	profile, err := c.StoreProfile(context.Background(), "omega")
	if err != nil {
		t.Fatalf("StoreProfile() error = %v", err)
	}
	if profile.Name != "Omega" {
		t.Errorf("Name = %q, want Omega", profile.Name)
	}
	if got := mock.PathCount("/stores/omega"); got != 3 {
		t.Errorf("API calls = %d, want 3", got)
	}
}

func TestClient_RetryExhausted(t *testing.T) {
	c, mock, manager := setupClient(t)
	mock.SetResponse("/stores/omega/categories", testutil.NewServerErrorResponse())

	_, err := c.Categories(context.Background(), "omega")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Categories() error = %v, want ErrRetryExhausted", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("error does not wrap the last APIError: %v", err)
	}
	if got := mock.PathCount("/stores/omega/categories"); got != 3 {
		t.Errorf("API calls = %d, want 3", got)
	}
	if s := manager.ReadCategories(context.Background(), "omega").Status; s != cache.StatusNotFound {
		t.Errorf("cache status = %s, want not_found", s)
	}
}

func TestClient_DecodeError(t *testing.T) {
	c, mock, _ := setupClient(t)
	mock.SetResponse("/stores/omega", testutil.NewJSONResponse(`{not json`))

	_, err := c.StoreProfile(context.Background(), "omega")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("StoreProfile() error = %v, want decode error", err)
	}
	if got := mock.PathCount("/stores/omega"); got != 1 {
		t.Errorf("API calls = %d, want 1 (decode errors not retried)", got)
	}
}

func TestClient_FetchStore(t *testing.T) {
	c, mock, manager := setupClient(t)
	ctx := context.Background()
	mock.SetResponse("/stores/omega/reviews", testutil.NewServerErrorResponse())

	fetch, err := c.FetchStore(ctx, "omega")
	if err != nil {
		t.Fatalf("FetchStore() error = %v", err)
	}
	if fetch.Profile == nil || fetch.ProductsPage1 == nil || fetch.Categories == nil {
		t.Fatalf("FetchStore() missing kinds: %+v", fetch)
	}
	if fetch.ReviewsPage1 != nil {
		t.Error("ReviewsPage1 should be nil after API failure")
	}

	summary := manager.WriteFromServerFetch(ctx, "omega", fetch)
	if len(summary.Written) != 3 {
		t.Errorf("Written = %v, want 3 kinds", summary.Written)
	}

	if _, err := c.FetchStore(ctx, "nobody"); !IsNotFound(err) {
		t.Errorf("FetchStore(unknown) error = %v, want 404", err)
	}
}

func TestClient_WithoutCache(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.AddStore("omega", testutil.MockStore{Products: 5})

	cfg := DefaultConfig(nil, mock.URL(), "test/1.0")
	cfg.Retry = fastRetry()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Products(context.Background(), "omega", 1); err != nil {
			t.Fatalf("Products() error = %v", err)
		}
	}
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("API calls = %d, want 2", got)
	}
	if c.Cache() != nil {
		t.Error("Cache() should be nil")
	}
}

func TestStorePath(t *testing.T) {
	tests := []struct {
		id   string
		rest []string
		want string
	}{
		{"omega", nil, "/stores/omega"},
		{"omega", []string{"products"}, "/stores/omega/products"},
		{"a/b", []string{"reviews"}, "/stores/a%2Fb/reviews"},
	}
	for _, tt := range tests {
		if got := storePath(tt.id, tt.rest...); got != tt.want {
			t.Errorf("storePath(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestClient_RateLimitHoldsRequests(t *testing.T) {
	c, mock, _ := setupClient(t)
	c.rateLimit = ratelimit.NewTracker(nil, zerolog.Nop())
	mock.SetResponse("/stores/omega", testutil.NewRateLimitResponse(60))

	_, err := c.StoreProfile(context.Background(), "omega")
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("StoreProfile() error = %v, want ErrRetryExhausted", err)
	}
	if got := mock.PathCount("/stores/omega"); got != 1 {
		t.Errorf("API calls = %d, want 1 (later attempts held back)", got)
	}

	_, err = c.Categories(context.Background(), "omega")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassRateLimit || apiErr.StatusCode != 0 {
		t.Errorf("Categories() error = %v, want held-back rate limit error", err)
	}
	if got := mock.PathCount("/stores/omega/categories"); got != 0 {
		t.Errorf("API calls = %d, want 0 while blocked", got)
	}
}
