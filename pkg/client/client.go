// Package client provides the storefront REST API client. Reads consult the
// store data cache first and write fetched pages back into it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/storefront-cache/pkg/cache"
	"github.com/Sternrassler/storefront-cache/pkg/ratelimit"
	"github.com/Sternrassler/storefront-cache/pkg/storefront"
)

// Prometheus metrics for storefront API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_requests_total",
		Help: "Total storefront API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_api_request_duration_seconds",
		Help:    "Storefront API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Endpoint templates, used as metric labels.
const (
	endpointProfile    = "/stores/{id}"
	endpointProducts   = "/stores/{id}/products"
	endpointCategories = "/stores/{id}/categories"
	endpointReviews    = "/stores/{id}/reviews"
)

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 512

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/api/v1".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Cache is consulted before every read and receives fetched pages.
	// A nil Cache disables caching.
	Cache *cache.Manager

	// Timeout per HTTP request.
	Timeout time.Duration

	// PageSize requested for products and reviews.
	PageSize int

	// RateLimit holds requests back after a 429. Nil disables it.
	RateLimit *ratelimit.Tracker

	Retry RetryConfig
}

// DefaultConfig returns a default configuration.
func DefaultConfig(manager *cache.Manager, baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Cache:     manager,
		Timeout:   15 * time.Second,
		PageSize:  storefront.DefaultPageSize,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the storefront API client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	rateLimit  *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a new storefront API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = storefront.DefaultPageSize
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		cache:      cfg.Cache,
		rateLimit:  cfg.RateLimit,
		config:     cfg,
		logger:     log.With().Str("component", "storefront-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the cache manager, or nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// StoreProfile returns the profile of storeID, from cache when valid.
func (c *Client) StoreProfile(ctx context.Context, storeID string) (*storefront.StoreProfile, error) {
	if c.cache != nil {
		entry, err := c.cache.ReadProfile(ctx, storeID).Value()
		if err == nil {
			profile := entry.StoreData
			return &profile, nil
		}
		c.logger.Debug().Err(err).Str("store_id", storeID).Msg("Profile not served from cache")
	}

	profile, err := c.FetchProfile(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.writeBack(ctx, func(ctx context.Context) {
			c.cache.WriteProfile(ctx, storeID, profile)
		})
	}
	return profile, nil
}

// Products returns one page of storeID's products, from cache when valid.
func (c *Client) Products(ctx context.Context, storeID string, page int) (*storefront.ProductPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}
	if c.cache != nil {
		if res := c.cache.ReadProducts(ctx, storeID, page); res.OK() {
			return &storefront.ProductPage{
				Products:      res.Data.Products,
				Page:          res.Data.Page,
				TotalPages:    res.Data.TotalPages,
				TotalProducts: res.Data.TotalProducts,
				HasNextPage:   res.Data.HasNextPage,
			}, nil
		}
	}

	result, err := c.FetchProducts(ctx, storeID, page)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.writeBack(ctx, func(ctx context.Context) {
			c.cache.WriteProductsPage(ctx, storeID, result)
		})
	}
	return result, nil
}

// Categories returns storeID's categories, from cache when valid.
func (c *Client) Categories(ctx context.Context, storeID string) (*storefront.CategoryList, error) {
	if c.cache != nil {
		if res := c.cache.ReadCategories(ctx, storeID); res.OK() {
			return &storefront.CategoryList{
				Categories: res.Data.Categories,
				TotalItems: res.Data.TotalItems,
			}, nil
		}
	}

	result, err := c.FetchCategories(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.writeBack(ctx, func(ctx context.Context) {
			c.cache.WriteCategories(ctx, storeID, result)
		})
	}
	return result, nil
}

// Reviews returns one page of storeID's reviews, from cache when valid.
func (c *Client) Reviews(ctx context.Context, storeID string, page int) (*storefront.ReviewPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1 (got %d)", page)
	}
	if c.cache != nil {
		if res := c.cache.ReadReviews(ctx, storeID, page); res.OK() {
			return &storefront.ReviewPage{
				Reviews:      res.Data.Reviews,
				Stats:        res.Data.Stats,
				Page:         res.Data.Page,
				TotalPages:   res.Data.TotalPages,
				TotalReviews: res.Data.TotalReviews,
				HasNextPage:  res.Data.HasNextPage,
			}, nil
		}
	}

	result, err := c.FetchReviews(ctx, storeID, page)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.writeBack(ctx, func(ctx context.Context) {
			c.cache.WriteReviewsPage(ctx, storeID, result)
		})
	}
	return result, nil
}

// writeBack queues a cache write that finishes after the caller has its
// result, even if ctx is cancelled. Manager.Wait drains queued writes. The
// written value is shared with the caller and must be treated as read-only.
func (c *Client) writeBack(ctx context.Context, write func(ctx context.Context)) {
	c.cache.Go(ctx, write)
}

// FetchStore fetches profile, first products page, categories and first
// reviews page straight from the API, bypassing the cache. The profile is
// required; the other kinds are best effort and left nil on failure.
func (c *Client) FetchStore(ctx context.Context, storeID string) (cache.ServerFetch, error) {
	var fetch cache.ServerFetch

	profile, err := c.FetchProfile(ctx, storeID)
	if err != nil {
		return fetch, err
	}
	fetch.Profile = profile

	if products, err := c.FetchProducts(ctx, storeID, 1); err == nil {
		fetch.ProductsPage1 = products
	} else {
		c.logger.Warn().Err(err).Str("store_id", storeID).Msg("Fetching products for store refresh failed")
	}
	if categories, err := c.FetchCategories(ctx, storeID); err == nil {
		fetch.Categories = categories
	} else {
		c.logger.Warn().Err(err).Str("store_id", storeID).Msg("Fetching categories for store refresh failed")
	}
	if reviews, err := c.FetchReviews(ctx, storeID, 1); err == nil {
		fetch.ReviewsPage1 = reviews
	} else {
		c.logger.Warn().Err(err).Str("store_id", storeID).Msg("Fetching reviews for store refresh failed")
	}

	return fetch, nil
}

// FetchProfile fetches a store profile from the API.
func (c *Client) FetchProfile(ctx context.Context, storeID string) (*storefront.StoreProfile, error) {
	var profile storefront.StoreProfile
	if err := c.getJSON(ctx, endpointProfile, storePath(storeID), nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FetchProducts fetches one page of products from the API.
func (c *Client) FetchProducts(ctx context.Context, storeID string, page int) (*storefront.ProductPage, error) {
	var result storefront.ProductPage
	if err := c.getJSON(ctx, endpointProducts, storePath(storeID, "products"), c.pageQuery(page), &result); err != nil {
		return nil, err
	}
	if result.Page == 0 {
		result.Page = page
	}
	return &result, nil
}

// FetchCategories fetches the category list from the API.
func (c *Client) FetchCategories(ctx context.Context, storeID string) (*storefront.CategoryList, error) {
	var result storefront.CategoryList
	if err := c.getJSON(ctx, endpointCategories, storePath(storeID, "categories"), nil, &result); err != nil {
		return nil, err
	}
	if result.TotalItems == 0 {
		result.TotalItems = len(result.Categories)
	}
	return &result, nil
}

// FetchReviews fetches one page of reviews from the API.
func (c *Client) FetchReviews(ctx context.Context, storeID string, page int) (*storefront.ReviewPage, error) {
	var result storefront.ReviewPage
	if err := c.getJSON(ctx, endpointReviews, storePath(storeID, "reviews"), c.pageQuery(page), &result); err != nil {
		return nil, err
	}
	if result.Page == 0 {
		result.Page = page
	}
	return &result, nil
}

func (c *Client) pageQuery(page int) url.Values {
	return url.Values{
		"page":  []string{strconv.Itoa(page)},
		"limit": []string{strconv.Itoa(c.config.PageSize)},
	}
}

func storePath(storeID string, rest ...string) string {
	parts := append([]string{"stores", url.PathEscape(storeID)}, rest...)
	return "/" + strings.Join(parts, "/")
}

// getJSON performs a GET with retries and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	target := c.baseURL.String() + path
	if query != nil {
		target += "?" + query.Encode()
	}

	var body []byte
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var reqErr error
		body, reqErr = c.do(ctx, endpoint, target)
		return reqErr
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		apiRequestsTotal.WithLabelValues(endpoint, "decode_error").Inc()
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// do executes a single request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, endpoint, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.rateLimit != nil {
		if ok, wait := c.rateLimit.ShouldAllowRequest(ctx); !ok {
			apiRequestsTotal.WithLabelValues(endpoint, "held_back").Inc()
			return nil, &APIError{
				Endpoint:   endpoint,
				ErrorClass: ErrorClassRateLimit,
				Message:    "rate limited, request held back",
				RetryAfter: wait,
			}
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("endpoint", endpoint).Str("url", target).Msg("Executing storefront API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if c.rateLimit != nil {
		if err := c.rateLimit.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit state")
		}
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    strings.TrimSpace(string(msg)),
		}
		if apiErr.ErrorClass == "" {
			apiErr.ErrorClass = ErrorClassClient
		}
		if apiErr.ErrorClass == ErrorClassRateLimit {
			apiErr.RetryAfter = max(ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()), 0)
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("Storefront API request error")
		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}
	return body, nil
}
