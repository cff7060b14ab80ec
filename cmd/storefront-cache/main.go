// Command storefront-cache runs an HTTP sidecar that serves store data
// cache-first from the storefront API and exposes cache invalidation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/storefront-cache/pkg/cache"
	"github.com/Sternrassler/storefront-cache/pkg/client"
	"github.com/Sternrassler/storefront-cache/pkg/config"
	"github.com/Sternrassler/storefront-cache/pkg/logging"
	"github.com/Sternrassler/storefront-cache/pkg/metrics"
	"github.com/Sternrassler/storefront-cache/pkg/pagination"
	"github.com/Sternrassler/storefront-cache/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storefront-cache: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "storefront-cache",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	store, redisClient, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	manager := cache.NewManager(store)
	defer manager.Close()

	clientCfg := client.DefaultConfig(manager, cfg.APIBaseURL, cfg.UserAgent)
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.RateLimit = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	apiClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create storefront client: %w", err)
	}

	go cache.NewSweeper(manager, cfg.SweepInterval, cfg.SweepGrace).Run(ctx)

	var prefetcher *pagination.Prefetcher
	if cfg.PrefetchConcurrency > 0 {
		prefetchCfg := pagination.DefaultConfig()
		prefetchCfg.MaxConcurrency = cfg.PrefetchConcurrency
		prefetchCfg.Timeout = cfg.HTTPTimeout
		prefetcher = pagination.NewPrefetcher(prefetchCfg)
	}
	background := &backgroundPrefetch{client: apiClient, prefetcher: prefetcher}
	defer background.Wait()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(store, manager, apiClient, background),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.Backend).
			Str("api_url", cfg.APIBaseURL).
			Msg("Starting storefront cache server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore opens the cache store backend selected by cfg. The Redis
// client is returned for sharing rate limit state and is nil for other
// backends.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, *redis.Client, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := cache.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.BackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		return cache.NewRedisStore(redisClient, cfg.RedisRetention), redisClient, nil
	case config.BackendMemory:
		return cache.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// backgroundPrefetch runs listing prefetches detached from request
// lifetimes. A nil prefetcher disables it.
type backgroundPrefetch struct {
	client     *client.Client
	prefetcher *pagination.Prefetcher
	wg         sync.WaitGroup
}

func (b *backgroundPrefetch) Start(ctx context.Context, storeID string) bool {
	if b == nil || b.prefetcher == nil {
		return false
	}
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.prefetcher.PrefetchStore(ctx, storeID, b.client)
	}()
	return true
}

func (b *backgroundPrefetch) Wait() {
	if b != nil {
		b.wg.Wait()
	}
}

func newMux(store cache.Store, manager *cache.Manager, apiClient *client.Client, background *backgroundPrefetch) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(store))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /stores/{id}", profileHandler(apiClient))
	mux.HandleFunc("GET /stores/{id}/products", productsHandler(apiClient))
	mux.HandleFunc("GET /stores/{id}/categories", categoriesHandler(apiClient))
	mux.HandleFunc("GET /stores/{id}/reviews", reviewsHandler(apiClient))
	mux.HandleFunc("POST /stores/{id}/refresh", refreshHandler(apiClient, manager, background))
	mux.HandleFunc("DELETE /stores/{id}/cache", invalidateHandler(manager))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyProbeKey is read, never written, to check that the store answers.
const readyProbeKey = "storefront:ready-probe"

func readyHandler(store cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, _, err := store.Get(ctx, readyProbeKey); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func profileHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := apiClient.StoreProfile(r.Context(), r.PathValue("id"))
		respond(w, profile, err)
	}
}

func productsHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageParam(w, r)
		if !ok {
			return
		}
		products, err := apiClient.Products(r.Context(), r.PathValue("id"), page)
		respond(w, products, err)
	}
}

func categoriesHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := apiClient.Categories(r.Context(), r.PathValue("id"))
		respond(w, categories, err)
	}
}

func reviewsHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageParam(w, r)
		if !ok {
			return
		}
		reviews, err := apiClient.Reviews(r.Context(), r.PathValue("id"), page)
		respond(w, reviews, err)
	}
}

// refreshResponse reports a refresh. Kind lists are only filled when the
// caller waited for the writes.
type refreshResponse struct {
	StoreID     string       `json:"storeId"`
	Queued      bool         `json:"queued"`
	Written     []cache.Kind `json:"written,omitempty"`
	Skipped     []cache.Kind `json:"skipped,omitempty"`
	Failed      []cache.Kind `json:"failed,omitempty"`
	Prefetching bool         `json:"prefetching"`
}

// refreshHandler fetches the store and reconciles it into the cache. Writes
// run in the background and the handler answers 202; with ?wait=true it
// answers 200 with the write summary. Either way the writes survive the
// caller disconnecting.
func refreshHandler(apiClient *client.Client, manager *cache.Manager, background *backgroundPrefetch) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.PathValue("id")

		fetch, err := apiClient.FetchStore(r.Context(), storeID)
		if err != nil {
			respond(w, nil, err)
			return
		}

		if r.URL.Query().Get("wait") != "true" {
			manager.WriteFromServerFetchAsync(r.Context(), storeID, fetch)
			writeJSON(w, http.StatusAccepted, refreshResponse{
				StoreID:     storeID,
				Queued:      true,
				Prefetching: background.Start(r.Context(), storeID),
			})
			return
		}

		summary := manager.WriteFromServerFetch(context.WithoutCancel(r.Context()), storeID, fetch)
		writeJSON(w, http.StatusOK, refreshResponse{
			StoreID:     storeID,
			Written:     summary.Written,
			Skipped:     summary.Skipped,
			Failed:      summary.Failed,
			Prefetching: background.Start(r.Context(), storeID),
		})
	}
}

func invalidateHandler(manager *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID := r.PathValue("id")
		removed := manager.InvalidateStore(r.Context(), storeID)
		writeJSON(w, http.StatusOK, map[string]any{"storeId": storeID, "removed": removed})
	}
}

// pageParam parses the optional page query parameter, defaulting to 1.
func pageParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		http.Error(w, fmt.Sprintf("invalid page %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return page, true
}

func respond(w http.ResponseWriter, v any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}

	var apiErr *client.APIError
	switch {
	case client.IsNotFound(err):
		http.Error(w, "store not found", http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, client.ErrContextCancelled):
		// Client went away; nothing to answer.
	case errors.As(err, &apiErr) || errors.Is(err, client.ErrRetryExhausted):
		log.Warn().Err(err).Msg("Storefront API request failed")
		http.Error(w, "storefront API request failed", http.StatusBadGateway)
	default:
		log.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
