package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_rate_limit_hits_total",
		Help: "Total number of 429 responses observed from the storefront API",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_rate_limit_blocks_total",
		Help: "Total number of requests held back while rate limited",
	})
)

// Tracker records rate limit deadlines and gates requests. A nil redis
// client keeps the state in process.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the current state. Without Redis, or when Redis holds
// no deadline, the in-process state is returned.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	t.mu.Lock()
	state := t.local
	t.mu.Unlock()

	if t.redis == nil {
		return &state, nil
	}

	ms, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if errors.Is(err, redis.Nil) {
		return &state, nil
	}
	if err != nil {
		return &state, fmt.Errorf("get blocked until: %w", err)
	}
	if shared := time.UnixMilli(ms); shared.After(state.BlockedUntil) {
		state.BlockedUntil = shared
	}
	return &state, nil
}

// UpdateFromResponse records a 429 response. Other statuses are ignored.
func (t *Tracker) UpdateFromResponse(ctx context.Context, status int, headers http.Header) error {
	if status != http.StatusTooManyRequests {
		return nil
	}
	rateLimitHitsTotal.Inc()

	now := t.now()
	block := ParseRetryAfter(headers.Get("Retry-After"), now)
	if block <= 0 {
		block = DefaultBlock
	}
	block = min(block, MaxBlock)
	until := now.Add(block)

	t.mu.Lock()
	if until.After(t.local.BlockedUntil) {
		t.local.BlockedUntil = until
	}
	t.local.LastUpdate = now
	t.mu.Unlock()

	t.logger.Warn().
		Dur("block", block).
		Time("blocked_until", until).
		Msg("Storefront API rate limit hit - holding requests")

	if t.redis == nil {
		return nil
	}
	// Only move the shared deadline forward.
	if err := t.redis.Eval(ctx, extendScript, []string{RedisKeyBlockedUntil}, until.UnixMilli(), block.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

const extendScript = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 1`

// ShouldAllowRequest reports whether a request may be sent now, and if not
// how long to wait. State lookup failures allow the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration) {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Reading rate limit state failed, allowing request")
	}

	now := t.now()
	if !state.IsBlocked(now) {
		return true, 0
	}

	wait := state.TimeUntilUnblock(now)
	rateLimitBlocksTotal.Inc()
	t.logger.Debug().Dur("wait", wait).Msg("Rate limited - holding request")
	return false, wait
}

// ParseRetryAfter converts a Retry-After value (delta-seconds or HTTP
// date) into a wait relative to now. Unparseable values yield 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return at.Sub(now)
	}
	return 0
}
