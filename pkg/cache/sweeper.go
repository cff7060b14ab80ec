package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Sweep removes entries that expired at least grace ago, and entries whose
// record cannot be decoded at all. Reads never evict, so without sweeping
// stale entries stay in storage until overwritten or invalidated.
func (m *Manager) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	keys, err := m.store.Keys(ctx, keyNamespace+":")
	if err != nil {
		CacheErrors.WithLabelValues("keys", errorClass(err)).Inc()
		return 0, err
	}

	cutoff := m.now().Add(-grace)
	removed := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		data, ok, err := m.store.Get(ctx, k)
		if err != nil {
			CacheErrors.WithLabelValues("get", errorClass(err)).Inc()
			continue
		}
		if !ok {
			continue
		}

		reason := ""
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			reason = "corrupted"
		} else if rec.Metadata.IsExpired(cutoff) {
			reason = "expired"
		}
		if reason == "" {
			continue
		}

		// A write that landed after Get replaced data; leave it alone.
		deleted, err := m.store.DeleteIf(ctx, k, data)
		if err != nil {
			CacheErrors.WithLabelValues("delete", errorClass(err)).Inc()
			continue
		}
		if !deleted {
			continue
		}
		SweptKeys.WithLabelValues(reason).Inc()
		removed++
	}

	if removed > 0 {
		m.logger.Info().Int("removed", removed).Int("scanned", len(keys)).Msg("Swept stale cache entries")
	}
	return removed, nil
}

// Sweeper periodically runs Manager.Sweep.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	grace    time.Duration
}

// NewSweeper creates a sweeper. An interval <= 0 disables it.
func NewSweeper(manager *Manager, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		interval: interval,
		grace:    grace,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.manager.Sweep(ctx, s.grace); err != nil && ctx.Err() == nil {
				s.manager.logger.Warn().Err(err).Msg("Cache sweep failed")
			}
		}
	}
}
