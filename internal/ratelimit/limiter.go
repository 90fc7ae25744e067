// Package ratelimit provides request rate limiting for the public
// endpoints: a sliding-window per-key limiter and a per-key cooldown.
// State is process-wide with lazy eviction plus a background pruner.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/clock"
)

// PruneInterval is how often the background pruner sweeps idle keys.
const PruneInterval = 60 * time.Second

// Limiter admits or rejects one event for a key within a window.
type Limiter interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) bool
}

// CooldownLimiter enforces a minimum spacing between events per key.
// TakeCooldown returns 0 when the event is admitted, or the remaining
// wait otherwise.
type CooldownLimiter interface {
	TakeCooldown(ctx context.Context, key string, cooldown time.Duration) time.Duration
}

// SlidingWindowLimiter counts events per key inside a moving window.
type SlidingWindowLimiter struct {
	clock  clock.Clock
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewSlidingWindowLimiter creates a limiter. A nil clock uses real time.
func NewSlidingWindowLimiter(clk clock.Clock, logger *zap.Logger) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &SlidingWindowLimiter{
		clock:   clk,
		logger:  logger,
		entries: make(map[string][]time.Time),
	}
}

// Take consumes one slot for key if fewer than limit events happened in
// the trailing window. It reports whether the slot was granted.
func (l *SlidingWindowLimiter) Take(_ context.Context, key string, limit int, window time.Duration) bool {
	now := l.clock.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.entries[key]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		l.entries[key] = kept
		if l.logger != nil {
			l.logger.Debug("rate limit exceeded",
				zap.String("key", key),
				zap.Int("limit", limit),
			)
		}
		return false
	}

	l.entries[key] = append(kept, now)
	return true
}

// StartPruner sweeps idle keys until ctx is canceled.
func (l *SlidingWindowLimiter) StartPruner(ctx context.Context, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.prune(maxAge)
			}
		}
	}()
}

func (l *SlidingWindowLimiter) prune(maxAge time.Duration) {
	cutoff := l.clock.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, events := range l.entries {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Cooldown enforces a minimum spacing between events per key.
type Cooldown struct {
	clock clock.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown creates a Cooldown. A nil clock uses real time.
func NewCooldown(clk clock.Clock) *Cooldown {
	if clk == nil {
		clk = clock.New()
	}
	return &Cooldown{clock: clk, last: make(map[string]time.Time)}
}

// TakeCooldown starts the cooldown for key if it is not already
// cooling. It returns 0 on success or the remaining wait otherwise.
func (c *Cooldown) TakeCooldown(_ context.Context, key string, cooldown time.Duration) time.Duration {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok {
		if remaining := cooldown - now.Sub(last); remaining > 0 {
			return remaining
		}
	}
	c.last[key] = now
	return 0
}

// StartPruner sweeps expired cooldowns until ctx is canceled.
func (c *Cooldown) StartPruner(ctx context.Context, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.prune(maxAge)
			}
		}
	}()
}

func (c *Cooldown) prune(maxAge time.Duration) {
	cutoff := c.clock.Now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, last := range c.last {
		if !last.After(cutoff) {
			delete(c.last, key)
		}
	}
}
