// Package ratelimit bounds how often the expensive classifier may be
// invoked, per user and globally, over a sliding window.
//
// The limiter is an explicit, injectable instance constructed once at
// process start. Only classifier-invoking paths consult it; the
// deterministic parser and all read paths bypass it entirely.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// Config holds the limiter's window and caps.
type Config struct {
	// Window is the trailing interval over which requests are counted.
	Window time.Duration
	// PerUserLimit caps classifier calls per user within the window.
	PerUserLimit int
	// GlobalLimit caps classifier calls across all users within the window.
	GlobalLimit int
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Window:       time.Minute,
		PerUserLimit: 4,
		GlobalLimit:  30,
	}
}

// Limiter is a sliding-window rate limiter safe for concurrent use by
// multiple pipeline workers. Per-user state is sharded to keep a hot
// user from serializing every other user's checks.
type Limiter struct {
	now    func() time.Time
	shards [shardCount]*shard
	global struct {
		mu     sync.Mutex
		stamps []time.Time
	}
	cfg Config
}

type shard struct {
	mu    sync.Mutex
	users map[string][]time.Time
}

// New creates a limiter with the given configuration, substituting
// defaults for non-positive values.
func New(cfg Config) *Limiter {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates a limiter with an injectable time source.
func NewWithClock(cfg Config, now func() time.Time) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.PerUserLimit <= 0 {
		cfg.PerUserLimit = def.PerUserLimit
	}
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = def.GlobalLimit
	}

	l := &Limiter{cfg: cfg, now: now}
	for i := range l.shards {
		l.shards[i] = &shard{users: make(map[string][]time.Time)}
	}
	return l
}

// Allow reports whether userID may invoke the classifier now. When
// denied it returns the time until the oldest in-window timestamp ages
// out, suitable for a precise retry hint. The timestamp is recorded
// only when both the per-user and the global cap pass.
func (l *Limiter) Allow(userID string) (bool, time.Duration) {
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	sh := l.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	user := evict(sh.users[userID], cutoff)
	sh.users[userID] = user

	if len(user) >= l.cfg.PerUserLimit {
		return false, l.retryAfter(user[0], now)
	}

	// Lock order is always shard then global.
	l.global.mu.Lock()
	defer l.global.mu.Unlock()

	l.global.stamps = evict(l.global.stamps, cutoff)
	if len(l.global.stamps) >= l.cfg.GlobalLimit {
		return false, l.retryAfter(l.global.stamps[0], now)
	}

	sh.users[userID] = append(user, now)
	l.global.stamps = append(l.global.stamps, now)
	return true, 0
}

// Reset clears all recorded timestamps. Administrative use only.
func (l *Limiter) Reset() {
	for _, sh := range l.shards {
		sh.mu.Lock()
		sh.users = make(map[string][]time.Time)
		sh.mu.Unlock()
	}
	l.global.mu.Lock()
	l.global.stamps = nil
	l.global.mu.Unlock()
}

func (l *Limiter) retryAfter(oldest, now time.Time) time.Duration {
	retry := oldest.Add(l.cfg.Window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return retry
}

func (l *Limiter) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return l.shards[h.Sum32()%shardCount]
}

// evict drops timestamps at or before the cutoff. Slices are kept in
// append order, so the survivors form a suffix.
func evict(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
