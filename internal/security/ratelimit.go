package security

import (
	"errors"
	"sync"
	"time"
)

var ErrRateLimited = errors.New("security: rate limit exceeded")

// Limited event kinds.
const (
	KindMessage   = "message"   // messages from the authorized user
	KindRejection = "rejection" // "private bot" answers to strangers
)

// RateLimitConfig holds per-minute limits. Zero picks the default.
type RateLimitConfig struct {
	MessagesPerMin   int `yaml:"messages_per_min"`
	RejectionsPerMin int `yaml:"rejections_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.MessagesPerMin <= 0 {
		c.MessagesPerMin = 30
	}
	if c.RejectionsPerMin <= 0 {
		c.RejectionsPerMin = 5
	}
	return c
}

// RateLimiter allows at most N events of a kind in any trailing minute.
type RateLimiter struct {
	mu    sync.Mutex
	now   func() time.Time
	kinds map[string]*window
}

// window remembers the times of the last len(ring) accepted events. The
// oldest sits at next; once it is a minute old a slot is free.
type window struct {
	ring []time.Time
	next int
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	return &RateLimiter{
		now: time.Now,
		kinds: map[string]*window{
			KindMessage:   {ring: make([]time.Time, cfg.MessagesPerMin)},
			KindRejection: {ring: make([]time.Time, cfg.RejectionsPerMin)},
		},
	}
}

// Allow records an event of kind, or returns ErrRateLimited. Unknown
// kinds are not limited.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.kinds[kind]
	if !ok {
		return nil
	}
	now := rl.now()
	if oldest := w.ring[w.next]; !oldest.IsZero() && now.Sub(oldest) < time.Minute {
		return ErrRateLimited
	}
	w.ring[w.next] = now
	w.next = (w.next + 1) % len(w.ring)
	return nil
}
