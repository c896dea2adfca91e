package server

import (
	"sync"
	"time"
)

// rateLimiter is a per-session token bucket. It holds up to burst tokens
// and earns one back every perToken.
type rateLimiter struct {
	mu       sync.Mutex
	burst    float64
	tokens   float64
	perToken time.Duration
	last     time.Time
	now      func() time.Time
}

// newRateLimiter returns nil when cfg disables limiting. A nil limiter
// allows everything.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	perToken := interval / time.Duration(cfg.Burst)
	if perToken <= 0 {
		perToken = time.Nanosecond
	}

	return &rateLimiter{
		burst:    float64(cfg.Burst),
		tokens:   float64(cfg.Burst),
		perToken: perToken,
		last:     time.Now(),
		now:      time.Now,
	}
}

// allow spends one token, reporting false when the bucket is empty.
func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(rl.now())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

func (rl *rateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.last)
	rl.last = now
	if elapsed <= 0 {
		return
	}
	rl.tokens = min(rl.burst, rl.tokens+float64(elapsed)/float64(rl.perToken))
}
