package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alexander-mattos/baileys/config"
	"github.com/alexander-mattos/baileys/internal/domain/whatsappsession/deps"
)

// idleAfter is how long an unused limiter is kept before it is swept
const idleAfter = 10 * time.Minute

var _ deps.CommandLimiter = (*KeyedLimiter)(nil)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key
type KeyedLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewKeyedLimiter creates a limiter allowing perMinute events per key with burst
func NewKeyedLimiter(perMinute, burst int) *KeyedLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}

	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// NewKeyedLimiterFromConfig creates the QR command limiter
func NewKeyedLimiterFromConfig(cfg *config.RateLimitConfig) *KeyedLimiter {
	return NewKeyedLimiter(cfg.CommandsPerMinute, cfg.Burst)
}

// Allow reports whether an event for key may happen now
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func (l *KeyedLimiter) sweep(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > idleAfter {
			delete(l.entries, key)
		}
	}
}
