package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const CodeRateLimited = "rate_limited"

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LimiterPool hands out one token bucket per key and forgets keys idle longer than ttl.
type LimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	lastGC   time.Time
}

func NewLimiterPool(perSecond float64, burst int) *LimiterPool {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &LimiterPool{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
}

func (p *LimiterPool) Get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastGC) > p.ttl {
		cutoff := now.Add(-p.ttl)
		for k, entry := range p.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(p.limiters, k)
			}
		}
		p.lastGC = now
	}

	if entry, ok := p.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := rate.NewLimiter(p.limit, p.burst)
	p.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (p *LimiterPool) Allow(key string) bool {
	return p.Get(key).Allow()
}

// RateLimit throttles per authenticated user, falling back to the client IP.
func RateLimit(pool *LimiterPool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, _ := c.Locals("user_id").(string)
		if key == "" {
			key = "ip:" + c.IP()
		}
		if !pool.Allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     "Too many requests",
				"code":      CodeRateLimited,
				"retryable": true,
			})
		}
		return c.Next()
	}
}
