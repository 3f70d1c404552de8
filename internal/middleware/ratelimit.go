package middleware

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// IngestRateLimiter throttles sample ingest per device. Each device gets its
// own token bucket; an unidentified device falls back to a per-IP bucket.
type IngestRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewIngestRateLimiter creates a limiter allowing perSecond sustained
// requests with the given burst per device.
func NewIngestRateLimiter(perSecond float64, burst int) *IngestRateLimiter {
	return &IngestRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *IngestRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Handler returns the fiber middleware.
func (l *IngestRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-Device-ID")
		if key == "" {
			key = "ip:" + c.IP()
		}

		if !l.limiterFor(key).Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded for device",
			})
		}
		return c.Next()
	}
}
