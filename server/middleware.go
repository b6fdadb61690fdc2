package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/radiantplatform/oauth-core/oauth2"
)

// rateLimiter applies a per-identifier token bucket. Entries idle for thirty
// minutes are dropped on the next sweep.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucketEntry
	perSec    int
	burst     int
	lastSweep time.Time
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const bucketIdleTimeout = 30 * time.Minute

func newRateLimiter(perSec, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*bucketEntry),
		perSec:    perSec,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (rl *rateLimiter) allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > bucketIdleTimeout {
		for id, entry := range rl.buckets {
			if now.Sub(entry.lastAccess) > bucketIdleTimeout {
				delete(rl.buckets, id)
			}
		}
		rl.lastSweep = now
	}

	entry, ok := rl.buckets[identifier]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(rate.Limit(rl.perSec), rl.burst)}
		rl.buckets[identifier] = entry
	}
	entry.lastAccess = now
	return entry.limiter.Allow()
}

// rateLimit guards the token endpoint, keyed by client_id when present and
// remote address otherwise.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := c.FormValue("client_id")
			if identifier == "" {
				identifier = c.RealIP()
			}
			if !s.limiter.allow(identifier) {
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":             string(oauth2.ErrInvalidRequest),
					"error_description": "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}

func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			return next(c)
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Msg("request")
			return err
		}
	}
}
