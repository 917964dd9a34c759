// Package middleware provides HTTP middleware for the conversation engine.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// TurnLimiter limits how often a single owner can start streaming turns. Each
// owner gets an independent token bucket; owners is unbounded but entries are
// tiny.
type TurnLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	interval time.Duration
	burst    int
}

// NewTurnLimiter creates a limiter allowing one turn per interval with the
// given burst.
func NewTurnLimiter(interval time.Duration, burst int) *TurnLimiter {
	return &TurnLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
		burst:    burst,
	}
}

func (l *TurnLimiter) limiter(owner string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[owner]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(l.interval), l.burst)
	l.limiters[owner] = limiter
	return limiter
}

// Allow reports whether the owner may start another turn now.
func (l *TurnLimiter) Allow(owner string) bool {
	return l.limiter(owner).Allow()
}

// Middleware rejects requests over the owner's turn budget with 429. ownerFunc
// extracts the owner identity from the request.
func (l *TurnLimiter) Middleware(ownerFunc func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(ownerFunc(c)) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"code":    "RATE_LIMITED",
					"message": "too many streaming turns, slow down",
				})
			}
			return next(c)
		}
	}
}
