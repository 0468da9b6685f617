package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// identityLimiter throttles claim attempts per identity so a looping client
// cannot hammer the slot table. Limiters are created lazily and kept for the
// process lifetime; the identity space of a kiosk is small.
type identityLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newIdentityLimiter(perMinute, burst int) *identityLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 5
	}
	return &identityLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (l *identityLimiter) allow(identity string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[identity]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[identity] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimitClaims guards the claim endpoint keyed by the request identity,
// falling back to the client IP when the body carries none.
func RateLimitClaims(perMinute, burst int) gin.HandlerFunc {
	limiter := newIdentityLimiter(perMinute, burst)
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-Client-Identity"))
		if key == "" {
			key = c.ClientIP()
		}
		if !limiter.allow(key) {
			Error(c, http.StatusTooManyRequests, "too many claim attempts, slow down", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
