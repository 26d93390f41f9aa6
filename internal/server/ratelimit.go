package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/campusduka/storefront/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	rateTierGeneral      = "general"
	rateTierStrict       = "strict"
	visitorIdleTimeout   = 3 * time.Minute
	visitorSweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per identity and tier.
type RateLimiter struct {
	mu        sync.Mutex
	tiers     map[string]config.RateLimit
	visitors  map[string]*visitor
	lastSweep time.Time
	clock     func() time.Time
}

// NewRateLimiter builds a limiter with the general and strict tiers.
func NewRateLimiter(general, strict config.RateLimit, clock func() time.Time) *RateLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RateLimiter{
		tiers: map[string]config.RateLimit{
			rateTierGeneral: general,
			rateTierStrict:  strict,
		},
		visitors:  make(map[string]*visitor),
		lastSweep: clock(),
		clock:     clock,
	}
}

// Allow spends one token from the identity's bucket for the tier.
func (l *RateLimiter) Allow(identity, tier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Sub(l.lastSweep) >= visitorSweepInterval {
		l.sweepLocked(now)
	}

	key := identity + ":" + tier
	v, exists := l.visitors[key]
	if !exists {
		limits := l.tiers[tier]
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTimeout {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

func (l *RateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// middleware prefers the authenticated user id and falls back to the client IP.
func (l *RateLimiter) middleware(tier string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := "ip:" + c.ClientIP()
		if userID := c.GetString(userIDContextKey); userID != "" {
			identity = "user:" + userID
		}
		if !l.Allow(identity, tier) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "message": "Too many requests"})
			return
		}
		c.Next()
	}
}
