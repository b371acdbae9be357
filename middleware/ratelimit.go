package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor is one client IP's token bucket.
type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// RateLimit enforces a per-IP token bucket: r requests per second with
// burst b. Buckets idle for two sweep intervals are evicted so the map
// does not grow with every IP that ever hit the service; sweep comes
// from security.rate_limit_sweep, and a non-positive value falls back
// to five minutes.
func RateLimit(r rate.Limit, b int, sweep time.Duration) gin.HandlerFunc {
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	visitors := &sync.Map{}

	go func() {
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-2 * sweep)
			visitors.Range(func(ip, v interface{}) bool {
				if v.(*visitor).lastSeen.Before(cutoff) {
					visitors.Delete(ip)
				}
				return true
			})
		}
	}()

	return func(c *gin.Context) {
		v, _ := visitors.LoadOrStore(c.ClientIP(), &visitor{bucket: rate.NewLimiter(r, b)})
		vis := v.(*visitor)
		vis.lastSeen = time.Now()
		if !vis.bucket.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
