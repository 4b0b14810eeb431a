package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"golang.org/x/time/rate"
)

// Budget is a named per-IP token bucket. Every budget keeps its own
// buckets, so a client that exhausts the verify budget can still read
// proofs.
type Budget struct {
	Name  string
	RPS   float64
	Burst int
}

// budgetFor returns a Budget allowing rps with a burst of twice that,
// never less than one request.
func budgetFor(name string, rps float64) Budget {
	burst := int(math.Ceil(rps * 2))
	if burst < 1 {
		burst = 1
	}
	return Budget{Name: name, RPS: rps, Burst: burst}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware that enforces b per client IP.
// Rejections carry a Retry-After of one token interval and are counted per
// budget. Entries idle for 10 minutes are dropped every 5 minutes until ctx
// is done.
func RateLimiter(ctx context.Context, b Budget) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*ipLimiter)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, l := range limiters {
					if time.Since(l.lastSeen) > 10*time.Minute {
						delete(limiters, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	retryAfter := "1"
	if b.RPS > 0 && b.RPS < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / b.RPS)))
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(b.RPS), b.Burst)}
			limiters[ip] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			metrics.RecordRateLimited(b.Name)
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
