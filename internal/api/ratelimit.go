package api

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ──────────────────────────────────────────────────────────────────────
// Per-IP Token Bucket Rate Limiter
//
// Each IP gets its own bucket with a configurable capacity and refill rate.
// When the bucket holds fewer tokens than the request costs, the request
// receives HTTP 429 with a Retry-After header indicating when to try again.
//
// /analyze/:txid runs the branch-and-bound search synchronously on the
// request goroutine, so a caller asking for a long timeoutPerSolve or a
// high maxSolutions ties up far more server time than a plain health
// check. WeightedMiddleware lets the handler charge the bucket in
// proportion to the solve budget it's about to spend instead of a flat
// one token per call, so a handful of expensive requests can still
// exhaust the bucket as fast as many cheap ones would.
//
// A background goroutine cleans up buckets that have been idle for more than
// cleanupIdleDuration to prevent unbounded memory growth from transient IPs.
// ──────────────────────────────────────────────────────────────────────

const cleanupIdleDuration = 10 * time.Minute

type ipBucket struct {
	tokens   float64
	lastSeen time.Time
	mu       sync.Mutex
}

// RateLimiter holds per-IP state.
type RateLimiter struct {
	ratePerMin int
	burst      int
	rate       float64 // tokens added per second
	mu         sync.Mutex
	buckets    map[string]*ipBucket
}

// NewRateLimiter creates a rate limiter allowing `ratePerMin` requests per
// minute per IP, with a burst capacity of `burst` requests.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	rl := &RateLimiter{
		ratePerMin: ratePerMin,
		burst:      burst,
		rate:       float64(ratePerMin) / 60.0,
		buckets:    make(map[string]*ipBucket),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) allow(ip string, cost float64) (bool, time.Duration) {
	rl.mu.Lock()
	bucket, ok := rl.buckets[ip]
	if !ok {
		bucket = &ipBucket{tokens: float64(rl.burst)}
		rl.buckets[ip] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	// Refill tokens based on elapsed time since last request.
	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastSeen = now

	if bucket.tokens >= cost {
		bucket.tokens -= cost
		return true, 0
	}

	// Calculate how long until enough tokens accumulate for this cost.
	retryAfter := time.Duration((cost-bucket.tokens)/rl.rate*1000) * time.Millisecond
	return false, retryAfter
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	c.Header("Retry-After", retryAfter.String())
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      "Rate limit exceeded",
		"retryAfter": retryAfter.String(),
		"limit":      fmt.Sprintf("%d requests/minute per IP (burst %d)", rl.ratePerMin, rl.burst),
	})
	c.Abort()
}

// Middleware returns a Gin handler that charges one token per request.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.allow(c.ClientIP(), 1)
		if !allowed {
			rl.reject(c, retryAfter)
			return
		}
		c.Next()
	}
}

// WeightedMiddleware charges the bucket weight(c) tokens instead of a
// flat 1, so solve() calls with a larger requested time budget consume
// proportionally more of the caller's allowance. weight is clamped to
// at least 1 token so a misconfigured weight func can't grant free
// requests.
func (rl *RateLimiter) WeightedMiddleware(weight func(*gin.Context) float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		cost := weight(c)
		if cost < 1 {
			cost = 1
		}
		allowed, retryAfter := rl.allow(c.ClientIP(), cost)
		if !allowed {
			rl.reject(c, retryAfter)
			return
		}
		c.Next()
	}
}

// analyzeCost weighs an /analyze/:txid request by its requested
// timeoutPerSolve budget in seconds: a caller asking for more server
// wall-clock pays more of its rate-limit allowance up front, one token
// per defaultAnalyzeCostDivisor seconds requested.
func analyzeCost(c *gin.Context) float64 {
	const defaultAnalyzeCostDivisor = 60.0 // 1 token per minute of requested solve budget
	timeout, err := strconv.Atoi(c.DefaultQuery("timeoutPerSolve", "60"))
	if err != nil || timeout <= 0 {
		return 1
	}
	return float64(timeout) / defaultAnalyzeCostDivisor
}

// cleanupLoop removes stale IP buckets every cleanupIdleDuration.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
