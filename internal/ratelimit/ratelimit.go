// Package ratelimit paces LLM calls: a requests-per-minute limit plus a
// per-run request budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/aicybermon/internal/logger"
)

// ErrBudgetExhausted is returned once the per-run request budget is spent.
var ErrBudgetExhausted = errors.New("llm request budget exhausted")

// AIRateLimiter manages rate limiting for the enrichment provider.
type AIRateLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	used        int
	maxRequests int
	waited      time.Duration
	cacheHits   int
	cacheMisses int
}

// NewAIRateLimiter allows maxRPM requests per minute (0 = unlimited) and
// maxRequests in total (0 = unlimited).
func NewAIRateLimiter(maxRPM, maxRequests int) *AIRateLimiter {
	limit := rate.Inf
	burst := 1
	if maxRPM > 0 {
		limit = rate.Every(time.Minute / time.Duration(maxRPM))
	}
	return &AIRateLimiter{
		limiter:     rate.NewLimiter(limit, burst),
		maxRequests: maxRequests,
	}
}

// Wait reserves one request: it fails fast when the budget is gone and
// otherwise blocks until the per-minute limit allows the call.
func (rl *AIRateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	if rl.maxRequests > 0 && rl.used >= rl.maxRequests {
		rl.mu.Unlock()
		return fmt.Errorf("%w (%d/%d)", ErrBudgetExhausted, rl.used, rl.maxRequests)
	}
	rl.used++
	rl.cacheMisses++
	rl.mu.Unlock()

	start := time.Now()
	if err := rl.limiter.Wait(ctx); err != nil {
		rl.mu.Lock()
		rl.used--
		rl.cacheMisses--
		rl.mu.Unlock()
		return err
	}
	if d := time.Since(start); d > 0 {
		rl.mu.Lock()
		rl.waited += d
		rl.mu.Unlock()
	}

	logger.Debug("LLM request slot acquired", "used", rl.Used(), "limit", rl.maxRequests)
	return nil
}

// Remaining returns how many requests are left; -1 when unlimited.
func (rl *AIRateLimiter) Remaining() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.maxRequests <= 0 {
		return -1
	}
	return rl.maxRequests - rl.used
}

func (rl *AIRateLimiter) Used() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.used
}

// RecordCacheHit records an answer served without calling the provider.
func (rl *AIRateLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheHits++
}

// GetCacheHitRate returns cache hit rate percentage
func (rl *AIRateLimiter) GetCacheHitRate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.hitRate()
}

func (rl *AIRateLimiter) hitRate() float64 {
	total := rl.cacheHits + rl.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(rl.cacheHits) / float64(total) * 100
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"requests_used":  rl.used,
		"requests_limit": rl.maxRequests,
		"waited_ms":      rl.waited.Milliseconds(),
		"cache_hits":     rl.cacheHits,
		"cache_misses":   rl.cacheMisses,
		"cache_hit_rate": rl.hitRate(),
	}
}

// PrintStats logs current statistics
func (rl *AIRateLimiter) PrintStats() {
	logger.Info("LLM rate limiter statistics", "stats", rl.GetStats())
}
