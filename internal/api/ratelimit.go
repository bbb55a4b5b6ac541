package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool hands out one limiter per endpoint, so every worker and
// session calling the same model draws from one budget
type RateLimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rpm      map[string]int
	logger   *slog.Logger
}

// NewRateLimiterPool creates an empty pool
func NewRateLimiterPool(logger *slog.Logger) *RateLimiterPool {
	return &RateLimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rpm:      make(map[string]int),
		logger:   logger,
	}
}

// Limiter returns the limiter for key, creating it on first use.
// rpm <= 0 means unlimited. The first rpm seen for a key wins.
func (p *RateLimiterPool) Limiter(key string, rpm int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[key]; ok {
		if p.rpm[key] != rpm {
			p.logger.Warn("Rate limiter already exists with a different rate, keeping it",
				"endpoint", key,
				"existing_rpm", p.rpm[key],
				"requested_rpm", rpm)
		}
		return l
	}

	var l *rate.Limiter
	if rpm <= 0 {
		l = rate.NewLimiter(rate.Inf, 1)
	} else {
		l = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burstFor(rpm))
	}
	p.limiters[key] = l
	p.rpm[key] = rpm

	p.logger.Debug("Created rate limiter", "endpoint", key, "rpm", rpm, "burst", l.Burst())
	return l
}

// Wait blocks until key may send another request or ctx is done
func (p *RateLimiterPool) Wait(ctx context.Context, key string, rpm int) error {
	return p.Limiter(key, rpm).Wait(ctx)
}

// burstFor allows a fifth of a minute's budget at once, and never less than 5
func burstFor(rpm int) int {
	return max(5, rpm/5)
}
