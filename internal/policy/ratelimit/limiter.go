// Package ratelimit implements a token bucket limiter for per-provider
// request budgets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per provider key. Unknown keys get the
// default budget on first use.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	budgets      map[string]Budget
	defaultRate  rate.Limit
	defaultBurst int
}

// Budget sets the request rate for one provider.
type Budget struct {
	RPS   float64
	Burst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Budgets      map[string]Budget
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		budgets:      cfg.Budgets,
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the provider, respecting the
// context deadline.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	l.mu.Lock()
	limiter, exists := l.limiters[provider]
	if !exists {
		r, burst := l.defaultRate, l.defaultBurst
		if budget, ok := l.budgets[provider]; ok {
			if budget.RPS > 0 {
				r = rate.Limit(budget.RPS)
			}
			if budget.Burst > 0 {
				burst = budget.Burst
			}
		}
		limiter = rate.NewLimiter(r, burst)
		l.limiters[provider] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", provider, err)
	}
	return nil
}
