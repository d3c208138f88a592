package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Rule allows Limit requests per Window for one key.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) valid() bool {
	return r.Limit > 0 && r.Window > 0
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter decides whether one more request for key fits its rule.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Result, error)
}

var (
	ErrEmptyKey     = errors.New("rate_limit_key_empty")
	ErrInvalidRule  = errors.New("rate_limit_rule_invalid")
	ErrNotAvailable = errors.New("rate_limit_backend_unavailable")
)

// Unlimited allows everything. It backs the limiter when rate limiting is
// disabled.
type Unlimited struct{}

func (Unlimited) Allow(_ context.Context, _ string, rule Rule) (Result, error) {
	return Result{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit}, nil
}
