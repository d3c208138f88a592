package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/seatly/internal/clock"
)

// sweepThreshold is the entry count above which expired windows are pruned
// on the next call.
const sweepThreshold = 10000

type window struct {
	count     int
	expiresAt time.Time
}

// FixedWindow counts requests per key in process memory. Counts reset when
// the window expires. Limits are per process.
type FixedWindow struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

func NewFixedWindow(c clock.Clock) *FixedWindow {
	return &FixedWindow{clock: c, windows: map[string]*window{}}
}

func (f *FixedWindow) Allow(_ context.Context, key string, rule Rule) (Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if !rule.valid() {
		return Result{}, ErrInvalidRule
	}

	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.windows) > sweepThreshold {
		f.sweep(now)
	}

	w, ok := f.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(rule.Window)}
		f.windows[key] = w
	}

	result := Result{Limit: rule.Limit, ResetAt: w.expiresAt}
	if w.count >= rule.Limit {
		result.RetryAfter = w.expiresAt.Sub(now)
		return result, nil
	}

	w.count++
	result.Allowed = true
	result.Remaining = rule.Limit - w.count
	return result, nil
}

func (f *FixedWindow) sweep(now time.Time) {
	for key, w := range f.windows {
		if !now.Before(w.expiresAt) {
			delete(f.windows, key)
		}
	}
}
