package db

import (
	"context"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"
)

type txOptions struct {
	attempts int
	backoff  time.Duration
}

type TxOption func(*txOptions)

// WithAttempts caps how many times a transaction is replayed.
func WithAttempts(n int) TxOption {
	return func(o *txOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) TxOption {
	return func(o *txOptions) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// WithTx runs fn in a transaction and replays it when the store aborts the
// transaction on a serialization failure or deadlock. Any other error is
// returned on the first attempt.
func WithTx(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error, opts ...TxOption) error {
	o := txOptions{attempts: 3, backoff: 20 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}

	var err error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		err = conn.WithContext(ctx).Transaction(fn)
		if err == nil || !IsRetryableTxErr(err) || attempt == o.attempts {
			return err
		}

		wait := o.backoff * time.Duration(attempt)
		if wait > 0 {
			wait += time.Duration(rand.Int64N(int64(wait)))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
