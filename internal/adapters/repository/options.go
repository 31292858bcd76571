package repository

import "time"

type storeOptions struct {
	now      func() time.Time
	maxConns int32
}

func defaultOptions() storeOptions {
	return storeOptions{now: func() time.Time { return time.Now().UTC() }}
}

// Option applies a configuration option to any Store implementation.
type Option func(*storeOptions)

// WithClock sets the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxConns caps the Postgres pool size. Other backends ignore it.
func WithMaxConns(n int32) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}
