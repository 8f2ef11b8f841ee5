// Package ratelimit implements a durable fixed-window request counter per client key.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/model"
	"imageclassifier/internal/repository"
)

const (
	DefaultMax    = 100
	DefaultWindow = 15 * time.Minute
)

// Limiter counts requests per key in fixed windows.
type Limiter struct {
	store  repository.RateLimitRepository
	max    int64
	window time.Duration
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter allows max requests per window for each key.
func NewLimiter(store repository.RateLimitRepository, max int64, window time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{store: store, max: max, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the number of requests allowed per window.
func (l *Limiter) Max() int64 { return l.max }

// Increment records one request for key and returns the updated window.
func (l *Limiter) Increment(ctx context.Context, key string) (*model.RateLimitWindow, error) {
	w, err := l.store.Increment(ctx, key, l.now(), l.window)
	if err != nil {
		return nil, errs.Ensure(errs.ErrRateLimitStore, err)
	}
	return w, nil
}

// Get returns the stored window for key, nil if there is none.
func (l *Limiter) Get(ctx context.Context, key string) (*model.RateLimitWindow, error) {
	w, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, errs.Ensure(errs.ErrRateLimitStore, err)
	}
	return w, nil
}

// IsLimited reports whether key has used up its window. A missing, expired or
// unreadable window counts as limited; callers increment before checking.
func (l *Limiter) IsLimited(ctx context.Context, key string) (bool, error) {
	w, err := l.store.Get(ctx, key)
	if errors.Is(err, repository.ErrCorruptWindow) {
		return true, nil
	}
	if err != nil {
		return false, errs.Ensure(errs.ErrRateLimitStore, err)
	}
	return l.limited(w), nil
}

// Allow increments the counter for key and then reports whether the request may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, *model.RateLimitWindow, error) {
	w, err := l.Increment(ctx, key)
	if err != nil {
		return false, nil, err
	}
	return !l.limited(w), w, nil
}

func (l *Limiter) limited(w *model.RateLimitWindow) bool {
	if w == nil || l.now().After(w.Expiry) {
		return true
	}
	return w.Count > l.max-1
}
