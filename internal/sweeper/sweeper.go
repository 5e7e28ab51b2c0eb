// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package sweeper periodically deletes sessions past their idle
// expiration. Sweeping is maintenance, not correctness: session validation
// rejects expired sessions whether or not they were swept.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/observability"
)

// Store deletes expired sessions. The postgres adapter implements it.
type Store interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs the periodic sweep loop.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithMetrics records sweep outcomes to the given metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a Sweeper that sweeps at the given interval.
func New(store Store, interval time.Duration, logger *slog.Logger, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("store is required")
	}
	if interval <= 0 {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("interval must be positive")
	}
	if logger == nil {
		return nil, oops.Code("SWEEPER_INVALID").Errorf("logger is required")
	}
	s := &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps immediately, then on every interval tick until the context is
// canceled. Individual sweep failures are logged and counted, never fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err() //nolint:wrapcheck // cancellation is the normal exit
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs one pass with exponential backoff on transient failures.
func (s *Sweeper) sweep(ctx context.Context) {
	var deleted int64

	backoff := retry.WithMaxRetries(3, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := s.store.DeleteExpiredSessions(ctx, s.now())
		if err != nil {
			return retry.RetryableError(err)
		}
		deleted = n
		return nil
	})
	if err != nil {
		logging.LogError(s.logger, "sweep failed", err)
		if s.metrics != nil {
			s.metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		}
		return
	}

	s.logger.Info("sweep completed", "deleted", deleted)
	if s.metrics != nil {
		s.metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
		s.metrics.SessionsSweptTotal.Add(float64(deleted))
	}
}
