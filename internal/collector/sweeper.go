package collector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"data-exporter/internal/metrics"
	"data-exporter/internal/store"
)

// Sweeper periodically removes samples that were not refreshed within ttl.
type Sweeper struct {
	store    *store.Store
	ttl      time.Duration
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type SweeperOption func(*Sweeper)

// WithSweepClock overrides the clock samples are aged against.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func NewSweeper(st *store.Store, ttl, interval time.Duration, m *metrics.Metrics, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    st,
		ttl:      ttl,
		interval: interval,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Starting expiry sweeper", zap.Duration("ttl", s.ttl), zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep runs one expiry pass and returns the number of removed samples.
func (s *Sweeper) Sweep() int {
	removed := s.store.SweepExpired(s.ttl, s.now())
	if removed > 0 {
		s.metrics.ExpiredSeries.Add(float64(removed))
		s.logger.Info("Cleaned up expired metrics", zap.Int("count", removed))
	}
	return removed
}
