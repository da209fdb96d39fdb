package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"data-exporter/internal/metrics"
	"data-exporter/internal/source"
	"data-exporter/internal/store"
)

// Mapping binds a record field to a stored metric.
type Mapping struct {
	Definition  store.Definition
	SourceField string
}

type Settings struct {
	Name              string
	Interval          time.Duration
	Timeout           time.Duration
	ClearBeforeUpdate bool
	Mappings          []Mapping
}

// CycleResult summarises one collection cycle.
type CycleResult struct {
	Source   string
	Records  int
	Written  int
	Skipped  int
	Duration time.Duration
	Err      error
}

// Status is the running state of a scheduler.
type Status struct {
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Scheduler runs the collection cycle of one source. Cycles never overlap:
// the next one starts Interval after the previous one finished.
type Scheduler struct {
	settings  Settings
	collector source.Collector
	store     *store.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu     sync.RWMutex
	status Status
}

// NewScheduler also creates the source's self-metric series so they are
// exposed with zero values before the first cycle.
func NewScheduler(settings Settings, c source.Collector, st *store.Store, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	m.ScrapeSuccess.WithLabelValues(settings.Name)
	m.ScrapeErrors.WithLabelValues(settings.Name)
	m.ScrapeDuration.WithLabelValues(settings.Name)
	m.LastScrapeTimestamp.WithLabelValues(settings.Name)

	return &Scheduler{
		settings:  settings,
		collector: c,
		store:     st,
		metrics:   m,
		logger:    logger.With(zap.String("source", settings.Name)),
	}
}

func (s *Scheduler) Name() string {
	return s.settings.Name
}

// Run collects immediately and then once per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting collector", zap.Duration("interval", s.settings.Interval))

	s.RunOnce(ctx)

	timer := time.NewTimer(s.settings.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping collector")
			return
		case <-timer.C:
			if ctx.Err() != nil {
				s.logger.Info("Stopping collector")
				return
			}
			s.RunOnce(ctx)
			timer.Reset(s.settings.Interval)
		}
	}
}

// RunOnce performs a single collection cycle.
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	start := time.Now()
	result := CycleResult{Source: s.settings.Name}

	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	records, err := s.collector.Collect(fetchCtx)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Error("Collection timed out", zap.Duration("timeout", s.settings.Timeout), zap.Error(err))
		} else {
			s.logger.Error("Error collecting data", zap.Error(err))
		}
		s.metrics.ScrapeErrors.WithLabelValues(s.settings.Name).Inc()
		result.Err = err
		result.Duration = time.Since(start)
		s.record(result)
		return result
	}

	result.Records = len(records)
	if len(records) == 0 {
		s.logger.Warn("No data returned, keeping previous values")
	} else {
		batch := s.buildBatch(records, &result)
		result.Written = s.store.Apply(batch)
	}

	result.Duration = time.Since(start)
	s.metrics.ScrapeSuccess.WithLabelValues(s.settings.Name).Inc()
	s.metrics.ScrapeDuration.WithLabelValues(s.settings.Name).Set(result.Duration.Seconds())
	s.metrics.LastScrapeTimestamp.WithLabelValues(s.settings.Name).SetToCurrentTime()
	s.record(result)

	s.logger.Info("Updated metrics",
		zap.Int("records", result.Records),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result
}

func (s *Scheduler) buildBatch(records []source.Record, result *CycleResult) store.Batch {
	var batch store.Batch
	if s.settings.ClearBeforeUpdate {
		batch.Clear = make([]string, 0, len(s.settings.Mappings))
		for _, m := range s.settings.Mappings {
			batch.Clear = append(batch.Clear, m.Definition.Name)
		}
	}

	for _, rec := range records {
		for _, m := range s.settings.Mappings {
			value, err := rec.Float(m.SourceField)
			if err != nil {
				s.logger.Warn("Skipping value",
					zap.String("metric", m.Definition.Name),
					zap.String("field", m.SourceField),
					zap.Error(err))
				s.metrics.SkippedValues.WithLabelValues(s.settings.Name, m.Definition.Name).Inc()
				result.Skipped++
				continue
			}

			labels := make(model.LabelSet, len(m.Definition.LabelNames))
			for _, name := range m.Definition.LabelNames {
				labels[model.LabelName(name)] = model.LabelValue(rec.Label(name))
			}

			batch.Updates = append(batch.Updates, store.Update{
				Metric: m.Definition.Name,
				Labels: labels,
				Value:  value,
			})
		}
	}
	return batch
}

func (s *Scheduler) record(result CycleResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Cycles++
	if result.Err != nil {
		s.status.Failures++
		s.status.LastError = result.Err.Error()
		return
	}
	now := time.Now()
	s.status.LastSuccess = &now
	s.status.LastError = ""
}

func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
