package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"data-exporter/internal/collector"
	"data-exporter/internal/config"
	"data-exporter/internal/metrics"
	"data-exporter/internal/source"
	"data-exporter/internal/store"
)

var ErrReservedMetric = errors.New("metric name is reserved for exporter self metrics")

const shutdownTimeout = 5 * time.Second

// Exporter owns the store, one scheduler per enabled source, the expiry
// sweeper and the HTTP server.
type Exporter struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	store      *store.Store
	metrics    *metrics.Metrics
	schedulers []*collector.Scheduler
	collectors []source.Collector
	sweeper    *collector.Sweeper
	started    time.Time
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock sets the clock used to stamp and expire samples.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New validates the metric definitions and builds every collector. Any
// error here is a configuration error: nothing has been started yet.
func New(cfg *config.Config, sources *source.Registry, logger *zap.Logger, opts ...Option) (*Exporter, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	st := store.New(logger.Named("store"), store.WithClock(o.now))

	e := &Exporter{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		store:    st,
		metrics:  metrics.NewMetrics(registry),
		started:  time.Now(),
	}
	metrics.RegisterStoreSize(registry, st.Len)
	registry.MustRegister(st)

	reserved := metrics.ReservedNames()
	for _, ds := range cfg.DataSources {
		if !ds.IsEnabled() {
			logger.Info("Skipping disabled data source", zap.String("source", ds.Name))
			continue
		}

		mappings := make([]collector.Mapping, 0, len(ds.Metrics))
		for _, m := range ds.Metrics {
			if slices.Contains(reserved, m.PrometheusName) {
				e.closeCollectors()
				return nil, fmt.Errorf("data source %q: %w: %s", ds.Name, ErrReservedMetric, m.PrometheusName)
			}
			def := store.Definition{
				Name:       m.PrometheusName,
				Help:       m.Description,
				LabelNames: m.Labels,
			}
			if err := st.Register(def); err != nil {
				e.closeCollectors()
				return nil, fmt.Errorf("data source %q: %w", ds.Name, err)
			}
			mappings = append(mappings, collector.Mapping{Definition: def, SourceField: m.SourceField})
		}

		sourceLogger := logger.With(zap.String("source", ds.Name))
		c, err := sources.New(ds, sourceLogger)
		if err != nil {
			e.closeCollectors()
			return nil, err
		}
		e.collectors = append(e.collectors, c)

		e.schedulers = append(e.schedulers, collector.NewScheduler(collector.Settings{
			Name:              ds.Name,
			Interval:          ds.Interval.Duration(),
			Timeout:           ds.Timeout.Duration(),
			ClearBeforeUpdate: ds.ClearsBeforeUpdate(),
			Mappings:          mappings,
		}, c, st, e.metrics, logger))

		logger.Info("Configured data source",
			zap.String("source", ds.Name),
			zap.String("type", ds.Type),
			zap.Duration("interval", ds.Interval.Duration()),
			zap.Int("metrics", len(mappings)))
	}

	e.sweeper = collector.NewSweeper(st, cfg.MetricsTTL(), cfg.CleanupInterval(), e.metrics, logger.Named("sweeper"),
		collector.WithSweepClock(o.now))
	return e, nil
}

// Run starts every loop and the HTTP server and blocks until ctx is done or
// the server fails. Collectors are closed before returning.
func (e *Exporter) Run(ctx context.Context) error {
	defer e.closeCollectors()

	server := &http.Server{
		Addr:         e.cfg.ListenAddress(),
		Handler:      e.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.logger.Info("Starting metrics server",
			zap.String("address", server.Addr),
			zap.String("path", e.cfg.Exporter.MetricsPath))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		e.logger.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("Error during server shutdown", zap.Error(err))
		}
		return nil
	})

	for _, s := range e.schedulers {
		s := s
		g.Go(func() error {
			s.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		e.sweeper.Run(ctx)
		return nil
	})

	e.logger.Info("Exporter started", zap.Int("sources", len(e.schedulers)))
	return g.Wait()
}

// RunOnce runs a single cycle of the named sources, or of every enabled
// source when names is empty.
func (e *Exporter) RunOnce(ctx context.Context, names ...string) ([]collector.CycleResult, error) {
	var results []collector.CycleResult
	found := make(map[string]bool, len(names))
	for _, s := range e.schedulers {
		if len(names) > 0 && !slices.Contains(names, s.Name()) {
			continue
		}
		found[s.Name()] = true
		results = append(results, s.RunOnce(ctx))
	}

	for _, name := range names {
		if !found[name] {
			return results, fmt.Errorf("no enabled data source named %q", name)
		}
	}
	return results, nil
}

// Gatherer exposes the registry serving the metrics endpoint.
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.registry
}

func (e *Exporter) Store() *store.Store {
	return e.store
}

// Close releases collector resources. Run does this on return.
func (e *Exporter) Close() {
	e.closeCollectors()
}

func (e *Exporter) closeCollectors() {
	for _, c := range e.collectors {
		closer, ok := c.(source.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			e.logger.Warn("Error closing collector", zap.String("source", c.Name()), zap.Error(err))
		}
	}
	e.collectors = nil
}
