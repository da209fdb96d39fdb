package source

import (
	"context"

	"go.uber.org/zap"

	"data-exporter/internal/config"
)

// Collector fetches the current records of one data source. Implementations
// must honour ctx cancellation and must not retry internally.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]Record, error)
}

// Closer is implemented by collectors that hold connections or clients.
type Closer interface {
	Close() error
}

// Factory builds a collector from its data source configuration.
type Factory func(cfg config.DataSource, logger *zap.Logger) (Collector, error)
