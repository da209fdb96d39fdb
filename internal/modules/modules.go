package modules

import (
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/bigquery"
	"data-exporter/internal/modules/database"
	"data-exporter/internal/modules/gcsfile"
	"data-exporter/internal/modules/restapi"
	"data-exporter/internal/modules/s3file"
	"data-exporter/internal/modules/system"
	"data-exporter/internal/modules/websocket"
	"data-exporter/internal/source"
)

// Register adds every built-in data source type to r.
func Register(r *source.Registry) {
	r.MustRegister(restapi.Type, factory(restapi.New))
	r.MustRegister(database.Type, factory(database.New))
	r.MustRegister(bigquery.Type, factory(bigquery.New))
	r.MustRegister(gcsfile.Type, factory(gcsfile.New))
	r.MustRegister(s3file.Type, factory(s3file.New))
	r.MustRegister(system.Type, factory(system.New))
	r.MustRegister(websocket.Type, factory(websocket.New))
}

// NewRegistry returns a registry holding the built-in types.
func NewRegistry() *source.Registry {
	r := source.NewRegistry()
	Register(r)
	return r
}

func factory[C source.Collector](newFn func(config.DataSource, *zap.Logger) (C, error)) source.Factory {
	return func(cfg config.DataSource, logger *zap.Logger) (source.Collector, error) {
		c, err := newFn(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
