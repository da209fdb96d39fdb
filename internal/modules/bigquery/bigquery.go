package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "bigquery"

type Settings struct {
	Project            string `yaml:"project"`
	Location           string `yaml:"location"`
	Query              string `yaml:"query"`
	CredentialsFileEnv string `yaml:"credentials_file_env"`
	Endpoint           string `yaml:"endpoint"`
}

// Collector runs a query and returns one record per row. The client is
// created on the first cycle so missing credentials fail that source only.
type Collector struct {
	name     string
	settings Settings
	opts     []option.ClientOption
	logger   *zap.Logger

	mu     sync.Mutex
	client *bigquery.Client
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	if err := common.Require("query", strings.TrimSpace(settings.Query)); err != nil {
		return nil, err
	}
	if settings.Project == "" {
		settings.Project = bigquery.DetectProjectID
	}

	var opts []option.ClientOption
	if path := common.Env(logger, settings.CredentialsFileEnv); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if settings.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(settings.Endpoint), option.WithoutAuthentication())
	}

	return &Collector{
		name:     cfg.Name,
		settings: settings,
		opts:     opts,
		logger:   logger,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) bigqueryClient() (*bigquery.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := bigquery.NewClient(context.Background(), c.settings.Project, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	if c.settings.Location != "" {
		client.Location = c.settings.Location
	}
	c.client = client
	return client, nil
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	client, err := c.bigqueryClient()
	if err != nil {
		return nil, err
	}

	it, err := client.Query(c.settings.Query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	var records []source.Record
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		rec := make(source.Record, len(row))
		for k, v := range row {
			rec[k] = v
		}
		records = append(records, rec)
	}

	c.logger.Debug("Fetched rows", zap.Int("count", len(records)), zap.Uint64("total", it.TotalRows))
	return records, nil
}

func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
