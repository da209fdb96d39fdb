package gcsfile

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "gcs_file"

type Settings struct {
	Bucket             string `yaml:"bucket"`
	PathPattern        string `yaml:"path_pattern"`
	Format             string `yaml:"format"`
	RecordsPath        string `yaml:"records_path"`
	CredentialsFileEnv string `yaml:"credentials_file_env"`
	Endpoint           string `yaml:"endpoint"`
}

func (s Settings) validate() error {
	if err := common.Require("bucket", s.Bucket); err != nil {
		return err
	}
	if err := common.Require("path_pattern", s.PathPattern); err != nil {
		return err
	}
	return common.ValidateFormat(s.Format)
}

// Collector reads one object per cycle, its name rendered from PathPattern.
type Collector struct {
	name     string
	settings Settings
	opts     []option.ClientOption
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	client *storage.Client
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, err
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
		now:      time.Now,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) storageClient() (*storage.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	client, err := storage.NewClient(context.Background(), c.opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	c.client = client
	return client, nil
}

// ObjectPath returns the object read by a cycle running at t.
func (c *Collector) ObjectPath(t time.Time) string {
	return common.RenderPath(c.settings.PathPattern, t)
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	client, err := c.storageClient()
	if err != nil {
		return nil, err
	}

	path := c.ObjectPath(c.now())
	r, err := client.Bucket(c.settings.Bucket).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", c.settings.Bucket, path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", c.settings.Bucket, path, err)
	}

	records, err := common.DecodeRecords(data, c.settings.Format, c.settings.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("decode gs://%s/%s: %w", c.settings.Bucket, path, err)
	}

	c.logger.Debug("Fetched object", zap.String("path", path), zap.Int("records", len(records)))
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
