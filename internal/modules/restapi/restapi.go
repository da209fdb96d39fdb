package restapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
	"data-exporter/pkg/restclient"
)

const Type = "rest_api"

type Settings struct {
	Endpoint    string              `yaml:"endpoint"`
	Method      string              `yaml:"method"`
	Body        string              `yaml:"body"`
	Headers     map[string]string   `yaml:"headers"`
	Auth        common.AuthSettings `yaml:"auth"`
	Format      string              `yaml:"format"`
	RecordsPath string              `yaml:"records_path"`
}

func (s Settings) validate() error {
	if err := common.Require("endpoint", s.Endpoint); err != nil {
		return err
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid endpoint %q", s.Endpoint)
	}
	switch strings.ToUpper(s.Method) {
	case "", http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("unsupported method %q", s.Method)
	}
	if err := s.Auth.Validate(); err != nil {
		return err
	}
	return common.ValidateFormat(s.Format)
}

type Collector struct {
	name     string
	settings Settings
	client   *restclient.Client
	logger   *zap.Logger
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}

	headers := common.BuildHeaders(logger, settings.Headers, settings.Auth)
	return &Collector{
		name:     cfg.Name,
		settings: settings,
		client:   restclient.NewClient(settings.Endpoint, cfg.Timeout.Duration(), headers),
		logger:   logger,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	data, err := c.client.Fetch(ctx, c.settings.Method, []byte(c.settings.Body))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.client.Endpoint(), err)
	}

	records, err := common.DecodeRecords(data, c.settings.Format, c.settings.RecordsPath)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetched records", zap.Int("count", len(records)))
	return records, nil
}
