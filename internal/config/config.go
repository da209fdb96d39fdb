package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultPort            = 8000
	DefaultMetricsPath     = "/metrics"
	DefaultMetricsTTL      = 300
	DefaultCleanupInterval = 60
	DefaultInterval        = Duration(60 * time.Second)
	DefaultTimeout         = Duration(30 * time.Second)
	MetricTypeGauge        = "gauge"
)

type Config struct {
	Exporter    ExporterConfig `yaml:"exporter"`
	DataSources []DataSource   `yaml:"data_sources"`
}

type ExporterConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`

	// Expiry of samples that stopped being refreshed
	MetricsTTLSeconds      int `yaml:"metrics_ttl_seconds"`
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DataSource describes one configured source. Keys that are not part of the
// common schema are kept in Options and decoded by the source type.
type DataSource struct {
	Name              string         `yaml:"name"`
	Type              string         `yaml:"type"`
	Enabled           *bool          `yaml:"enabled"`
	Interval          Duration       `yaml:"interval"`
	Timeout           Duration       `yaml:"timeout"`
	ClearBeforeUpdate *bool          `yaml:"clear_before_update"`
	Metrics           []MetricConfig `yaml:"metrics"`
	Options           map[string]any `yaml:",inline"`
}

type MetricConfig struct {
	SourceField    string   `yaml:"source_field"`
	PrometheusName string   `yaml:"prometheus_name"`
	Description    string   `yaml:"description"`
	Type           string   `yaml:"type"`
	Labels         []string `yaml:"labels"`
}

// LoadConfig reads the configuration file, applies defaults and validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &config, nil
}

func (d DataSource) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

func (d DataSource) ClearsBeforeUpdate() bool {
	return d.ClearBeforeUpdate == nil || *d.ClearBeforeUpdate
}

// Decode re-encodes the type specific options into v. Unknown keys are
// rejected so that typos surface at startup.
func (d DataSource) Decode(v any) error {
	opts := d.Options
	if opts == nil {
		opts = map[string]any{}
	}

	raw, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options of %q: %w", d.Name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: data source %q: %v", ErrInvalidConfig, d.Name, err)
	}
	return nil
}

func (c *Config) MetricsTTL() time.Duration {
	return time.Duration(c.Exporter.MetricsTTLSeconds) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Exporter.CleanupIntervalSeconds) * time.Second
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Exporter.Host, c.Exporter.Port)
}

// EnabledSources returns the data sources that will be scheduled.
func (c *Config) EnabledSources() []DataSource {
	var sources []DataSource
	for _, ds := range c.DataSources {
		if ds.IsEnabled() {
			sources = append(sources, ds)
		}
	}
	return sources
}

// Warnings reports settings that are valid but likely to misbehave.
func (c *Config) Warnings() []string {
	var warnings []string
	ttl := c.MetricsTTL()
	for _, ds := range c.EnabledSources() {
		if ds.Interval.Duration() >= ttl {
			warnings = append(warnings, fmt.Sprintf(
				"data source %q interval %s is not shorter than metrics TTL %s, its samples will expire between cycles",
				ds.Name, ds.Interval, ttl))
		}
	}
	return warnings
}

// reservedPaths are routed by the exporter and cannot serve metrics.
var reservedPaths = []string{"/", "/health", "/status"}

// OverridePort replaces the configured listen port, as the --port flag does.
func (c *Config) OverridePort(port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	c.Exporter.Port = port
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
	}
	return nil
}

func (c *Config) validate() error {
	if err := validatePort(c.Exporter.Port); err != nil {
		return err
	}
	if c.Exporter.MetricsTTLSeconds <= 0 {
		return fmt.Errorf("%w: metrics_ttl_seconds must be positive", ErrInvalidConfig)
	}
	if c.Exporter.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("%w: cleanup_interval_seconds must be positive", ErrInvalidConfig)
	}
	if c.Exporter.MetricsPath[0] != '/' {
		return fmt.Errorf("%w: metrics_path must start with /", ErrInvalidConfig)
	}
	if slices.Contains(reservedPaths, c.Exporter.MetricsPath) {
		return fmt.Errorf("%w: metrics_path %s is served by the exporter itself", ErrInvalidConfig, c.Exporter.MetricsPath)
	}

	seen := make(map[string]struct{}, len(c.DataSources))
	for i, ds := range c.DataSources {
		if ds.Name == "" {
			return fmt.Errorf("%w: data_sources[%d]: name is required", ErrInvalidConfig, i)
		}
		if _, ok := seen[ds.Name]; ok {
			return fmt.Errorf("%w: duplicate data source name %q", ErrInvalidConfig, ds.Name)
		}
		seen[ds.Name] = struct{}{}

		if ds.Type == "" {
			return fmt.Errorf("%w: data source %q: type is required", ErrInvalidConfig, ds.Name)
		}

		for j, m := range ds.Metrics {
			if err := m.validate(); err != nil {
				return fmt.Errorf("%w: data source %q: metrics[%d]: %v", ErrInvalidConfig, ds.Name, j, err)
			}
		}
	}

	return nil
}

func (m MetricConfig) validate() error {
	if m.SourceField == "" {
		return errors.New("source_field is required")
	}
	if !model.MetricNameRE.MatchString(m.PrometheusName) {
		return fmt.Errorf("invalid prometheus_name %q", m.PrometheusName)
	}
	if m.Type != "" && m.Type != MetricTypeGauge {
		return fmt.Errorf("metric %q: unsupported type %q, only %q is supported", m.PrometheusName, m.Type, MetricTypeGauge)
	}

	labels := make(map[string]struct{}, len(m.Labels))
	for _, l := range m.Labels {
		if !model.LabelNameRE.MatchString(l) || strings.HasPrefix(l, model.ReservedLabelPrefix) {
			return fmt.Errorf("metric %q: invalid label name %q", m.PrometheusName, l)
		}
		if _, ok := labels[l]; ok {
			return fmt.Errorf("metric %q: duplicate label %q", m.PrometheusName, l)
		}
		labels[l] = struct{}{}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Exporter.Port == 0 {
		c.Exporter.Port = DefaultPort
	}
	if c.Exporter.MetricsPath == "" {
		c.Exporter.MetricsPath = DefaultMetricsPath
	}
	if c.Exporter.MetricsTTLSeconds == 0 {
		c.Exporter.MetricsTTLSeconds = DefaultMetricsTTL
	}
	if c.Exporter.CleanupIntervalSeconds == 0 {
		c.Exporter.CleanupIntervalSeconds = DefaultCleanupInterval
	}
	if c.Exporter.LogLevel == "" {
		c.Exporter.LogLevel = "info"
	}
	if c.Exporter.LogFormat == "" {
		c.Exporter.LogFormat = "console"
	}

	for i := range c.DataSources {
		ds := &c.DataSources[i]
		if ds.Interval == 0 {
			ds.Interval = DefaultInterval
		}
		if ds.Timeout == 0 {
			ds.Timeout = DefaultTimeout
		}
		for j := range ds.Metrics {
			if ds.Metrics[j].Description == "" {
				ds.Metrics[j].Description = "Metric from " + ds.Name
			}
		}
	}
}
