package s3file

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "s3_file"

const DefaultRegion = "us-east-1"

type Settings struct {
	Bucket             string `yaml:"bucket"`
	PathPattern        string `yaml:"path_pattern"`
	Region             string `yaml:"region"`
	Endpoint           string `yaml:"endpoint"`
	AccessKeyIDEnv     string `yaml:"access_key_id_env"`
	SecretAccessKeyEnv string `yaml:"secret_access_key_env"`
	SessionTokenEnv    string `yaml:"session_token_env"`
	Format             string `yaml:"format"`
	RecordsPath        string `yaml:"records_path"`
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

type Collector struct {
	name     string
	settings Settings
	s3       *s3.S3
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.DataSource, logger *zap.Logger) (*Collector, error) {
	var settings Settings
	if err := cfg.Decode(&settings); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if settings.Region == "" {
		settings.Region = DefaultRegion
	}

	awsConfig := aws.NewConfig().WithRegion(settings.Region)
	if settings.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(settings.Endpoint).WithS3ForcePathStyle(true)
	}
	if settings.AccessKeyIDEnv != "" {
		awsConfig = awsConfig.WithCredentials(credentials.NewStaticCredentials(
			common.Env(logger, settings.AccessKeyIDEnv),
			common.Env(logger, settings.SecretAccessKeyEnv),
			common.Env(logger, settings.SessionTokenEnv),
		))
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("new aws session: %w", err)
	}

	return &Collector{
		name:     cfg.Name,
		settings: settings,
		s3:       s3.New(sess),
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

// ObjectKey returns the key read by a cycle running at t.
func (c *Collector) ObjectKey(t time.Time) string {
	return common.RenderPath(c.settings.PathPattern, t)
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	key := c.ObjectKey(c.now())
	out, err := c.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.settings.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", c.settings.Bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", c.settings.Bucket, key, err)
	}

	records, err := common.DecodeRecords(data, c.settings.Format, c.settings.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("decode s3://%s/%s: %w", c.settings.Bucket, key, err)
	}

	c.logger.Debug("Fetched object", zap.String("key", key), zap.Int("records", len(records)))
	return records, nil
}
