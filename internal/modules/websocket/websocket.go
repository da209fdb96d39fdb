package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

const Type = "websocket"

type Settings struct {
	Endpoint         string              `yaml:"endpoint"`
	Headers          map[string]string   `yaml:"headers"`
	Auth             common.AuthSettings `yaml:"auth"`
	SubscribeMessage string              `yaml:"subscribe_message"`
	Messages         int                 `yaml:"messages"`
	Format           string              `yaml:"format"`
	RecordsPath      string              `yaml:"records_path"`
}

func (s Settings) validate() error {
	if err := common.Require("endpoint", s.Endpoint); err != nil {
		return err
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("invalid websocket endpoint %q", s.Endpoint)
	}
	if s.Messages < 0 {
		return fmt.Errorf("messages must not be negative")
	}
	if err := s.Auth.Validate(); err != nil {
		return err
	}
	return common.ValidateFormat(s.Format)
}

// Collector opens a connection per cycle, optionally sends a subscribe
// message and decodes the first Messages frames it receives.
type Collector struct {
	name     string
	settings Settings
	headers  http.Header
	dialer   *websocket.Dialer
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
	if settings.Messages == 0 {
		settings.Messages = 1
	}

	return &Collector{
		name:     cfg.Name,
		settings: settings,
		headers:  common.BuildHeaders(logger, settings.Headers, settings.Auth),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout.Duration(),
		},
		logger: logger,
	}, nil
}

func (c *Collector) Name() string {
	return c.name
}

func (c *Collector) Collect(ctx context.Context) ([]source.Record, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.settings.Endpoint, c.headers)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", c.settings.Endpoint, err)
	}
	defer conn.Close()

	// unblock reads when the cycle is cancelled
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if c.settings.SubscribeMessage != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c.settings.SubscribeMessage)); err != nil {
			return nil, fmt.Errorf("send subscribe message: %w", err)
		}
	}

	var records []source.Record
	for i := 0; i < c.settings.Messages; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if cerr := contextErr(ctx); cerr != nil {
				return nil, fmt.Errorf("read message %d: %w", i+1, cerr)
			}
			return nil, fmt.Errorf("read message %d: %w", i+1, err)
		}

		batch, err := common.DecodeRecords(data, c.settings.Format, c.settings.RecordsPath)
		if err != nil {
			return nil, fmt.Errorf("decode message %d: %w", i+1, err)
		}
		records = append(records, batch...)
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second)); err != nil {
		c.logger.Debug("Close handshake failed", zap.Error(err))
	}

	c.logger.Debug("Received records", zap.Int("count", len(records)))
	return records, nil
}

// contextErr reports ctx's error, treating a passed deadline as exceeded even
// if the context timer has not fired yet.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return nil
}
