package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"data-exporter/internal/config"
	"data-exporter/internal/source"
	"data-exporter/internal/store"
)

type staticCollector struct {
	name    string
	records []source.Record
	calls   atomic.Int32
	closed  atomic.Bool
}

func (c *staticCollector) Name() string { return c.name }

func (c *staticCollector) Collect(context.Context) ([]source.Record, error) {
	c.calls.Add(1)
	return c.records, nil
}

func (c *staticCollector) Close() error {
	c.closed.Store(true)
	return nil
}

type failingCollector struct {
	name  string
	calls atomic.Int32
}

func (c *failingCollector) Name() string { return c.name }

func (c *failingCollector) Collect(context.Context) ([]source.Record, error) {
	c.calls.Add(1)
	return nil, errors.New("connection refused")
}

type testEnv struct {
	registry   *source.Registry
	collectors map[string]*staticCollector
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		registry:   source.NewRegistry(),
		collectors: make(map[string]*staticCollector),
	}
	env.registry.MustRegister("static", func(cfg config.DataSource, _ *zap.Logger) (source.Collector, error) {
		c := &staticCollector{
			name: cfg.Name,
			records: []source.Record{
				{"region": "us", "count": 42},
				{"region": "eu", "count": "7.5"},
			},
		}
		env.collectors[cfg.Name] = c
		return c, nil
	})
	env.registry.MustRegister("failing", func(cfg config.DataSource, _ *zap.Logger) (source.Collector, error) {
		return &failingCollector{name: cfg.Name}, nil
	})
	return env
}

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	return cfg
}

const ordersConfig = `
exporter:
  port: 9100
data_sources:
  - name: orders
    type: static
    interval: 1h
    metrics:
      - source_field: count
        prometheus_name: orders_open
        description: Open orders
        labels: [region]
  - name: legacy
    type: not_installed
    enabled: false
`

func TestEndToEnd(t *testing.T) {
	env := setupTest(t)
	e, err := New(parseConfig(t, ordersConfig), env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	results, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Written)

	expected := `
# HELP orders_open Open orders
# TYPE orders_open gauge
orders_open{region="eu"} 7.5
orders_open{region="us"} 42
`
	require.NoError(t, testutil.GatherAndCompare(e.Gatherer(), strings.NewReader(expected), "orders_open"))

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `orders_open{region="us"} 42`)
	assert.Contains(t, string(body), `exporter_scrape_success_total{source="orders"} 1`)
	assert.Contains(t, string(body), `exporter_store_series 2`)
	assert.NotContains(t, string(body), "legacy")
}

func TestHTTPRoutes(t *testing.T) {
	env := setupTest(t)
	e, err := New(parseConfig(t, ordersConfig), env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()
	_, err = e.RunOnce(context.Background(), "orders")
	require.NoError(t, err)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, "ok"},
		{"index", http.MethodGet, "/", http.StatusOK, `href="/metrics"`},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, ""},
		{"wrong method", http.MethodPost, "/metrics", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			e.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var status StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, 2, status.Series)
		require.Len(t, status.Sources, 1)
		assert.Equal(t, "orders", status.Sources[0].Name)
		assert.Equal(t, int64(1), status.Sources[0].Cycles)
		assert.Empty(t, status.Sources[0].LastError)
	})
}

func TestRunOnceUnknownSource(t *testing.T) {
	env := setupTest(t)
	e, err := New(parseConfig(t, ordersConfig), env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.RunOnce(context.Background(), "legacy")
	assert.ErrorContains(t, err, `"legacy"`)
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name: "reserved name",
			doc: `
data_sources:
  - name: a
    type: static
    metrics:
      - source_field: count
        prometheus_name: exporter_scrape_errors_total
`,
			wantErr: ErrReservedMetric,
		},
		{
			name: "label conflict",
			doc: `
data_sources:
  - name: a
    type: static
    metrics:
      - source_field: count
        prometheus_name: orders_open
        labels: [region]
  - name: b
    type: static
    metrics:
      - source_field: count
        prometheus_name: orders_open
        labels: [country]
`,
			wantErr: store.ErrLabelConflict,
		},
		{
			name: "unknown type",
			doc: `
data_sources:
  - name: a
    type: static
  - name: b
    type: ftp
`,
			wantErr: source.ErrUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTest(t)
			_, err := New(parseConfig(t, tt.doc), env.registry, zaptest.NewLogger(t))
			assert.ErrorIs(t, err, tt.wantErr)

			// collectors built before the failure are released
			for name, c := range env.collectors {
				assert.True(t, c.closed.Load(), "collector %s not closed", name)
			}
		})
	}
}

func TestSharedMetricAcrossSources(t *testing.T) {
	env := setupTest(t)
	cfg := parseConfig(t, `
data_sources:
  - name: east
    type: static
    metrics:
      - source_field: count
        prometheus_name: orders_open
        labels: [region]
  - name: west
    type: static
    clear_before_update: false
    metrics:
      - source_field: count
        prometheus_name: orders_open
        labels: [region]
`)
	e, err := New(cfg, env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	results, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, e.Store().Len())
}

func TestRun(t *testing.T) {
	env := setupTest(t)
	cfg := parseConfig(t, ordersConfig)
	cfg.Exporter.Host = "127.0.0.1"
	cfg.Exporter.Port = 0

	e, err := New(cfg, env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	c := env.collectors["orders"]
	require.NotNil(t, c)
	assert.Eventually(t, func() bool { return e.Store().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("exporter did not stop")
	}
	assert.True(t, c.closed.Load())
	assert.Equal(t, int32(1), c.calls.Load())
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestSelfSeriesBeforeFirstCycle(t *testing.T) {
	env := setupTest(t)
	e, err := New(parseConfig(t, ordersConfig), env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close()

	body := scrape(t, e.Handler())
	assert.Contains(t, body, `exporter_scrape_errors_total{source="orders"} 0`)
	assert.Contains(t, body, `exporter_scrape_success_total{source="orders"} 0`)
}

func TestFailingSourceIsIsolated(t *testing.T) {
	env := setupTest(t)
	cfg := parseConfig(t, `
data_sources:
  - name: orders
    type: static
    metrics:
      - source_field: count
        prometheus_name: orders_open
        labels: [region]
  - name: broken
    type: failing
    metrics:
      - source_field: count
        prometheus_name: broken_value
`)
	for i := range cfg.DataSources {
		cfg.DataSources[i].Interval = config.Duration(20 * time.Millisecond)
	}
	cfg.Exporter.Host = "127.0.0.1"
	cfg.Exporter.Port = 0

	e, err := New(cfg, env.registry, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	success := e.metrics.ScrapeSuccess.WithLabelValues("orders")
	failures := e.metrics.ScrapeErrors.WithLabelValues("broken")
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(success) >= 5 && testutil.ToFloat64(failures) >= 5
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, testutil.ToFloat64(e.metrics.ScrapeErrors.WithLabelValues("orders")))
	assert.Zero(t, testutil.ToFloat64(e.metrics.ScrapeSuccess.WithLabelValues("broken")))
	assert.Equal(t, 2, e.Store().Len())
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestExpiredSampleLeavesEndpoint(t *testing.T) {
	env := setupTest(t)
	cfg := parseConfig(t, `
exporter:
  metrics_ttl_seconds: 5
data_sources:
  - name: chain
    type: static
    metrics:
      - source_field: count
        prometheus_name: block_rate
        labels: [region]
`)
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	e, err := New(cfg, env.registry, zaptest.NewLogger(t), WithClock(clock.Now))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.RunOnce(context.Background())
	require.NoError(t, err)
	sample := `block_rate{region="us"} 42`

	clock.Advance(3 * time.Second)
	assert.Zero(t, e.sweeper.Sweep())
	assert.Contains(t, scrape(t, e.Handler()), sample)

	clock.Advance(4 * time.Second)
	assert.Equal(t, 2, e.sweeper.Sweep())
	body := scrape(t, e.Handler())
	assert.NotContains(t, body, sample)
	assert.Contains(t, body, "exporter_expired_series_total 2")
	assert.Contains(t, body, "exporter_store_series 0")
}
