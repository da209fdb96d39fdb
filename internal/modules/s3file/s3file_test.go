package s3file

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"data-exporter/internal/config"
	"data-exporter/internal/modules/common"
	"data-exporter/internal/source"
)

func setupTest(t *testing.T, handler http.HandlerFunc, opts map[string]any) *Collector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("TEST_S3_KEY", "AKIDEXAMPLE")
	t.Setenv("TEST_S3_SECRET", "secret")

	base := map[string]any{
		"bucket":                "reports",
		"endpoint":              server.URL,
		"access_key_id_env":     "TEST_S3_KEY",
		"secret_access_key_env": "TEST_S3_SECRET",
	}
	for k, v := range opts {
		base[k] = v
	}

	c, err := New(config.DataSource{Name: "s3", Type: Type, Options: base}, zap.NewNop())
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestCollectCSV(t *testing.T) {
	c := setupTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/reports/daily/2024-01-15.csv", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"))
		w.Write([]byte("service_name,error_rate\ncheckout,0.02\nsearch,0.001\n"))
	}, map[string]any{
		"path_pattern": "daily/{date}.csv",
		"format":       "csv",
	})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []source.Record{
		{"service_name": "checkout", "error_rate": "0.02"},
		{"service_name": "search", "error_rate": "0.001"},
	}, records)
}

func TestCollectJSON(t *testing.T) {
	c := setupTest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports/latest.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"queue":"a","depth":3}]}`))
	}, map[string]any{"path_pattern": "latest.json"})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Label("queue"))
}

func TestCollectMissingObject(t *testing.T) {
	c := setupTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	}, map[string]any{"path_pattern": "missing.json"})

	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://reports/missing.json")
}

func TestNewValidation(t *testing.T) {
	_, err := New(config.DataSource{Name: "s3", Type: Type, Options: map[string]any{"path_pattern": "a"}}, zap.NewNop())
	assert.ErrorIs(t, err, common.ErrMissingSetting)

	c, err := New(config.DataSource{Name: "s3", Type: Type, Options: map[string]any{
		"bucket":       "b",
		"path_pattern": "{year}/{month}/{day}.json",
	}}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, c.settings.Region)
	assert.Equal(t, "2024/01/15.json", c.ObjectKey(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}
