package system

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"data-exporter/internal/config"
)

func setupTest(t *testing.T, opts map[string]any) *Collector {
	t.Helper()
	c, err := New(config.DataSource{Name: "host", Type: Type, Options: opts}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestCollectHost(t *testing.T) {
	c := setupTest(t, map[string]any{"hostname": "node-1"})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "node-1", rec.Label("host"))

	total, err := rec.Float("mem_total_bytes")
	require.NoError(t, err)
	assert.Greater(t, total, 0.0)

	used, err := rec.Float("mem_used_percent")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, used, 0.0)
	assert.LessOrEqual(t, used, 100.0)
}

func TestCollectDisk(t *testing.T) {
	dir := t.TempDir()
	c := setupTest(t, map[string]any{"scope": "disk", "paths": []any{dir, "/definitely/not/here"}})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, dir, records[0].Label("mountpoint"))

	totalBytes, err := records[0].Float("disk_total_bytes")
	require.NoError(t, err)
	assert.Greater(t, totalBytes, 0.0)
}

func TestCollectNetworkFilter(t *testing.T) {
	c := setupTest(t, map[string]any{"scope": "network", "interfaces": []any{"no-such-iface0"}})

	records, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNew(t *testing.T) {
	c := setupTest(t, nil)
	assert.Equal(t, ScopeHost, c.settings.Scope)

	hostname, err := os.Hostname()
	if err == nil {
		assert.Equal(t, hostname, c.hostname)
	}

	_, err = New(config.DataSource{Name: "host", Type: Type, Options: map[string]any{"scope": "gpu"}}, zap.NewNop())
	assert.Error(t, err)
}
