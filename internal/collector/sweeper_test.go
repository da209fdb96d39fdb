package collector

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"data-exporter/internal/metrics"
	"data-exporter/internal/store"
)

func TestSweep(t *testing.T) {
	written := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := store.New(zap.NewNop(), store.WithClock(func() time.Time { return written }))
	require.NoError(t, st.Register(store.Definition{Name: "gauge_a", LabelNames: []string{"k"}}))
	require.NoError(t, st.Upsert("gauge_a", model.LabelSet{"k": "1"}, 1))
	require.NoError(t, st.Upsert("gauge_a", model.LabelSet{"k": "2"}, 2))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := NewSweeper(st, 5*time.Minute, time.Minute, m, zap.NewNop())

	s.now = func() time.Time { return written.Add(4 * time.Minute) }
	assert.Equal(t, 0, s.Sweep())

	s.now = func() time.Time { return written.Add(6 * time.Minute) }
	assert.Equal(t, 2, s.Sweep())
	assert.Zero(t, st.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExpiredSeries))
}

func TestSweeperRun(t *testing.T) {
	st := store.New(zap.NewNop(), store.WithClock(func() time.Time { return time.Unix(0, 0) }))
	require.NoError(t, st.Register(store.Definition{Name: "gauge_a"}))
	require.NoError(t, st.Upsert("gauge_a", model.LabelSet{}, 1))

	s := NewSweeper(st, time.Second, 5*time.Millisecond, metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return st.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
