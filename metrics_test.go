package ensemble

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}

	m.RecordRun("kmeans", 10, 0, 2*time.Millisecond, nil)
	m.RecordRun("DBSCAN", 10, 3, 4*time.Millisecond, nil)
	m.RecordRun("DBSCAN", 10, 0, 0, errors.New("bad eps"))

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats.RunCount)
	assert.Equal(t, int64(1), stats.RunErrors)
	assert.Equal(t, int64(20), stats.ItemsTotal)
	assert.Equal(t, int64(3), stats.NoiseTotal)
	assert.Equal(t, (2*time.Millisecond).Nanoseconds(), stats.RunAvgNanos)
	assert.Equal(t, map[string]int64{"kmeans": 1, "DBSCAN": 2}, stats.RunsByAlgorithm)
}

func TestBasicMetricsCollector_Empty(t *testing.T) {
	stats := (&BasicMetricsCollector{}).GetStats()
	assert.Zero(t, stats.RunAvgNanos)
	assert.Empty(t, stats.RunsByAlgorithm)
}

func TestNoopMetricsCollector(t *testing.T) {
	var mc MetricsCollector = NoopMetricsCollector{}
	mc.RecordRun("kmeans", 1, 0, time.Second, nil)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l.WithAlgorithm("spectral").WithK(3).LogRun(context.Background(), 100, 3, 0, time.Millisecond, nil)
	assert.Contains(t, buf.String(), "run completed")
	assert.Contains(t, buf.String(), "algorithm=spectral")
	assert.Contains(t, buf.String(), "clusters=3")

	buf.Reset()
	l.LogRun(context.Background(), 100, 0, 0, time.Millisecond, errors.New("no convergence"))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "no convergence")
}

func TestNoopLogger(t *testing.T) {
	l := NoopLogger()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	assert.NotNil(t, NewLogger(nil))
	assert.NotNil(t, NewJSONLogger(slog.LevelInfo))
	assert.NotNil(t, NewTextLogger(slog.LevelInfo))
}
