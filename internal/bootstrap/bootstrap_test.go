package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/erp/marketsync/internal/infrastructure/carrier"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFeedSource_Local(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dhl-20260402.csv"), []byte("header\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))

	cfg := &config.Config{Feed: config.FeedConfig{Source: "local", Dir: dir, Pattern: "*.csv"}}
	src, err := newFeedSource(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &carrier.FileFeedSource{}, src)

	files, err := src.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "dhl-20260402.csv", files[0].Name)
}

func TestNewFeedSource_LocalWithoutDir(t *testing.T) {
	cfg := &config.Config{Feed: config.FeedConfig{Source: "local"}}
	_, err := newFeedSource(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, carrier.ErrFeedDirMissing)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&config.Config{Log: config.LogConfig{Level: "debug", Format: "json", Output: "stdout"}})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestApp_CloseOnPartialApp(t *testing.T) {
	assert.NoError(t, (&App{}).Close(context.Background()))
}

func TestApp_CloseStopsProfiler(t *testing.T) {
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)

	app := &App{Profiler: profiler}
	assert.NoError(t, app.Close(context.Background()))
	assert.NoError(t, app.Close(context.Background()))
	assert.False(t, app.Profiler.IsEnabled())
}
