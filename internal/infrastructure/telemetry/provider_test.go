package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	p, err := Setup(context.Background(), Config{Enabled: false, ServiceName: "marketsync"}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NotNil(t, p.Meter())
	assert.False(t, p.LogCore(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Telemetry disabled, using no-op providers").Len())
}

func TestSetup_DisabledMeterFeedsSyncMetrics(t *testing.T) {
	p, err := Setup(context.Background(), Config{}, nil)
	require.NoError(t, err)

	m, err := NewSyncMetrics(p.Meter())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordTrackingEvent(context.Background(), "feed", "applied")
	})
}

func TestLevelCore(t *testing.T) {
	inner, logs := observer.New(zap.DebugLevel)
	core := &levelCore{Core: inner, min: zapcore.WarnLevel}
	logger := zap.New(core).With(zap.String("component", "poller"))

	logger.Info("dropped")
	logger.Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, "poller", logs.All()[0].ContextMap()["component"])
}
