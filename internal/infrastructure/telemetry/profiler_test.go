package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewProfiler_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	p, err := NewProfiler(ProfilerConfig{Enabled: false}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
	assert.Equal(t, 1, logs.FilterMessage("Continuous profiling disabled").Len())
}

func TestNewProfiler_RequiresServerAndName(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "marketsync"}, nil)
	assert.ErrorContains(t, err, "server address")

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, nil)
	assert.ErrorContains(t, err, "application name")
}

func TestNewProfiler_RejectsUnknownProfileType(t *testing.T) {
	_, err := NewProfiler(ProfilerConfig{
		Enabled:         true,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "marketsync",
		ProfileTypes:    []string{"cpu", "heap"},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"heap"`)
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU, pyroscope.ProfileAllocSpace, pyroscope.ProfileInuseSpace, pyroscope.ProfileGoroutines,
	}, types)

	types, err = parseProfileTypes([]string{" CPU ", "cpu", "mutex_duration"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileMutexDuration}, types)
	assert.True(t, selected(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration))
	assert.False(t, selected(types, pyroscope.ProfileBlockCount))
}

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Job":         "poll_tracking",
		"tracking_id": "00340434161094042557",
		"order-code":  "MK-1001",
		"http.method": "GET",
		"empty":       "",
		"!!!":         "dropped",
		"route":       strings.Repeat("r", MaxLabelValueLength+10),
	})

	assert.Equal(t, []string{
		"http_method", "GET",
		"job", "poll_tracking",
		"route", strings.Repeat("r", MaxLabelValueLength),
	}, pairs)
	assert.Nil(t, sanitizeLabels(nil))
}

func TestWithProfilingLabels(t *testing.T) {
	labels := OperationLabels("feed.parse", JobLabels("import_feed"))
	labels[SpanAttrTrackingID] = "00340434161094042557"

	var job, op string
	var tracked bool
	WithProfilingLabels(context.Background(), labels, func(ctx context.Context) {
		job, _ = pprof.Label(ctx, ProfilingLabelJob)
		op, _ = pprof.Label(ctx, ProfilingLabelOperation)
		_, tracked = pprof.Label(ctx, SpanAttrTrackingID)
	})

	assert.Equal(t, "import_feed", job)
	assert.Equal(t, "feed.parse", op)
	assert.False(t, tracked)
}

func TestWithProfilingLabels_NoLabelsRunsDirectly(t *testing.T) {
	ran := false
	WithProfilingLabels(context.Background(), map[string]string{"order_code": "MK-1"}, func(ctx context.Context) {
		ran = true
		_, ok := pprof.Label(ctx, "order_code")
		assert.False(t, ok)
	})
	assert.True(t, ran)
}

func TestHTTPRequestLabels(t *testing.T) {
	assert.Equal(t, map[string]string{
		ProfilingLabelResource: "returns",
		ProfilingLabelRoute:    "/api/v1/returns/:code",
		ProfilingLabelMethod:   "GET",
	}, HTTPRequestLabels("returns", "/api/v1/returns/:code", "GET"))
	assert.Empty(t, HTTPRequestLabels("", "", ""))
}
