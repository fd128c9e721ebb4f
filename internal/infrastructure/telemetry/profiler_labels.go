package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Values must stay low cardinality: job names, route
// patterns and operation names are fine, order codes and tracking IDs are not.
const (
	ProfilingLabelJob       = "job"
	ProfilingLabelOperation = "operation"
	ProfilingLabelRoute     = "route"
	ProfilingLabelMethod    = "method"
	ProfilingLabelResource  = "resource"
)

// MaxLabelValueLength truncates longer label values
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped by WithProfilingLabels. Read-only.
var HighCardinalityLabels = map[string]bool{
	SpanAttrOrderID:       true,
	SpanAttrOrderCode:     true,
	SpanAttrConsignmentID: true,
	SpanAttrTrackingID:    true,
	SpanAttrReturnCode:    true,
	"request_id":          true,
	"run_id":              true,
	"trace_id":            true,
	"span_id":             true,
}

// WithProfilingLabels runs fn with Pyroscope labels attached to the
// goroutine, so CPU and allocation samples taken inside fn can be filtered
// by them. The map is copied; callers may reuse it.
//
//	telemetry.WithProfilingLabels(ctx, telemetry.JobLabels("poll_tracking"), func(ctx context.Context) {
//	    res, err = job.Run(ctx)
//	})
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels drops empty and high-cardinality entries, normalizes keys
// to snake_case and truncates values. Pairs come out sorted by key.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		normalized := sanitizeLabelKey(key)
		if normalized == "" || value == "" || HighCardinalityLabels[normalized] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		pairs = append(pairs, normalized, value)
	}
	return pairs
}

func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(key)
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}

// JobLabels labels a scheduler job run
func JobLabels(job string) map[string]string {
	return map[string]string{ProfilingLabelJob: job}
}

// HTTPRequestLabels labels an API request by its route pattern
func HTTPRequestLabels(resource, route, method string) map[string]string {
	labels := make(map[string]string, 3)
	if resource != "" {
		labels[ProfilingLabelResource] = resource
	}
	if route != "" {
		labels[ProfilingLabelRoute] = route
	}
	if method != "" {
		labels[ProfilingLabelMethod] = method
	}
	return labels
}

// OperationLabels labels a named operation, plus any extra labels
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	maps.Copy(labels, extra)
	labels[ProfilingLabelOperation] = operation
	return labels
}
