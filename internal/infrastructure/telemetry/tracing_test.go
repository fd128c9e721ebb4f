package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestStartServiceSpan(t *testing.T) {
	recorder := setupTestTracer(t)

	ctx, span := StartServiceSpan(context.Background(), "consignment", "create",
		WithAttribute(SpanAttrTrackingID, "00340434161094042557"),
		WithAttribute(SpanAttrQuantity, 3),
		WithSpanKind(trace.SpanKindServer),
	)
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "consignment.create", ended[0].Name())
	assert.Equal(t, trace.SpanKindServer, ended[0].SpanKind())
	attrs := attrMap(ended[0].Attributes())
	assert.Equal(t, "00340434161094042557", attrs[SpanAttrTrackingID].AsString())
	assert.Equal(t, int64(3), attrs[SpanAttrQuantity].AsInt64())
}

func TestSpanHelpers(t *testing.T) {
	recorder := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "tracking.process")
	SetAttributes(span, SpanAttrCarrier, "DHL", 42, "ignored", SpanAttrAttempt, 2)
	SetAttribute(span, SpanAttrCarrierStatus, "delivered")
	AddEvent(span, "delivery_reported", SpanAttrOrderCode, "MK-1001")
	RecordError(span, errors.New("vendor down"))
	RecordError(span, nil)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	attrs := attrMap(s.Attributes())
	assert.Equal(t, "DHL", attrs[SpanAttrCarrier].AsString())
	assert.Equal(t, int64(2), attrs[SpanAttrAttempt].AsInt64())
	assert.Equal(t, "delivered", attrs[SpanAttrCarrierStatus].AsString())
	assert.Len(t, attrs, 3)
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "vendor down", s.Status().Description)

	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "delivery_reported")
	assert.Contains(t, names, "exception")
}

func TestSpanHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, "k", "v")
		SetAttribute(nil, "k", "v")
		AddEvent(nil, "e")
		RecordError(nil, errors.New("x"))
	})
	assert.Empty(t, GetTraceID(context.Background()))
}

type stringer struct{}

func (stringer) String() string { return "S" }

func TestToAttribute(t *testing.T) {
	assert.Equal(t, "S", toAttribute("k", stringer{}).Value.AsString())
	assert.Equal(t, true, toAttribute("k", true).Value.AsBool())
	assert.Equal(t, []string{"a"}, toAttribute("k", []string{"a"}).Value.AsStringSlice())
	assert.Equal(t, "[1 2]", toAttribute("k", []uint{1, 2}).Value.AsString())
}
