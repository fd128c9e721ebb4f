package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics collector is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SyncMetrics records the order sync instruments: vendor calls, token
// retries, tracking events, consignments, imported orders and job runs.
type SyncMetrics struct {
	vendorCallDuration  *Histogram
	vendorCallsTotal    *Counter
	tokenRetriesTotal   *Counter
	trackingEventsTotal *Counter
	consignmentsCreated *Counter
	ordersImportedTotal *Counter
	jobRunsTotal        *Counter
	jobDuration         *Histogram
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &SyncMetrics{}
	var err error

	m.vendorCallDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "vendor_call_duration_seconds",
		Description: "Duration of marketplace API calls",
		Unit:        "s",
		Boundaries:  VendorDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	m.vendorCallsTotal, err = NewCounter(meter, "vendor_calls_total", "Total marketplace API calls", "{call}")
	if err != nil {
		return nil, err
	}
	m.tokenRetriesTotal, err = NewCounter(meter, "vendor_token_retries_total", "Calls retried after a 401 with a fresh token", "{retry}")
	if err != nil {
		return nil, err
	}
	m.trackingEventsTotal, err = NewCounter(meter, "tracking_events_total", "Carrier tracking events by source and outcome", "{event}")
	if err != nil {
		return nil, err
	}
	m.consignmentsCreated, err = NewCounter(meter, "consignments_created_total", "Consignments created", "{consignment}")
	if err != nil {
		return nil, err
	}
	m.ordersImportedTotal, err = NewCounter(meter, "orders_imported_total", "Orders imported from the marketplace", "{order}")
	if err != nil {
		return nil, err
	}
	m.jobRunsTotal, err = NewCounter(meter, "sync_job_runs_total", "Scheduled sync job runs by status", "{run}")
	if err != nil {
		return nil, err
	}
	m.jobDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "sync_job_duration_seconds",
		Description: "Duration of scheduled sync job runs",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordVendorCall records one marketplace call. status is the HTTP status
// or 0 for a transport failure.
func (m *SyncMetrics) RecordVendorCall(ctx context.Context, operation string, status int, d time.Duration) {
	attrs := []attribute.KeyValue{
		AttrOperation.String(operation),
		AttrHTTPStatusCode.String(strconv.Itoa(status)),
	}
	m.vendorCallDuration.RecordDuration(ctx, d, attrs...)
	m.vendorCallsTotal.Inc(ctx, attrs...)
}

// RecordTokenRetry records a call retried after an auth failure
func (m *SyncMetrics) RecordTokenRetry(ctx context.Context, operation string) {
	m.tokenRetriesTotal.Inc(ctx, AttrOperation.String(operation))
}

// RecordTrackingEvent records a processed tracking event
func (m *SyncMetrics) RecordTrackingEvent(ctx context.Context, source, outcome string) {
	m.trackingEventsTotal.Inc(ctx, AttrSource.String(source), AttrOutcome.String(outcome))
}

// RecordConsignmentCreated records a new consignment
func (m *SyncMetrics) RecordConsignmentCreated(ctx context.Context, carrier string) {
	m.consignmentsCreated.Inc(ctx, AttrCarrier.String(carrier))
}

// RecordOrdersImported adds n imported orders
func (m *SyncMetrics) RecordOrdersImported(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.ordersImportedTotal.Add(ctx, int64(n))
}

// RecordJobRun records one finished scheduler run
func (m *SyncMetrics) RecordJobRun(ctx context.Context, job, status string, d time.Duration) {
	attrs := []attribute.KeyValue{AttrJob.String(job), AttrStatus.String(status)}
	m.jobRunsTotal.Inc(ctx, attrs...)
	m.jobDuration.RecordDuration(ctx, d, attrs...)
}
