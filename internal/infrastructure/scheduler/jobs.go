package scheduler

import (
	"context"

	fulfillmentapp "github.com/erp/marketsync/internal/application/fulfillment"
)

// OrderImporter pulls open orders from the marketplace
type OrderImporter interface {
	ImportOpenOrders(ctx context.Context) (*fulfillmentapp.ImportResult, error)
}

// TrackingPoller polls the carrier for open consignments
type TrackingPoller interface {
	PollOpen(ctx context.Context) (*fulfillmentapp.PollResult, error)
}

// FetchOrdersJob imports open marketplace orders
type FetchOrdersJob struct {
	orders OrderImporter
}

// NewFetchOrdersJob creates a FetchOrdersJob
func NewFetchOrdersJob(orders OrderImporter) *FetchOrdersJob {
	return &FetchOrdersJob{orders: orders}
}

// Name implements Job
func (j *FetchOrdersJob) Name() string { return JobFetchOrders }

// Run implements Job. Invalid vendor orders count as failures.
func (j *FetchOrdersJob) Run(ctx context.Context) (Result, error) {
	res, err := j.orders.ImportOpenOrders(ctx)
	if res == nil {
		return Result{}, err
	}
	return Result{
		Processed: res.Imported,
		Failed:    res.Invalid,
		Skipped:   res.Skipped,
		Detail:    res,
	}, err
}

// PollTrackingJob refreshes carrier status for every open consignment
type PollTrackingJob struct {
	poller TrackingPoller
}

// NewPollTrackingJob creates a PollTrackingJob
func NewPollTrackingJob(poller TrackingPoller) *PollTrackingJob {
	return &PollTrackingJob{poller: poller}
}

// Name implements Job
func (j *PollTrackingJob) Name() string { return JobPollTracking }

// Run implements Job. Lookups without carrier data count as skipped.
func (j *PollTrackingJob) Run(ctx context.Context) (Result, error) {
	res, err := j.poller.PollOpen(ctx)
	if res == nil {
		return Result{}, err
	}
	return Result{
		Processed: res.Polled - res.NoData - res.Failed,
		Failed:    res.Failed,
		Skipped:   res.NoData,
		Detail:    res,
	}, err
}
