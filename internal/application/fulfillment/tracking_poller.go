package fulfillment

import (
	"context"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PollResult summarizes one tracking poll run
type PollResult struct {
	// Registered counts consignments whose vendor code became known this run
	Registered int `json:"registered"`
	Polled     int `json:"polled"`
	Changed    int `json:"changed"`
	NoData     int `json:"no_data"`
	Reported   int `json:"reported"`
	Failed     int `json:"failed"`
}

// TrackingPoller polls the carrier for every open consignment. Spacing
// between lookups is enforced by the tracker.
type TrackingPoller struct {
	consignmentSvc *ConsignmentService
	tracker        integration.CarrierTracker
	syncMetrics    *telemetry.SyncMetrics
	logger         *zap.Logger
}

// NewTrackingPoller creates a new TrackingPoller
func NewTrackingPoller(consignmentSvc *ConsignmentService, tracker integration.CarrierTracker, logger *zap.Logger) *TrackingPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingPoller{
		consignmentSvc: consignmentSvc,
		tracker:        tracker,
		logger:         logger.With(zap.String("component", "tracking_poller")),
	}
}

// SetSyncMetrics sets the sync metrics collector
func (p *TrackingPoller) SetSyncMetrics(m *telemetry.SyncMetrics) {
	p.syncMetrics = m
}

// PollOpen first registers consignments the vendor does not know yet, then
// looks up the carrier status of every open consignment and applies it.
// Delivered consignments are reported to the vendor, and deliveries a
// previous run failed to report are retried. Storage failures abort the run.
func (p *TrackingPoller) PollOpen(ctx context.Context) (*PollResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "tracking", "poll_open")
	defer span.End()

	result := &PollResult{}

	registration, err := p.consignmentSvc.RegisterPending(ctx)
	if registration != nil {
		result.Registered = registration.Registered + registration.Resolved
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	open, err := p.consignmentSvc.ListOpen(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	tried := make(map[uuid.UUID]bool)
	for _, c := range open {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Polled++

		code, ok := p.tracker.GetStatus(ctx, c.TrackingID)
		if !ok {
			result.NoData++
			continue
		}

		changed, err := p.consignmentSvc.ApplyCarrierStatus(ctx, c, code)
		if err != nil {
			if shared.IsRepositoryError(err) {
				telemetry.RecordError(span, err)
				return result, err
			}
			result.Failed++
			p.logger.Warn("Failed to apply polled status",
				zap.String("tracking_id", c.TrackingID),
				zap.Error(err),
			)
			continue
		}
		if changed {
			result.Changed++
			p.record(ctx, OutcomeApplied)
		} else {
			p.record(ctx, OutcomeUnchanged)
		}

		if c.IsDelivered() && !c.DeliveryReported {
			tried[c.ID] = true
			if p.report(ctx, c) {
				result.Reported++
			}
		}
	}

	pending, err := p.consignmentSvc.ListUnreportedDeliveries(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}
	for _, c := range pending {
		if tried[c.ID] {
			continue
		}
		if p.report(ctx, c) {
			result.Reported++
		}
	}

	p.logger.Info("Tracking poll finished",
		zap.Int("registered", result.Registered),
		zap.Int("polled", result.Polled),
		zap.Int("changed", result.Changed),
		zap.Int("no_data", result.NoData),
		zap.Int("reported", result.Reported),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (p *TrackingPoller) report(ctx context.Context, c *fulfillment.Consignment) bool {
	if err := p.consignmentSvc.ReportDelivery(ctx, c); err != nil {
		p.logger.Warn("Delivery notification failed",
			zap.String("tracking_id", c.TrackingID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (p *TrackingPoller) record(ctx context.Context, outcome string) {
	if p.syncMetrics != nil {
		p.syncMetrics.RecordTrackingEvent(ctx, SourcePoll, outcome)
	}
}
