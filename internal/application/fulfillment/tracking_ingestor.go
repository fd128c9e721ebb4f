package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Tracking event sources reported to metrics
const (
	SourceWebhook = "webhook"
	SourcePoll    = "poll"
	SourceFeed    = "feed"
)

// Tracking event outcomes reported to metrics
const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeUnknown   = "unknown_tracking_id"
	OutcomeDuplicate = "duplicate"
)

// TrackingIngestorConfig configures a TrackingIngestor
type TrackingIngestorConfig struct {
	// CustomerNumber is this shop's customer number at the carrier.
	// Feed records for other customers are dropped.
	CustomerNumber string
	// Idempotency controls duplicate webhook suppression
	Idempotency shared.IdempotencyConfig
}

// TrackingIngestor is the entry point for carrier-originated status data:
// single webhook events and batch feed records
type TrackingIngestor struct {
	consignmentSvc *ConsignmentService
	orders         fulfillment.OrderRepository
	consignments   fulfillment.ConsignmentRepository
	idempotency    shared.IdempotencyStore
	config         TrackingIngestorConfig
	syncMetrics    *telemetry.SyncMetrics
	logger         *zap.Logger
}

// NewTrackingIngestor creates a new TrackingIngestor. idempotency may be nil.
func NewTrackingIngestor(
	consignmentSvc *ConsignmentService,
	orders fulfillment.OrderRepository,
	consignments fulfillment.ConsignmentRepository,
	idempotency shared.IdempotencyStore,
	config TrackingIngestorConfig,
	logger *zap.Logger,
) *TrackingIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Idempotency.TTL <= 0 {
		config.Idempotency.TTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &TrackingIngestor{
		consignmentSvc: consignmentSvc,
		orders:         orders,
		consignments:   consignments,
		idempotency:    idempotency,
		config:         config,
		logger:         logger.With(zap.String("component", "tracking_ingestor")),
	}
}

// SetSyncMetrics sets the sync metrics collector
func (t *TrackingIngestor) SetSyncMetrics(m *telemetry.SyncMetrics) {
	t.syncMetrics = m
}

// ProcessTrackingEvent applies one carrier status event. Unknown tracking IDs
// are ignored. A delivered-type code also notifies the vendor; a failed
// notification is logged and does not fail the event.
func (t *TrackingIngestor) ProcessTrackingEvent(ctx context.Context, trackingID, statusCode string) error {
	trackingID = strings.TrimSpace(trackingID)
	statusCode = strings.TrimSpace(statusCode)
	if trackingID == "" || statusCode == "" {
		return shared.ErrInvalidArgument
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "tracking", "process_event",
		telemetry.WithAttribute(telemetry.SpanAttrTrackingID, trackingID),
		telemetry.WithAttribute(telemetry.SpanAttrCarrierStatus, statusCode),
	)
	defer span.End()

	key := shared.TrackingEventKey(trackingID, statusCode)
	if t.seen(ctx, key) {
		t.logger.Debug("Duplicate tracking event ignored", zap.String("tracking_id", trackingID))
		t.record(ctx, SourceWebhook, OutcomeDuplicate)
		return nil
	}

	c, err := t.consignments.FindByTrackingID(ctx, trackingID)
	if errors.Is(err, shared.ErrNotFound) {
		t.logger.Debug("Tracking event for unknown consignment ignored",
			zap.String("tracking_id", trackingID),
			zap.String("carrier_status", statusCode),
		)
		t.record(ctx, SourceWebhook, OutcomeUnknown)
		return nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	changed, err := t.consignmentSvc.ApplyCarrierStatus(ctx, c, statusCode)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if fulfillment.IsDeliveredCarrierCode(statusCode) && c.IsDelivered() {
		if err := t.consignmentSvc.ReportDelivery(ctx, c); err != nil {
			t.logger.Warn("Delivery notification failed",
				zap.String("tracking_id", trackingID),
				zap.Error(err),
			)
		}
	}

	t.markProcessed(ctx, key)
	if changed {
		t.record(ctx, SourceWebhook, OutcomeApplied)
	} else {
		t.record(ctx, SourceWebhook, OutcomeUnchanged)
	}
	return nil
}

func (t *TrackingIngestor) seen(ctx context.Context, key string) bool {
	if t.idempotency == nil || !t.config.Idempotency.Enabled {
		return false
	}
	processed, err := t.idempotency.IsProcessed(ctx, key)
	if err != nil {
		t.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return processed
}

func (t *TrackingIngestor) markProcessed(ctx context.Context, key string) {
	if t.idempotency == nil || !t.config.Idempotency.Enabled {
		return
	}
	if _, err := t.idempotency.MarkProcessed(ctx, key, t.config.Idempotency.TTL); err != nil {
		t.logger.Warn("Failed to mark tracking event processed", zap.String("key", key), zap.Error(err))
	}
}

func (t *TrackingIngestor) record(ctx context.Context, source, outcome string) {
	if t.syncMetrics != nil {
		t.syncMetrics.RecordTrackingEvent(ctx, source, outcome)
	}
}

// ImportBatch turns carrier feed records into new, unsaved consignments.
// Records for other customer numbers are dropped. Records are grouped by
// tracking ID; each group resolves its order and matches lines by normalized
// product code. Unmatched lines are skipped, and a group with no order, no
// matched line, or an already known tracking ID is dropped.
func (t *TrackingIngestor) ImportBatch(ctx context.Context, records []integration.FeedRecord) ([]*fulfillment.Consignment, error) {
	groups, order := t.groupByTrackingID(records)

	result := make([]*fulfillment.Consignment, 0, len(order))
	for _, trackingID := range order {
		c, err := t.buildConsignment(ctx, trackingID, groups[trackingID])
		if err != nil {
			return result, err
		}
		if c != nil {
			result = append(result, c)
		}
	}

	t.logger.Info("Carrier feed batch resolved",
		zap.Int("records", len(records)),
		zap.Int("groups", len(order)),
		zap.Int("consignments", len(result)),
	)
	return result, nil
}

func (t *TrackingIngestor) groupByTrackingID(records []integration.FeedRecord) (map[string][]integration.FeedRecord, []string) {
	groups := make(map[string][]integration.FeedRecord)
	var order []string
	for _, r := range records {
		if t.config.CustomerNumber != "" && strings.TrimSpace(r.CustomerNumber) != t.config.CustomerNumber {
			t.logger.Warn("Feed record for foreign customer number dropped",
				zap.Int("row", r.RowNumber),
				zap.String("customer_number", r.CustomerNumber),
			)
			continue
		}
		id := strings.TrimSpace(r.TrackingID)
		if id == "" {
			continue
		}
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], r)
	}
	return groups, order
}

func (t *TrackingIngestor) buildConsignment(ctx context.Context, trackingID string, records []integration.FeedRecord) (*fulfillment.Consignment, error) {
	log := t.logger.With(zap.String("tracking_id", trackingID))

	exists, err := t.consignments.ExistsByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Debug("Feed group already imported")
		return nil, nil
	}

	first := records[0]
	order, err := t.orders.FindByCode(ctx, strings.TrimSpace(first.OrderCode))
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("Feed group references unknown order", zap.String("order_code", first.OrderCode))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c, err := fulfillment.NewConsignment(order, trackingID, first.Carrier, first.ShippedAt)
	if err != nil {
		log.Warn("Feed group rejected", zap.Error(err))
		return nil, nil
	}

	for _, r := range records {
		line := matchLine(order, r.ArticleNumber)
		if line == nil {
			log.Warn("Feed line has no matching order line",
				zap.Int("row", r.RowNumber),
				zap.String("order_code", order.Code),
				zap.String("article_number", r.ArticleNumber),
			)
			continue
		}
		if err := c.AddEntry(line, r.Quantity); err != nil {
			log.Warn("Feed line skipped",
				zap.Int("row", r.RowNumber),
				zap.Int("line_number", line.LineNumber),
				zap.Error(err),
			)
		}
	}

	if len(c.Entries) == 0 {
		log.Warn("Feed group matched no order lines", zap.String("order_code", order.Code))
		return nil, nil
	}
	return c, nil
}

func matchLine(order *fulfillment.Order, articleNumber string) *fulfillment.OrderLine {
	want := NormalizeProductCode(articleNumber)
	if want == "" {
		return nil
	}
	for _, l := range order.Lines {
		if l != nil && NormalizeProductCode(l.ProductCode) == want {
			return l
		}
	}
	return nil
}
