package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotRegisteredWithVendor is returned when a consignment has no vendor code yet
var ErrNotRegisteredWithVendor = errors.New("fulfillment: consignment is not registered with the vendor")

// ConsignmentService drives consignment creation, cancellation and carrier
// status changes, reconciling the owning order after each change.
// Local state is always persisted before the vendor is told.
type ConsignmentService struct {
	consignments fulfillment.ConsignmentRepository
	orders       fulfillment.OrderRepository
	vendor       integration.VendorGateway
	validator    shared.EntityValidator
	syncMetrics  *telemetry.SyncMetrics
	logger       *zap.Logger
}

// NewConsignmentService creates a new ConsignmentService
func NewConsignmentService(
	consignments fulfillment.ConsignmentRepository,
	orders fulfillment.OrderRepository,
	vendor integration.VendorGateway,
	validator shared.EntityValidator,
	logger *zap.Logger,
) *ConsignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsignmentService{
		consignments: consignments,
		orders:       orders,
		vendor:       vendor,
		validator:    validator,
		logger:       logger,
	}
}

// SetSyncMetrics sets the sync metrics collector
func (s *ConsignmentService) SetSyncMetrics(m *telemetry.SyncMetrics) {
	s.syncMetrics = m
}

// CreateConsignment validates and stores a new consignment, marks its order
// SHIPPED and registers the consignment with the vendor. A tracking ID that
// is already known yields shared.ErrAlreadyExists.
func (s *ConsignmentService) CreateConsignment(ctx context.Context, c *fulfillment.Consignment) error {
	if c == nil {
		return shared.ErrConsignmentIsNull
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "consignment", "create",
		telemetry.WithAttribute(telemetry.SpanAttrTrackingID, c.TrackingID),
		telemetry.WithAttribute(telemetry.SpanAttrOrderCode, c.OrderCode),
	)
	defer span.End()

	if s.validator != nil {
		if err := s.validator.ValidateAndThrow(c); err != nil {
			return err
		}
	}

	exists, err := s.consignments.ExistsByTrackingID(ctx, c.TrackingID)
	if err != nil {
		return err
	}
	if exists {
		return shared.ErrAlreadyExists
	}

	if err := s.consignments.Save(ctx, c); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if _, _, err := s.reconcileOrder(ctx, c.OrderID); err != nil {
		telemetry.RecordError(span, err)
		return wrapConsignmentError(c, "create", err)
	}
	if s.syncMetrics != nil {
		s.syncMetrics.RecordConsignmentCreated(ctx, c.Carrier)
	}

	if err := s.registerWithVendor(ctx, c); err != nil {
		telemetry.RecordError(span, err)
		return wrapConsignmentError(c, "create", err)
	}
	return nil
}

// registerWithVendor sends c to the vendor and records the outcome. A vendor
// that accepted c without a usable reply leaves it ACCEPTED for later lookup.
func (s *ConsignmentService) registerWithVendor(ctx context.Context, c *fulfillment.Consignment) error {
	result, err := s.vendor.CreateConsignment(ctx, newConsignmentRequest(c))
	if err != nil {
		var apiErr *integration.APIError
		if !errors.As(err, &apiErr) || !apiErr.Created {
			return err
		}
		c.MarkVendorRegistered("")
		if err := s.consignments.Save(ctx, c); err != nil {
			return err
		}
		s.logger.Warn("Vendor accepted consignment but the response was unusable",
			zap.String("tracking_id", c.TrackingID),
			zap.String("order_code", c.OrderCode),
			zap.Error(err),
		)
		return nil
	}

	c.MarkVendorRegistered(result.Code)
	if err := s.consignments.Save(ctx, c); err != nil {
		return err
	}

	s.logger.Info("Consignment registered with vendor",
		zap.String("tracking_id", c.TrackingID),
		zap.String("order_code", c.OrderCode),
		zap.String("vendor_code", c.VendorCode),
		zap.Int("entries", len(c.Entries)),
	)
	return nil
}

// resolveVendorCode asks the vendor for the code of a consignment it may
// hold. It returns true once c carries a vendor code.
func (s *ConsignmentService) resolveVendorCode(ctx context.Context, c *fulfillment.Consignment) (bool, error) {
	if c.IsRegisteredWithVendor() {
		return true, nil
	}
	found, err := s.vendor.FindConsignment(ctx, c.OrderCode, c.TrackingID)
	if err != nil {
		return false, err
	}
	if found == nil || found.Code == "" {
		return false, nil
	}
	c.MarkVendorRegistered(found.Code)
	if err := s.consignments.Save(ctx, c); err != nil {
		return false, err
	}
	s.logger.Info("Vendor consignment code resolved",
		zap.String("tracking_id", c.TrackingID),
		zap.String("vendor_code", c.VendorCode),
	)
	return true, nil
}

func newConsignmentRequest(c *fulfillment.Consignment) *integration.ConsignmentRequest {
	req := &integration.ConsignmentRequest{
		OrderCode:  c.OrderCode,
		TrackingID: c.TrackingID,
		Carrier:    c.Carrier,
		ShippedAt:  c.ShippedAt,
		Entries:    make([]integration.ConsignmentEntryRequest, 0, len(c.Entries)),
	}
	for _, e := range c.Entries {
		req.Entries = append(req.Entries, integration.ConsignmentEntryRequest{
			LineNumber: e.LineNumber,
			Quantity:   e.Quantity,
		})
	}
	return req
}

// CancelConsignment cancels a consignment on explicit user request.
// A consignment the vendor knows about is cancelled remotely first; the
// local status only changes once the vendor acknowledged. When the vendor
// code is missing it is looked up first, and a consignment the vendor holds
// under an unresolved code is refused with ErrVendorCodeUnknown.
func (s *ConsignmentService) CancelConsignment(ctx context.Context, id uuid.UUID) (*fulfillment.Consignment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "consignment", "cancel",
		telemetry.WithAttribute(telemetry.SpanAttrConsignmentID, id.String()),
	)
	defer span.End()

	c, err := s.consignments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case fulfillment.ConsignmentStatusCancelled:
		return c, nil
	case fulfillment.ConsignmentStatusDelivered, fulfillment.ConsignmentStatusReturned:
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot cancel consignment in status "+c.Status.String())
	}

	registered, err := s.resolveVendorCode(ctx, c)
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.IsRepositoryError(err) {
			return nil, err
		}
		return nil, wrapConsignmentError(c, "cancel", fmt.Errorf("%w: %w", ErrVendorRejected, err))
	}
	switch {
	case registered:
		if !s.vendor.CancelConsignment(ctx, c.VendorCode) {
			telemetry.RecordError(span, ErrVendorRejected)
			return nil, wrapConsignmentError(c, "cancel", ErrVendorRejected)
		}
	case c.VendorHoldsConsignment():
		return nil, ErrVendorCodeUnknown
	}

	if err := c.Cancel(); err != nil {
		return nil, err
	}
	updated, err := s.consignments.UpdateStatusByID(ctx, c.ID, c.Status, c.CarrierStatusCode)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, shared.ErrNotFound
	}

	order, changed, err := s.reconcileOrder(ctx, c.OrderID)
	if err != nil {
		return nil, wrapConsignmentError(c, "cancel", err)
	}
	if changed && order.Status == fulfillment.OrderStatusCancelled {
		if !s.vendor.PushOrderStatus(ctx, order.Code, integration.VendorOrderStatusCancelled) {
			s.logger.Warn("Vendor did not acknowledge order cancellation",
				zap.String("order_code", order.Code),
			)
		}
	}

	s.logger.Info("Consignment cancelled",
		zap.String("tracking_id", c.TrackingID),
		zap.String("order_code", c.OrderCode),
	)
	return c, nil
}

// RegistrationResult summarizes one RegisterPending run
type RegistrationResult struct {
	Registered int `json:"registered"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
}

// RegisterPending brings the vendor in line with consignments whose vendor
// code is unknown. Codes the vendor already holds are looked up first; live
// consignments the vendor never accepted are sent again, and locally
// cancelled ones it turns out to hold are cancelled remotely.
// Storage failures abort the run.
func (s *ConsignmentService) RegisterPending(ctx context.Context) (*RegistrationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "consignment", "register_pending")
	defer span.End()

	result := &RegistrationResult{}
	pending, err := s.consignments.FindPendingVendorSync(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return result, err
	}

	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.syncWithVendor(ctx, c, result); err != nil {
			if shared.IsRepositoryError(err) {
				telemetry.RecordError(span, err)
				return result, err
			}
			result.Failed++
			s.logger.Warn("Vendor registration failed",
				zap.String("tracking_id", c.TrackingID),
				zap.String("order_code", c.OrderCode),
				zap.Error(err),
			)
		}
	}

	if len(pending) > 0 {
		s.logger.Info("Pending consignments synced with vendor",
			zap.Int("pending", len(pending)),
			zap.Int("registered", result.Registered),
			zap.Int("resolved", result.Resolved),
			zap.Int("unresolved", result.Unresolved),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *ConsignmentService) syncWithVendor(ctx context.Context, c *fulfillment.Consignment, result *RegistrationResult) error {
	resolved, err := s.resolveVendorCode(ctx, c)
	if err != nil {
		return err
	}

	switch {
	case resolved:
		result.Resolved++
		if c.Status == fulfillment.ConsignmentStatusCancelled && !s.vendor.CancelConsignment(ctx, c.VendorCode) {
			return ErrVendorRejected
		}
	case c.VendorHoldsConsignment():
		result.Unresolved++
	case c.Status != fulfillment.ConsignmentStatusCancelled:
		if err := s.registerWithVendor(ctx, c); err != nil {
			return err
		}
		if c.IsRegisteredWithVendor() {
			result.Registered++
		} else {
			result.Unresolved++
		}
	}
	return nil
}

// ApplyCarrierStatus records a carrier status code on c, persists it and
// reconciles the order when the consignment status moved.
func (s *ConsignmentService) ApplyCarrierStatus(ctx context.Context, c *fulfillment.Consignment, code string) (bool, error) {
	if c == nil {
		return false, shared.ErrConsignmentIsNull
	}

	changed := c.ApplyCarrierStatus(code)
	updated, err := s.consignments.UpdateStatusByID(ctx, c.ID, c.Status, c.CarrierStatusCode)
	if err != nil {
		return false, err
	}
	if !updated {
		return false, shared.ErrNotFound
	}
	if !changed {
		return false, nil
	}

	s.logger.Info("Consignment status changed",
		zap.String("tracking_id", c.TrackingID),
		zap.String("carrier_status", code),
		zap.String("status", c.Status.String()),
	)

	if _, _, err := s.reconcileOrder(ctx, c.OrderID); err != nil {
		return true, wrapConsignmentError(c, "apply_status", err)
	}
	return true, nil
}

// ReportDelivery tells the vendor a delivered consignment arrived. It is a
// no-op once the vendor acknowledged a previous report.
func (s *ConsignmentService) ReportDelivery(ctx context.Context, c *fulfillment.Consignment) error {
	if c == nil {
		return shared.ErrConsignmentIsNull
	}
	if !c.IsDelivered() {
		return shared.NewDomainError("INVALID_STATE", "Consignment "+c.TrackingID+" is not delivered")
	}
	if c.DeliveryReported {
		return nil
	}
	if !c.IsRegisteredWithVendor() {
		return wrapConsignmentError(c, "report_delivery", ErrNotRegisteredWithVendor)
	}
	if !s.vendor.ReportDelivery(ctx, c.VendorCode) {
		return wrapConsignmentError(c, "report_delivery", ErrVendorRejected)
	}

	c.MarkDeliveryReported()
	if err := s.consignments.Save(ctx, c); err != nil {
		return err
	}
	s.logger.Info("Delivery reported to vendor",
		zap.String("tracking_id", c.TrackingID),
		zap.String("vendor_code", c.VendorCode),
	)
	return nil
}

// ListOpen returns consignments still travelling
func (s *ConsignmentService) ListOpen(ctx context.Context) ([]*fulfillment.Consignment, error) {
	return s.consignments.FindByStatus(ctx, fulfillment.OpenConsignmentStatuses()...)
}

// ListUnreportedDeliveries returns delivered consignments the vendor has not
// acknowledged yet
func (s *ConsignmentService) ListUnreportedDeliveries(ctx context.Context) ([]*fulfillment.Consignment, error) {
	delivered, err := s.consignments.FindByStatus(ctx, fulfillment.ConsignmentStatusDelivered)
	if err != nil {
		return nil, err
	}
	pending := delivered[:0]
	for _, c := range delivered {
		if !c.DeliveryReported {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// FindByTrackingID returns the consignment with the given carrier tracking ID
func (s *ConsignmentService) FindByTrackingID(ctx context.Context, trackingID string) (*fulfillment.Consignment, error) {
	return s.consignments.FindByTrackingID(ctx, trackingID)
}

// reconcileOrder rederives the order status from all its consignments and
// persists it when it changed
func (s *ConsignmentService) reconcileOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.Order, bool, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	siblings, err := s.consignments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	previous := order.Status
	if !order.Reconcile(siblings) {
		return order, false, nil
	}
	updated, err := s.orders.UpdateStatusByID(ctx, order.ID, order.Status)
	if err != nil {
		return nil, false, err
	}
	if !updated {
		return nil, false, shared.ErrNotFound
	}

	s.logger.Info("Order status reconciled",
		zap.String("order_code", order.Code),
		zap.String("from", previous.String()),
		zap.String("to", order.Status.String()),
	)
	return order, true, nil
}
