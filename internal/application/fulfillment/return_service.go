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

// ReturnService opens customer returns and moves them through receipt.
// Returned quantities reach the ledger when a return is RECEIVED.
type ReturnService struct {
	returns   fulfillment.ReturnRepository
	orders    fulfillment.OrderRepository
	ledger    *CancellationLedger
	vendor    integration.VendorGateway
	validator shared.EntityValidator
	logger    *zap.Logger
}

// NewReturnService creates a new ReturnService
func NewReturnService(
	returns fulfillment.ReturnRepository,
	orders fulfillment.OrderRepository,
	ledger *CancellationLedger,
	vendor integration.VendorGateway,
	validator shared.EntityValidator,
	logger *zap.Logger,
) *ReturnService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnService{
		returns:   returns,
		orders:    orders,
		ledger:    ledger,
		vendor:    vendor,
		validator: validator,
		logger:    logger,
	}
}

// CreateReturn opens a return against a shipped or delivered order, stores it
// and registers it with the vendor. Units claimed by other open returns of
// the order cannot be returned again. A vendor failure leaves the return
// stored without a vendor code.
func (s *ReturnService) CreateReturn(ctx context.Context, req CreateReturnRequest) (*fulfillment.Return, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "return", "create",
		telemetry.WithAttribute(telemetry.SpanAttrOrderCode, req.OrderCode),
	)
	defer span.End()

	order, err := s.orders.FindByCode(ctx, req.OrderCode)
	if err != nil {
		return nil, err
	}
	if order.Status != fulfillment.OrderStatusShipped && order.Status != fulfillment.OrderStatusDelivered {
		return nil, shared.NewDomainError("INVALID_STATE", "Order "+order.Code+" has not been shipped")
	}

	r, err := fulfillment.NewReturn(order, req.ReturnCode)
	if err != nil {
		return nil, err
	}
	existing, err := s.returns.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	r.ExcludeClaimedBy(existing)
	for _, er := range req.Entries {
		line := order.LineByNumber(er.LineNumber)
		if line == nil {
			return nil, &shared.ValidationError{
				Entity: "Return",
				Fields: []shared.FieldError{{Field: "line_number", Message: "no such line on order " + order.Code}},
			}
		}
		entry, err := r.AddEntry(line, er.Quantity, er.Reason)
		if err != nil {
			return nil, err
		}
		for _, cr := range er.Consignments {
			leg := entry.AddConsignment(cr.TrackingID, cr.Carrier)
			for _, pr := range cr.Packages {
				leg.AddPackage(pr.PackageNumber, pr.WeightGrams)
			}
		}
	}

	if s.validator != nil {
		if err := s.validator.ValidateAndThrow(r); err != nil {
			return nil, err
		}
	}
	if err := s.returns.Save(ctx, r); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	code, ok := s.vendor.CreateReturn(ctx, newReturnRequest(r))
	if !ok {
		s.logger.Warn("Vendor did not accept return",
			zap.String("return_code", r.Code),
			zap.String("order_code", r.OrderCode),
		)
		return r, nil
	}
	r.VendorCode = code
	if err := s.returns.Save(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("Return created",
		zap.String("return_code", r.Code),
		zap.String("order_code", r.OrderCode),
		zap.String("vendor_code", r.VendorCode),
		zap.String("refund", r.TotalRefund().StringFixed(2)),
	)
	return r, nil
}

func newReturnRequest(r *fulfillment.Return) *integration.ReturnRequest {
	req := &integration.ReturnRequest{
		OrderCode:  r.OrderCode,
		ReturnCode: r.Code,
		Entries:    make([]integration.ReturnEntryRequest, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		req.Entries = append(req.Entries, integration.ReturnEntryRequest{
			LineNumber: e.LineNumber,
			Quantity:   e.Quantity,
			Reason:     e.Reason,
		})
	}
	return req
}

// UpdateReturnStatus moves a return to status. Reaching RECEIVED books the
// returned quantities against the order lines in the same transaction as the
// status change, so a retried receipt never books twice. The vendor is told
// on a best effort basis.
func (s *ReturnService) UpdateReturnStatus(ctx context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (*fulfillment.Return, error) {
	r, err := s.returns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "return", "update_status",
		telemetry.WithAttribute(telemetry.SpanAttrReturnCode, r.Code),
	)
	defer span.End()

	previous := r.Status
	if err := r.TransitionTo(status); err != nil {
		return nil, err
	}
	if previous == r.Status {
		return r, nil
	}

	if r.Status == fulfillment.ReturnStatusReceived {
		received, err := s.receive(ctx, r)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, wrapReturnError(r.Code, "receive", err)
		}
		if !received {
			return s.reloadAfterRace(ctx, r.ID, status)
		}
	} else {
		updated, err := s.returns.UpdateStatusByID(ctx, r.ID, r.Status)
		if err != nil {
			return nil, err
		}
		if !updated {
			return nil, shared.ErrNotFound
		}
	}

	if r.VendorCode != "" && !s.vendor.UpdateReturnStatus(ctx, r.VendorCode, r.Status.String()) {
		s.logger.Warn("Vendor did not acknowledge return status",
			zap.String("return_code", r.Code),
			zap.String("status", r.Status.String()),
		)
	}

	s.logger.Info("Return status changed",
		zap.String("return_code", r.Code),
		zap.String("from", previous.String()),
		zap.String("to", r.Status.String()),
	)
	return r, nil
}

func (s *ReturnService) receive(ctx context.Context, r *fulfillment.Return) (bool, error) {
	order, err := s.orders.FindByID(ctx, r.OrderID)
	if err != nil {
		return false, err
	}
	if err := s.ledger.CheckReturn(order, r); err != nil {
		return false, err
	}
	return s.returns.MarkReceived(ctx, r)
}

// reloadAfterRace handles a return that left its open state between load and
// receipt. Reaching the requested status already counts as success.
func (s *ReturnService) reloadAfterRace(ctx context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (*fulfillment.Return, error) {
	current, err := s.returns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	return nil, shared.NewDomainError("INVALID_STATE",
		"Return "+current.Code+" moved to "+current.Status.String()+" concurrently")
}

// GetReturn returns a return by id
func (s *ReturnService) GetReturn(ctx context.Context, id uuid.UUID) (*fulfillment.Return, error) {
	return s.returns.FindByID(ctx, id)
}

// ListByOrder returns the returns opened against an order
func (s *ReturnService) ListByOrder(ctx context.Context, orderCode string) ([]*fulfillment.Return, error) {
	order, err := s.orders.FindByCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	return s.returns.FindByOrderID(ctx, order.ID)
}
