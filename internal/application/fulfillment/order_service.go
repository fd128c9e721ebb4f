package fulfillment

import (
	"context"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultSearchLimit caps order search results when no limit is given
const DefaultSearchLimit = 50

// ImportResult summarizes one run of ImportOpenOrders
type ImportResult struct {
	Fetched  int `json:"fetched"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

// OrderService accepts open marketplace orders and handles order-level
// cancellation
type OrderService struct {
	orders      fulfillment.OrderRepository
	vendor      integration.VendorGateway
	ledger      *CancellationLedger
	validator   shared.EntityValidator
	syncMetrics *telemetry.SyncMetrics
	logger      *zap.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orders fulfillment.OrderRepository,
	vendor integration.VendorGateway,
	ledger *CancellationLedger,
	validator shared.EntityValidator,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:    orders,
		vendor:    vendor,
		ledger:    ledger,
		validator: validator,
		logger:    logger,
	}
}

// SetSyncMetrics sets the sync metrics collector
func (s *OrderService) SetSyncMetrics(m *telemetry.SyncMetrics) {
	s.syncMetrics = m
}

// ImportOpenOrders fetches open orders from the vendor, stores each new one
// as IN_PROGRESS and acknowledges it. An invalid order is logged and skipped;
// a storage failure aborts the run.
func (s *OrderService) ImportOpenOrders(ctx context.Context) (*ImportResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "import_open")
	defer span.End()

	remote := s.vendor.FetchOpenOrders(ctx)
	result := &ImportResult{Fetched: len(remote)}

	for i := range remote {
		vo := &remote[i]

		exists, err := s.orders.ExistsByCode(ctx, vo.Code)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, err
		}
		if exists {
			result.Skipped++
			continue
		}

		order, err := s.buildOrder(vo)
		if err != nil {
			s.logger.Warn("Skipping invalid vendor order",
				zap.String("order_code", vo.Code),
				zap.Error(err),
			)
			result.Invalid++
			continue
		}

		if err := order.TransitionTo(fulfillment.OrderStatusInProgress); err != nil {
			return result, wrapOrderError(order.Code, "import", err)
		}
		if err := s.orders.Save(ctx, order); err != nil {
			telemetry.RecordError(span, err)
			return result, wrapOrderError(order.Code, "import", err)
		}
		result.Imported++

		if !s.vendor.PushOrderStatus(ctx, order.Code, integration.VendorOrderStatusInProgress) {
			s.logger.Warn("Vendor did not acknowledge order acceptance",
				zap.String("order_code", order.Code),
			)
		}
	}

	if s.syncMetrics != nil {
		s.syncMetrics.RecordOrdersImported(ctx, result.Imported)
	}
	telemetry.SetAttributes(span, "fetched", result.Fetched, "imported", result.Imported)

	s.logger.Info("Open orders imported",
		zap.Int("fetched", result.Fetched),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
		zap.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (s *OrderService) buildOrder(vo *integration.VendorOrder) (*fulfillment.Order, error) {
	lines := make([]*fulfillment.OrderLine, 0, len(vo.Lines))
	for _, vl := range vo.Lines {
		line, err := fulfillment.NewOrderLine(vl.LineNumber, vl.ProductCode, vl.ProductName, vl.Quantity, vl.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	order, err := fulfillment.NewOrder(vo.Code, vo.CustomerEmail, lines)
	if err != nil {
		return nil, err
	}
	if !vo.PlacedAt.IsZero() {
		order.PlacedAt = vo.PlacedAt
	}

	if s.validator != nil {
		if err := s.validator.ValidateAndThrow(order); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// GetOrder returns an order by its marketplace code
func (s *OrderService) GetOrder(ctx context.Context, code string) (*fulfillment.Order, error) {
	return s.orders.FindByCode(ctx, code)
}

// ListByStatus returns orders in the given status
func (s *OrderService) ListByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Unknown order status: "+status.String())
	}
	return s.orders.FindByStatus(ctx, status)
}

// Search finds orders by code, customer email or product code
func (s *OrderService) Search(ctx context.Context, term string, limit int) ([]*fulfillment.Order, error) {
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}
	return s.orders.Search(ctx, term, limit)
}

// CancelOrderLines applies line cancellations to an order. When every line
// ends up fully cancelled the whole order is cancelled and the vendor told.
// Returns the reloaded order state.
func (s *OrderService) CancelOrderLines(ctx context.Context, code string, requests []fulfillment.CancellationRequest) (*fulfillment.Order, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "cancel_lines",
		telemetry.WithAttribute(telemetry.SpanAttrOrderCode, code),
	)
	defer span.End()

	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.Status == fulfillment.OrderStatusDelivered || order.Status == fulfillment.OrderStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot cancel lines of a "+order.Status.String()+" order")
	}

	for i := range requests {
		req := &requests[i]
		line := order.LineByNumber(req.LineNumber)
		if line == nil {
			return nil, &shared.ValidationError{
				Entity: "CancellationRequest",
				Fields: []shared.FieldError{{Field: "line_number", Message: "no such line on order " + order.Code}},
			}
		}
		if err := s.ledger.Apply(ctx, order, line, req); err != nil {
			telemetry.RecordError(span, err)
			return nil, wrapOrderError(order.Code, "cancel_lines", err)
		}
	}

	full, err := s.ledger.IsFullyCancelled(order)
	if err != nil {
		return nil, err
	}
	if !full {
		return order, nil
	}

	if err := s.ledger.CancelWholeOrder(ctx, order); err != nil {
		return nil, wrapOrderError(order.Code, "cancel", err)
	}
	if !s.vendor.CancelOrder(ctx, order.Code) {
		s.logger.Warn("Vendor did not acknowledge order cancellation",
			zap.String("order_code", order.Code),
		)
	}
	return order, nil
}
