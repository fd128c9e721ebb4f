package fulfillment

import (
	"context"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/shared"
	"go.uber.org/zap"
)

// CancellationLedger tracks cancelled and returned quantities per order line
// and decides when an order is fully cancelled
type CancellationLedger struct {
	orders    fulfillment.OrderRepository
	validator shared.EntityValidator
	logger    *zap.Logger
}

// NewCancellationLedger creates a new CancellationLedger. validator may be nil.
func NewCancellationLedger(orders fulfillment.OrderRepository, validator shared.EntityValidator, logger *zap.Logger) *CancellationLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CancellationLedger{
		orders:    orders,
		validator: validator,
		logger:    logger,
	}
}

// Apply cancels req.Quantity of line, clamped to the line quantity, and
// persists the line. An invalid request is rejected with a
// *shared.ValidationError before anything is mutated.
func (l *CancellationLedger) Apply(ctx context.Context, order *fulfillment.Order, line *fulfillment.OrderLine, req *fulfillment.CancellationRequest) error {
	if err := l.validate(order, line, req); err != nil {
		return err
	}

	applied, err := line.Cancel(req.Quantity)
	if err != nil {
		return err
	}
	if applied == 0 {
		l.logger.Debug("Cancellation had no remaining quantity to apply",
			zap.String("order_code", order.Code),
			zap.Int("line_number", line.LineNumber),
		)
		return nil
	}

	if err := l.orders.SaveLine(ctx, line); err != nil {
		return err
	}

	l.logger.Info("Order line quantity cancelled",
		zap.String("order_code", order.Code),
		zap.Int("line_number", line.LineNumber),
		zap.Int("requested", req.Quantity),
		zap.Int("applied", applied),
		zap.Int("cancelled_total", line.CancelledOrReturnedQuantity),
	)
	return nil
}

// CheckReturn validates every entry of r as a ledger request against order
// without touching the lines. The repository books the quantities together
// with the RECEIVED status.
func (l *CancellationLedger) CheckReturn(order *fulfillment.Order, r *fulfillment.Return) error {
	if r == nil {
		return shared.ErrReturnIsNull
	}
	for _, e := range r.Entries {
		var line *fulfillment.OrderLine
		if order != nil {
			line = order.LineByID(e.OrderLineID)
		}
		req := &fulfillment.CancellationRequest{LineNumber: e.LineNumber, Quantity: e.Quantity, Reason: e.Reason}
		if err := l.validate(order, line, req); err != nil {
			return err
		}
	}
	return nil
}

func (l *CancellationLedger) validate(order *fulfillment.Order, line *fulfillment.OrderLine, req *fulfillment.CancellationRequest) error {
	var fields []shared.FieldError
	if order == nil {
		fields = append(fields, shared.FieldError{Field: "order", Message: shared.ErrOrderIsNull.Message})
	}
	if line == nil {
		fields = append(fields, shared.FieldError{Field: "line", Message: shared.ErrLineIsNull.Message})
	}
	if req == nil {
		fields = append(fields, shared.FieldError{Field: "request", Message: shared.ErrCancelRequestIsNull.Message})
	} else if req.Quantity < 0 {
		fields = append(fields, shared.FieldError{Field: "quantity", Message: "must be greater than or equal to 0"})
	}
	if order != nil && line != nil && order.LineByID(line.ID) == nil {
		fields = append(fields, shared.FieldError{Field: "line", Message: "does not belong to order " + order.Code})
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Entity: "CancellationRequest", Fields: fields}
	}

	if l.validator != nil {
		return l.validator.ValidateAndThrow(req)
	}
	return nil
}

// IsFullyCancelled reports whether every line of order is fully cancelled
// or returned. The order must be fully loaded.
func (l *CancellationLedger) IsFullyCancelled(order *fulfillment.Order) (bool, error) {
	if order == nil {
		return false, shared.ErrOrderIsNull
	}
	if order.Lines == nil {
		return false, shared.ErrLinesAreNull
	}
	return order.IsFullyResolved(), nil
}

// CancelWholeOrder moves order to CANCELLED regardless of line state and persists it
func (l *CancellationLedger) CancelWholeOrder(ctx context.Context, order *fulfillment.Order) error {
	if order == nil {
		return shared.ErrOrderIsNull
	}
	order.Cancel()

	updated, err := l.orders.UpdateStatusByID(ctx, order.ID, order.Status)
	if err != nil {
		return err
	}
	if !updated {
		return shared.ErrNotFound
	}

	l.logger.Info("Order cancelled", zap.String("order_code", order.Code))
	return nil
}
