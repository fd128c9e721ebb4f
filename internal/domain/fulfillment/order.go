package fulfillment

import (
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of a marketplace order
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "CREATED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusInProgress, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	switch s {
	case OrderStatusCreated:
		return target == OrderStatusInProgress || target == OrderStatusCancelled
	case OrderStatusInProgress:
		return target == OrderStatusShipped || target == OrderStatusCancelled
	case OrderStatusShipped:
		return target == OrderStatusDelivered || target == OrderStatusCancelled
	case OrderStatusCancelled:
		// a new consignment on a previously all-cancelled order ships it again
		return target == OrderStatusShipped
	case OrderStatusDelivered:
		return false
	}
	return false
}

// ---------------------------------------------------------------------------
// OrderLine
// ---------------------------------------------------------------------------

// OrderLine is one line item of an order.
// CancelledOrReturnedQuantity only grows and never exceeds Quantity.
type OrderLine struct {
	ID                          uuid.UUID
	OrderID                     uuid.UUID
	LineNumber                  int    `validate:"gte=0"`
	ProductCode                 string `validate:"required,max=64"`
	ProductName                 string `validate:"max=255"`
	Quantity                    int    `validate:"gt=0"`
	CancelledOrReturnedQuantity int    `validate:"gte=0,ltefield=Quantity"`
	UnitPrice                   decimal.Decimal
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// NewOrderLine creates a new order line
func NewOrderLine(lineNumber int, productCode, productName string, quantity int, unitPrice decimal.Decimal) (*OrderLine, error) {
	if productCode == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_CODE", "Product code cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	now := time.Now()
	return &OrderLine{
		ID:          uuid.New(),
		LineNumber:  lineNumber,
		ProductCode: productCode,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Cancel adds q to the cancelled/returned quantity, clamped to Quantity.
// It returns the quantity actually applied.
func (l *OrderLine) Cancel(q int) (int, error) {
	if q < 0 {
		return 0, shared.NewDomainError("INVALID_QUANTITY", "Cancelled quantity cannot be negative")
	}
	next := min(l.Quantity, l.CancelledOrReturnedQuantity+q)
	applied := next - l.CancelledOrReturnedQuantity
	if applied > 0 {
		l.CancelledOrReturnedQuantity = next
		l.UpdatedAt = time.Now()
	}
	return applied, nil
}

// RemainingQuantity returns the quantity not yet cancelled or returned
func (l *OrderLine) RemainingQuantity() int {
	return l.Quantity - l.CancelledOrReturnedQuantity
}

// IsFullyResolved returns true when the whole quantity was cancelled or returned
func (l *OrderLine) IsFullyResolved() bool {
	return l.CancelledOrReturnedQuantity == l.Quantity
}

// Amount returns Quantity * UnitPrice
func (l *OrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is the local, authoritative copy of a marketplace order
type Order struct {
	ID            uuid.UUID
	Code          string       `validate:"required,max=64"`
	Status        OrderStatus  `validate:"required"`
	CustomerEmail string       `validate:"omitempty,email"`
	Lines         []*OrderLine `validate:"required,min=1,dive,required"`
	PlacedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder creates a new order in CREATED status
func NewOrder(code, customerEmail string, lines []*OrderLine) (*Order, error) {
	if code == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_CODE", "Order code cannot be empty")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("INVALID_ORDER_LINES", "Order must have at least one line")
	}

	now := time.Now()
	o := &Order{
		ID:            uuid.New(),
		Code:          code,
		Status:        OrderStatusCreated,
		CustomerEmail: customerEmail,
		PlacedAt:      now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, l := range lines {
		if l == nil {
			return nil, shared.ErrLineIsNull
		}
		l.OrderID = o.ID
		o.Lines = append(o.Lines, l)
	}
	return o, nil
}

// TransitionTo moves the order to target, enforcing the transition table
func (o *Order) TransitionTo(target OrderStatus) error {
	if o.Status == target {
		return nil
	}
	if !o.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move order %s from %s to %s", o.Code, o.Status, target))
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}

// Cancel is the unconditional terminal transition used for whole-order cancellation
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now()
}

// Reconcile derives the order status from its consignments.
// Returns true if the status changed. An order cancelled line by line stays
// cancelled.
func (o *Order) Reconcile(consignments []*Consignment) bool {
	if o.Status == OrderStatusCancelled && o.IsFullyResolved() {
		return false
	}
	next := DeriveOrderStatus(o.Status, consignments)
	if next == o.Status {
		return false
	}
	o.Status = next
	o.UpdatedAt = time.Now()
	return true
}

// LineByNumber returns the line with the given number, or nil
func (o *Order) LineByNumber(lineNumber int) *OrderLine {
	for _, l := range o.Lines {
		if l != nil && l.LineNumber == lineNumber {
			return l
		}
	}
	return nil
}

// LineByID returns the line with the given id, or nil
func (o *Order) LineByID(id uuid.UUID) *OrderLine {
	for _, l := range o.Lines {
		if l != nil && l.ID == id {
			return l
		}
	}
	return nil
}

// IsFullyResolved returns true when every line is fully cancelled or returned
func (o *Order) IsFullyResolved() bool {
	if len(o.Lines) == 0 {
		return false
	}
	for _, l := range o.Lines {
		if l == nil || !l.IsFullyResolved() {
			return false
		}
	}
	return true
}

// TotalAmount sums line amounts
func (o *Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		if l != nil {
			total = total.Add(l.Amount())
		}
	}
	return total
}
