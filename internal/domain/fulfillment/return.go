package fulfillment

import (
	"fmt"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnStatus represents the status of a customer return
type ReturnStatus string

const (
	ReturnStatusInProgress ReturnStatus = "IN_PROGRESS"
	ReturnStatusReceiving  ReturnStatus = "RECEIVING"
	ReturnStatusReceived   ReturnStatus = "RECEIVED"
	ReturnStatusCompleted  ReturnStatus = "COMPLETED"
)

// IsValid checks if the status is a valid ReturnStatus
func (s ReturnStatus) IsValid() bool {
	switch s {
	case ReturnStatusInProgress, ReturnStatusReceiving, ReturnStatusReceived, ReturnStatusCompleted:
		return true
	}
	return false
}

// String returns the string representation of ReturnStatus
func (s ReturnStatus) String() string {
	return string(s)
}

// IsOpen returns true while returned units are claimed but not yet booked
// against the order lines
func (s ReturnStatus) IsOpen() bool {
	return s == ReturnStatusInProgress || s == ReturnStatusReceiving
}

// CanTransitionTo checks if the status can transition to the target status
func (s ReturnStatus) CanTransitionTo(target ReturnStatus) bool {
	switch s {
	case ReturnStatusInProgress:
		return target == ReturnStatusReceiving || target == ReturnStatusReceived
	case ReturnStatusReceiving:
		return target == ReturnStatusReceived
	case ReturnStatusReceived:
		return target == ReturnStatusCompleted
	case ReturnStatusCompleted:
		return false // Terminal state
	}
	return false
}

// ReturnPackage is one physical parcel inside a return consignment
type ReturnPackage struct {
	ID                  uuid.UUID
	ReturnConsignmentID uuid.UUID
	PackageNumber       string `validate:"required,max=64"`
	WeightGrams         int    `validate:"gte=0"`
}

// ReturnConsignment is one carrier leg carrying returned goods back
type ReturnConsignment struct {
	ID            uuid.UUID
	ReturnEntryID uuid.UUID
	TrackingID    string           `validate:"required,max=64"`
	Carrier       string           `validate:"required,max=32"`
	Packages      []*ReturnPackage `validate:"dive,required"`
}

// AddPackage appends a parcel to the leg
func (rc *ReturnConsignment) AddPackage(packageNumber string, weightGrams int) *ReturnPackage {
	p := &ReturnPackage{
		ID:                  uuid.New(),
		ReturnConsignmentID: rc.ID,
		PackageNumber:       packageNumber,
		WeightGrams:         weightGrams,
	}
	rc.Packages = append(rc.Packages, p)
	return p
}

// ReturnEntry is the returned quantity of a single order line
type ReturnEntry struct {
	ID           uuid.UUID
	ReturnID     uuid.UUID
	OrderLineID  uuid.UUID `validate:"required"`
	LineNumber   int       `validate:"gte=0"`
	Quantity     int       `validate:"gt=0"`
	Reason       string    `validate:"max=255"`
	RefundAmount decimal.Decimal
	Consignments []*ReturnConsignment `validate:"dive,required"`
}

// AddConsignment appends a carrier leg to the entry
func (e *ReturnEntry) AddConsignment(trackingID, carrier string) *ReturnConsignment {
	rc := &ReturnConsignment{
		ID:            uuid.New(),
		ReturnEntryID: e.ID,
		TrackingID:    trackingID,
		Carrier:       carrier,
	}
	e.Consignments = append(e.Consignments, rc)
	return rc
}

// Return is a customer-initiated reversal of part or all of an order
type Return struct {
	ID         uuid.UUID
	Code       string         `validate:"required,max=64"`
	OrderID    uuid.UUID      `validate:"required"`
	OrderCode  string         `validate:"required,max=64"`
	Status     ReturnStatus   `validate:"required"`
	VendorCode string         `validate:"max=64"`
	Entries    []*ReturnEntry `validate:"required,min=1,dive,required"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// quantities other open returns hold per order line
	claimed map[uuid.UUID]int
}

// NewReturn creates a new return in IN_PROGRESS status
func NewReturn(order *Order, code string) (*Return, error) {
	if order == nil {
		return nil, shared.ErrOrderIsNull
	}
	if code == "" {
		code = fmt.Sprintf("R-%s-%s", order.Code, uuid.NewString()[:8])
	}
	now := time.Now()
	return &Return{
		ID:        uuid.New(),
		Code:      code,
		OrderID:   order.ID,
		OrderCode: order.Code,
		Status:    ReturnStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ExcludeClaimedBy makes AddEntry count the units that the open returns
// among others already claim on each line. r itself is skipped.
func (r *Return) ExcludeClaimedBy(others []*Return) {
	r.claimed = make(map[uuid.UUID]int)
	for _, o := range others {
		if o == nil || o.ID == r.ID || !o.Status.IsOpen() {
			continue
		}
		for _, e := range o.Entries {
			r.claimed[e.OrderLineID] += e.Quantity
		}
	}
}

// AddEntry returns quantity of line. The quantity may not exceed what is
// still unresolved on the line, counting entries already on this return and
// units claimed by other open returns.
func (r *Return) AddEntry(line *OrderLine, quantity int, reason string) (*ReturnEntry, error) {
	if line == nil {
		return nil, shared.ErrLineIsNull
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Returned quantity must be positive")
	}
	pending := r.claimed[line.ID]
	for _, e := range r.Entries {
		if e.OrderLineID == line.ID {
			pending += e.Quantity
		}
	}
	if pending+quantity > line.RemainingQuantity() {
		return nil, shared.NewDomainError("INVALID_QUANTITY",
			fmt.Sprintf("Returned quantity exceeds remaining quantity for line %d", line.LineNumber))
	}
	e := &ReturnEntry{
		ID:           uuid.New(),
		ReturnID:     r.ID,
		OrderLineID:  line.ID,
		LineNumber:   line.LineNumber,
		Quantity:     quantity,
		Reason:       reason,
		RefundAmount: line.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
	r.Entries = append(r.Entries, e)
	return e, nil
}

// TransitionTo moves the return to target, enforcing the transition table
func (r *Return) TransitionTo(target ReturnStatus) error {
	if !target.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown return status %q", target))
	}
	if r.Status == target {
		return nil
	}
	if !r.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move return %s from %s to %s", r.Code, r.Status, target))
	}
	r.Status = target
	r.UpdatedAt = time.Now()
	return nil
}

// TotalRefund sums entry refund amounts
func (r *Return) TotalRefund() decimal.Decimal {
	total := decimal.Zero
	for _, e := range r.Entries {
		total = total.Add(e.RefundAmount)
	}
	return total
}
