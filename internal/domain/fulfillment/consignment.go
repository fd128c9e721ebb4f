package fulfillment

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ConsignmentStatus represents the shipping status of a consignment
type ConsignmentStatus string

const (
	ConsignmentStatusShipped        ConsignmentStatus = "SHIPPED"
	ConsignmentStatusInTransit      ConsignmentStatus = "IN_TRANSIT"
	ConsignmentStatusOutForDelivery ConsignmentStatus = "OUT_FOR_DELIVERY"
	ConsignmentStatusDelivered      ConsignmentStatus = "DELIVERED"
	ConsignmentStatusCancelled      ConsignmentStatus = "CANCELLED"
	ConsignmentStatusReturned       ConsignmentStatus = "RETURNED"
)

// IsValid checks if the status is a valid ConsignmentStatus
func (s ConsignmentStatus) IsValid() bool {
	switch s {
	case ConsignmentStatusShipped, ConsignmentStatusInTransit, ConsignmentStatusOutForDelivery,
		ConsignmentStatusDelivered, ConsignmentStatusCancelled, ConsignmentStatusReturned:
		return true
	}
	return false
}

// String returns the string representation of ConsignmentStatus
func (s ConsignmentStatus) String() string {
	return string(s)
}

// IsOpen returns true while the parcel is still moving and worth polling
func (s ConsignmentStatus) IsOpen() bool {
	switch s {
	case ConsignmentStatusShipped, ConsignmentStatusInTransit, ConsignmentStatusOutForDelivery:
		return true
	}
	return false
}

// OpenConsignmentStatuses lists the statuses a tracking poll should cover
func OpenConsignmentStatuses() []ConsignmentStatus {
	return []ConsignmentStatus{
		ConsignmentStatusShipped,
		ConsignmentStatusInTransit,
		ConsignmentStatusOutForDelivery,
	}
}

// carrierStatusCodes maps normalized carrier status codes (DHL and DPD style)
// to consignment statuses
var carrierStatusCodes = map[string]ConsignmentStatus{
	"pre-transit":      ConsignmentStatusShipped,
	"accepted":         ConsignmentStatusShipped,
	"pickup":           ConsignmentStatusInTransit,
	"transit":          ConsignmentStatusInTransit,
	"in_transit":       ConsignmentStatusInTransit,
	"start":            ConsignmentStatusInTransit,
	"depot":            ConsignmentStatusInTransit,
	"courier":          ConsignmentStatusOutForDelivery,
	"out_for_delivery": ConsignmentStatusOutForDelivery,
	"delivered":        ConsignmentStatusDelivered,
	"delivery":         ConsignmentStatusDelivered,
	"delivered_ps":     ConsignmentStatusDelivered,
	"returned":         ConsignmentStatusReturned,
	"return":           ConsignmentStatusReturned,
}

// ConsignmentStatusFromCarrierCode maps a raw carrier status code.
// ok is false for codes that carry no status change (failures, unknown).
func ConsignmentStatusFromCarrierCode(code string) (ConsignmentStatus, bool) {
	s, ok := carrierStatusCodes[normalizeCarrierCode(code)]
	return s, ok
}

// IsDeliveredCarrierCode returns true for delivered-type carrier codes
func IsDeliveredCarrierCode(code string) bool {
	s, ok := ConsignmentStatusFromCarrierCode(code)
	return ok && s == ConsignmentStatusDelivered
}

func normalizeCarrierCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	return strings.ReplaceAll(c, " ", "_")
}

// VendorSyncState tracks whether the vendor holds a consignment
type VendorSyncState string

const (
	// VendorSyncPending: the vendor has not accepted the consignment
	VendorSyncPending VendorSyncState = "PENDING"
	// VendorSyncAccepted: the vendor accepted it but its code is unknown
	VendorSyncAccepted VendorSyncState = "ACCEPTED"
	// VendorSyncRegistered: the vendor code is known
	VendorSyncRegistered VendorSyncState = "REGISTERED"
)

// IsValid checks if the state is a valid VendorSyncState
func (s VendorSyncState) IsValid() bool {
	switch s {
	case VendorSyncPending, VendorSyncAccepted, VendorSyncRegistered:
		return true
	}
	return false
}

// String returns the string representation of VendorSyncState
func (s VendorSyncState) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// ConsignmentEntry
// ---------------------------------------------------------------------------

// ConsignmentEntry binds a shipped quantity to an order line. Immutable once created.
type ConsignmentEntry struct {
	ID            uuid.UUID
	ConsignmentID uuid.UUID
	OrderLineID   uuid.UUID `validate:"required"`
	LineNumber    int       `validate:"gte=0"`
	Quantity      int       `validate:"gt=0"`
	CreatedAt     time.Time
}

// ---------------------------------------------------------------------------
// Consignment
// ---------------------------------------------------------------------------

// Consignment is one shipped parcel grouping of order lines.
// Its status is driven by carrier events or explicit cancellation, never by the order.
type Consignment struct {
	ID                uuid.UUID
	OrderID           uuid.UUID         `validate:"required"`
	OrderCode         string            `validate:"required,max=64"`
	TrackingID        string            `validate:"required,max=64"`
	Carrier           string            `validate:"required,max=32"`
	Status            ConsignmentStatus `validate:"required"`
	CarrierStatusCode string            `validate:"max=64"`
	VendorCode        string            `validate:"max=64"`
	VendorSync        VendorSyncState
	DeliveryReported  bool
	Entries           []*ConsignmentEntry `validate:"required,min=1,dive,required"`
	ShippedAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewConsignment creates a new consignment in SHIPPED status for the given order
func NewConsignment(order *Order, trackingID, carrier string, shippedAt time.Time) (*Consignment, error) {
	if order == nil {
		return nil, shared.ErrOrderIsNull
	}
	if strings.TrimSpace(trackingID) == "" {
		return nil, shared.NewDomainError("INVALID_TRACKING_ID", "Tracking ID cannot be empty")
	}
	if shippedAt.IsZero() {
		shippedAt = time.Now()
	}

	now := time.Now()
	return &Consignment{
		ID:         uuid.New(),
		OrderID:    order.ID,
		OrderCode:  order.Code,
		TrackingID: strings.TrimSpace(trackingID),
		Carrier:    carrier,
		Status:     ConsignmentStatusShipped,
		VendorSync: VendorSyncPending,
		ShippedAt:  shippedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AddEntry ships quantity of line in this consignment.
// Quantities for the same line are merged.
func (c *Consignment) AddEntry(line *OrderLine, quantity int) error {
	if line == nil {
		return shared.ErrLineIsNull
	}
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Shipped quantity must be positive")
	}
	for _, e := range c.Entries {
		if e.OrderLineID == line.ID {
			if e.Quantity+quantity > line.Quantity {
				return shared.NewDomainError("INVALID_QUANTITY",
					fmt.Sprintf("Shipped quantity exceeds ordered quantity for line %d", line.LineNumber))
			}
			e.Quantity += quantity
			return nil
		}
	}
	if quantity > line.Quantity {
		return shared.NewDomainError("INVALID_QUANTITY",
			fmt.Sprintf("Shipped quantity exceeds ordered quantity for line %d", line.LineNumber))
	}
	c.Entries = append(c.Entries, &ConsignmentEntry{
		ID:            uuid.New(),
		ConsignmentID: c.ID,
		OrderLineID:   line.ID,
		LineNumber:    line.LineNumber,
		Quantity:      quantity,
		CreatedAt:     time.Now(),
	})
	return nil
}

// ApplyCarrierStatus records a raw carrier code and moves the status when the
// code maps to one. Cancelled consignments and delivered ones (except to
// RETURNED) do not move. Returns true if Status changed.
func (c *Consignment) ApplyCarrierStatus(code string) bool {
	c.CarrierStatusCode = code
	c.UpdatedAt = time.Now()

	next, ok := ConsignmentStatusFromCarrierCode(code)
	if !ok || next == c.Status {
		return false
	}
	switch c.Status {
	case ConsignmentStatusCancelled, ConsignmentStatusReturned:
		return false
	case ConsignmentStatusDelivered:
		if next != ConsignmentStatusReturned {
			return false
		}
	}
	c.Status = next
	return true
}

// Cancel marks the consignment cancelled. Delivered parcels cannot be cancelled.
func (c *Consignment) Cancel() error {
	switch c.Status {
	case ConsignmentStatusCancelled:
		return nil
	case ConsignmentStatusDelivered, ConsignmentStatusReturned:
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot cancel consignment %s in status %s", c.TrackingID, c.Status))
	}
	c.Status = ConsignmentStatusCancelled
	c.UpdatedAt = time.Now()
	return nil
}

// IsDelivered returns true once the carrier reported delivery
func (c *Consignment) IsDelivered() bool {
	return c.Status == ConsignmentStatusDelivered
}

// IsRegisteredWithVendor returns true once the vendor code is known
func (c *Consignment) IsRegisteredWithVendor() bool {
	return c.VendorCode != ""
}

// VendorHoldsConsignment returns true when the vendor accepted the
// consignment, whether or not its code is known
func (c *Consignment) VendorHoldsConsignment() bool {
	return c.VendorCode != "" || c.VendorSync == VendorSyncAccepted || c.VendorSync == VendorSyncRegistered
}

// MarkVendorRegistered records the vendor's acceptance. An empty code
// means the vendor took the consignment but the code still has to be resolved.
func (c *Consignment) MarkVendorRegistered(code string) {
	if code == "" {
		if c.VendorCode == "" {
			c.VendorSync = VendorSyncAccepted
		}
	} else {
		c.VendorCode = code
		c.VendorSync = VendorSyncRegistered
	}
	c.UpdatedAt = time.Now()
}

// NeedsVendorSync returns true while the vendor code is unknown and the
// vendor either holds the consignment or still has to be told about it
func (c *Consignment) NeedsVendorSync() bool {
	if c.VendorCode != "" {
		return false
	}
	return c.VendorSync == VendorSyncAccepted || c.Status != ConsignmentStatusCancelled
}

// MarkDeliveryReported records that the vendor acknowledged the delivery
func (c *Consignment) MarkDeliveryReported() {
	c.DeliveryReported = true
	c.UpdatedAt = time.Now()
}

// TotalQuantity sums entry quantities
func (c *Consignment) TotalQuantity() int {
	total := 0
	for _, e := range c.Entries {
		total += e.Quantity
	}
	return total
}
