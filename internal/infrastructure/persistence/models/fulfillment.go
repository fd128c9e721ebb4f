package models

import (
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primary_key"`
	Code          string                  `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_code"`
	Status        fulfillment.OrderStatus `gorm:"type:varchar(20);not null;index:idx_orders_status"`
	CustomerEmail string                  `gorm:"type:varchar(255)"`
	PlacedAt      time.Time               `gorm:"not null"`
	CreatedAt     time.Time               `gorm:"not null"`
	UpdatedAt     time.Time               `gorm:"not null"`
	Lines         []OrderLineModel        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *fulfillment.Order {
	o := &fulfillment.Order{
		ID:            m.ID,
		Code:          m.Code,
		Status:        m.Status,
		CustomerEmail: m.CustomerEmail,
		PlacedAt:      m.PlacedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Lines:         make([]*fulfillment.OrderLine, 0, len(m.Lines)),
	}
	for i := range m.Lines {
		o.Lines = append(o.Lines, m.Lines[i].ToDomain())
	}
	return o
}

// OrderModelFromDomain creates a persistence model from a domain Order.
// Lines are converted separately.
func OrderModelFromDomain(o *fulfillment.Order) *OrderModel {
	return &OrderModel{
		ID:            o.ID,
		Code:          o.Code,
		Status:        o.Status,
		CustomerEmail: o.CustomerEmail,
		PlacedAt:      o.PlacedAt,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// OrderLineModel is the persistence model for an order line
type OrderLineModel struct {
	ID                          uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID                     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_lines_order_line,priority:1"`
	LineNumber                  int             `gorm:"not null;uniqueIndex:idx_order_lines_order_line,priority:2"`
	ProductCode                 string          `gorm:"type:varchar(64);not null;index:idx_order_lines_product_code"`
	ProductName                 string          `gorm:"type:varchar(255)"`
	Quantity                    int             `gorm:"not null"`
	CancelledOrReturnedQuantity int             `gorm:"not null;default:0"`
	UnitPrice                   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt                   time.Time       `gorm:"not null"`
	UpdatedAt                   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderLineModel) TableName() string {
	return "order_lines"
}

// ToDomain converts the persistence model to a domain OrderLine
func (m *OrderLineModel) ToDomain() *fulfillment.OrderLine {
	return &fulfillment.OrderLine{
		ID:                          m.ID,
		OrderID:                     m.OrderID,
		LineNumber:                  m.LineNumber,
		ProductCode:                 m.ProductCode,
		ProductName:                 m.ProductName,
		Quantity:                    m.Quantity,
		CancelledOrReturnedQuantity: m.CancelledOrReturnedQuantity,
		UnitPrice:                   m.UnitPrice,
		CreatedAt:                   m.CreatedAt,
		UpdatedAt:                   m.UpdatedAt,
	}
}

// OrderLineModelFromDomain creates a persistence model from a domain OrderLine
func OrderLineModelFromDomain(l *fulfillment.OrderLine) *OrderLineModel {
	return &OrderLineModel{
		ID:                          l.ID,
		OrderID:                     l.OrderID,
		LineNumber:                  l.LineNumber,
		ProductCode:                 l.ProductCode,
		ProductName:                 l.ProductName,
		Quantity:                    l.Quantity,
		CancelledOrReturnedQuantity: l.CancelledOrReturnedQuantity,
		UnitPrice:                   l.UnitPrice,
		CreatedAt:                   l.CreatedAt,
		UpdatedAt:                   l.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Consignments
// ---------------------------------------------------------------------------

// ConsignmentModel is the persistence model for the Consignment aggregate
type ConsignmentModel struct {
	ID                uuid.UUID                     `gorm:"type:uuid;primary_key"`
	OrderID           uuid.UUID                     `gorm:"type:uuid;not null;index:idx_consignments_order"`
	OrderCode         string                        `gorm:"type:varchar(64);not null"`
	TrackingID        string                        `gorm:"type:varchar(64);not null;uniqueIndex:idx_consignments_tracking"`
	Carrier           string                        `gorm:"type:varchar(32);not null"`
	Status            fulfillment.ConsignmentStatus `gorm:"type:varchar(20);not null;index:idx_consignments_status"`
	CarrierStatusCode string                        `gorm:"type:varchar(64)"`
	VendorCode        string                        `gorm:"type:varchar(64)"`
	VendorSync        fulfillment.VendorSyncState   `gorm:"type:varchar(20);not null;default:'PENDING'"`
	DeliveryReported  bool                          `gorm:"not null;default:false"`
	ShippedAt         time.Time                     `gorm:"not null"`
	CreatedAt         time.Time                     `gorm:"not null"`
	UpdatedAt         time.Time                     `gorm:"not null"`
	Entries           []ConsignmentEntryModel       `gorm:"foreignKey:ConsignmentID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ConsignmentModel) TableName() string {
	return "consignments"
}

// ToDomain converts the persistence model to a domain Consignment
func (m *ConsignmentModel) ToDomain() *fulfillment.Consignment {
	c := &fulfillment.Consignment{
		ID:                m.ID,
		OrderID:           m.OrderID,
		OrderCode:         m.OrderCode,
		TrackingID:        m.TrackingID,
		Carrier:           m.Carrier,
		Status:            m.Status,
		CarrierStatusCode: m.CarrierStatusCode,
		VendorCode:        m.VendorCode,
		VendorSync:        m.VendorSync,
		DeliveryReported:  m.DeliveryReported,
		ShippedAt:         m.ShippedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Entries:           make([]*fulfillment.ConsignmentEntry, 0, len(m.Entries)),
	}
	if !c.VendorSync.IsValid() {
		c.VendorSync = fulfillment.VendorSyncPending
		if c.VendorCode != "" {
			c.VendorSync = fulfillment.VendorSyncRegistered
		}
	}
	for _, e := range m.Entries {
		c.Entries = append(c.Entries, &fulfillment.ConsignmentEntry{
			ID:            e.ID,
			ConsignmentID: e.ConsignmentID,
			OrderLineID:   e.OrderLineID,
			LineNumber:    e.LineNumber,
			Quantity:      e.Quantity,
			CreatedAt:     e.CreatedAt,
		})
	}
	return c
}

// ConsignmentModelFromDomain creates a persistence model, entries included
func ConsignmentModelFromDomain(c *fulfillment.Consignment) *ConsignmentModel {
	m := &ConsignmentModel{
		ID:                c.ID,
		OrderID:           c.OrderID,
		OrderCode:         c.OrderCode,
		TrackingID:        c.TrackingID,
		Carrier:           c.Carrier,
		Status:            c.Status,
		CarrierStatusCode: c.CarrierStatusCode,
		VendorCode:        c.VendorCode,
		VendorSync:        c.VendorSync,
		DeliveryReported:  c.DeliveryReported,
		ShippedAt:         c.ShippedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if !m.VendorSync.IsValid() {
		m.VendorSync = fulfillment.VendorSyncPending
	}
	for _, e := range c.Entries {
		if e == nil {
			continue
		}
		m.Entries = append(m.Entries, ConsignmentEntryModel{
			ID:            e.ID,
			ConsignmentID: c.ID,
			OrderLineID:   e.OrderLineID,
			LineNumber:    e.LineNumber,
			Quantity:      e.Quantity,
			CreatedAt:     e.CreatedAt,
		})
	}
	return m
}

// ConsignmentEntryModel is the persistence model for a consignment entry
type ConsignmentEntryModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	ConsignmentID uuid.UUID `gorm:"type:uuid;not null;index:idx_consignment_entries_consignment"`
	OrderLineID   uuid.UUID `gorm:"type:uuid;not null;index:idx_consignment_entries_line"`
	LineNumber    int       `gorm:"not null"`
	Quantity      int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ConsignmentEntryModel) TableName() string {
	return "consignment_entries"
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// ReturnModel is the persistence model for the Return aggregate
type ReturnModel struct {
	ID         uuid.UUID                `gorm:"type:uuid;primary_key"`
	Code       string                   `gorm:"type:varchar(64);not null;uniqueIndex:idx_returns_code"`
	OrderID    uuid.UUID                `gorm:"type:uuid;not null;index:idx_returns_order"`
	OrderCode  string                   `gorm:"type:varchar(64);not null"`
	Status     fulfillment.ReturnStatus `gorm:"type:varchar(20);not null;index:idx_returns_status"`
	VendorCode string                   `gorm:"type:varchar(64)"`
	CreatedAt  time.Time                `gorm:"not null"`
	UpdatedAt  time.Time                `gorm:"not null"`
	Entries    []ReturnEntryModel       `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ReturnModel) TableName() string {
	return "returns"
}

// ReturnEntryModel is the persistence model for a return entry
type ReturnEntryModel struct {
	ID           uuid.UUID                `gorm:"type:uuid;primary_key"`
	ReturnID     uuid.UUID                `gorm:"type:uuid;not null;index:idx_return_entries_return"`
	OrderLineID  uuid.UUID                `gorm:"type:uuid;not null"`
	LineNumber   int                      `gorm:"not null"`
	Quantity     int                      `gorm:"not null"`
	Reason       string                   `gorm:"type:varchar(255)"`
	RefundAmount decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	Consignments []ReturnConsignmentModel `gorm:"foreignKey:ReturnEntryID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ReturnEntryModel) TableName() string {
	return "return_entries"
}

// ReturnConsignmentModel is the persistence model for a return carrier leg
type ReturnConsignmentModel struct {
	ID            uuid.UUID            `gorm:"type:uuid;primary_key"`
	ReturnEntryID uuid.UUID            `gorm:"type:uuid;not null;index:idx_return_consignments_entry"`
	TrackingID    string               `gorm:"type:varchar(64);not null"`
	Carrier       string               `gorm:"type:varchar(32);not null"`
	Packages      []ReturnPackageModel `gorm:"foreignKey:ReturnConsignmentID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ReturnConsignmentModel) TableName() string {
	return "return_consignments"
}

// ReturnPackageModel is the persistence model for a returned parcel
type ReturnPackageModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key"`
	ReturnConsignmentID uuid.UUID `gorm:"type:uuid;not null;index:idx_return_packages_consignment"`
	PackageNumber       string    `gorm:"type:varchar(64);not null"`
	WeightGrams         int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ReturnPackageModel) TableName() string {
	return "return_packages"
}

// ToDomain converts the whole return tree to the domain
func (m *ReturnModel) ToDomain() *fulfillment.Return {
	r := &fulfillment.Return{
		ID:         m.ID,
		Code:       m.Code,
		OrderID:    m.OrderID,
		OrderCode:  m.OrderCode,
		Status:     m.Status,
		VendorCode: m.VendorCode,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		Entries:    make([]*fulfillment.ReturnEntry, 0, len(m.Entries)),
	}
	for _, em := range m.Entries {
		e := &fulfillment.ReturnEntry{
			ID:           em.ID,
			ReturnID:     em.ReturnID,
			OrderLineID:  em.OrderLineID,
			LineNumber:   em.LineNumber,
			Quantity:     em.Quantity,
			Reason:       em.Reason,
			RefundAmount: em.RefundAmount,
		}
		for _, cm := range em.Consignments {
			rc := &fulfillment.ReturnConsignment{
				ID:            cm.ID,
				ReturnEntryID: cm.ReturnEntryID,
				TrackingID:    cm.TrackingID,
				Carrier:       cm.Carrier,
			}
			for _, pm := range cm.Packages {
				rc.Packages = append(rc.Packages, &fulfillment.ReturnPackage{
					ID:                  pm.ID,
					ReturnConsignmentID: pm.ReturnConsignmentID,
					PackageNumber:       pm.PackageNumber,
					WeightGrams:         pm.WeightGrams,
				})
			}
			e.Consignments = append(e.Consignments, rc)
		}
		r.Entries = append(r.Entries, e)
	}
	return r
}

// ReturnModelFromDomain creates a persistence model for the whole return tree.
// Child foreign keys are taken from their parents.
func ReturnModelFromDomain(r *fulfillment.Return) *ReturnModel {
	m := &ReturnModel{
		ID:         r.ID,
		Code:       r.Code,
		OrderID:    r.OrderID,
		OrderCode:  r.OrderCode,
		Status:     r.Status,
		VendorCode: r.VendorCode,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	for _, e := range r.Entries {
		if e == nil {
			continue
		}
		em := ReturnEntryModel{
			ID:           e.ID,
			ReturnID:     r.ID,
			OrderLineID:  e.OrderLineID,
			LineNumber:   e.LineNumber,
			Quantity:     e.Quantity,
			Reason:       e.Reason,
			RefundAmount: e.RefundAmount,
		}
		for _, rc := range e.Consignments {
			if rc == nil {
				continue
			}
			cm := ReturnConsignmentModel{
				ID:            rc.ID,
				ReturnEntryID: e.ID,
				TrackingID:    rc.TrackingID,
				Carrier:       rc.Carrier,
			}
			for _, p := range rc.Packages {
				if p == nil {
					continue
				}
				cm.Packages = append(cm.Packages, ReturnPackageModel{
					ID:                  p.ID,
					ReturnConsignmentID: rc.ID,
					PackageNumber:       p.PackageNumber,
					WeightGrams:         p.WeightGrams,
				})
			}
			em.Consignments = append(em.Consignments, cm)
		}
		m.Entries = append(m.Entries, em)
	}
	return m
}
