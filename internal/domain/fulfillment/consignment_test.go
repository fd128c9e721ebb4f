package fulfillment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsignment(t *testing.T, order *Order, trackingID string, status ConsignmentStatus) *Consignment {
	c, err := NewConsignment(order, trackingID, "DHL", time.Now())
	require.NoError(t, err)
	require.NoError(t, c.AddEntry(order.Lines[0], 1))
	c.Status = status
	return c
}

func TestConsignmentStatusFromCarrierCode(t *testing.T) {
	tests := []struct {
		code   string
		want   ConsignmentStatus
		wantOK bool
	}{
		{"delivered", ConsignmentStatusDelivered, true},
		{"DELIVERED", ConsignmentStatusDelivered, true},
		{" Delivery ", ConsignmentStatusDelivered, true},
		{"transit", ConsignmentStatusInTransit, true},
		{"pre-transit", ConsignmentStatusShipped, true},
		{"out for delivery", ConsignmentStatusOutForDelivery, true},
		{"returned", ConsignmentStatusReturned, true},
		{"failure", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := ConsignmentStatusFromCarrierCode(tt.code)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, IsDeliveredCarrierCode("delivered"))
	assert.False(t, IsDeliveredCarrierCode("transit"))
}

func TestNewConsignment(t *testing.T) {
	order := newTestOrder(t, 10, 5)

	c, err := NewConsignment(order, " 00340434161094042557 ", "DHL", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "00340434161094042557", c.TrackingID)
	assert.Equal(t, order.ID, c.OrderID)
	assert.Equal(t, order.Code, c.OrderCode)
	assert.Equal(t, ConsignmentStatusShipped, c.Status)
	assert.Equal(t, VendorSyncPending, c.VendorSync)
	assert.False(t, c.ShippedAt.IsZero())

	_, err = NewConsignment(nil, "X", "DHL", time.Now())
	require.Error(t, err)

	_, err = NewConsignment(order, "  ", "DHL", time.Now())
	require.Error(t, err)
}

func TestConsignment_AddEntry(t *testing.T) {
	order := newTestOrder(t, 10, 5)
	c, err := NewConsignment(order, "T1", "DHL", time.Now())
	require.NoError(t, err)

	require.NoError(t, c.AddEntry(order.Lines[0], 6))
	require.NoError(t, c.AddEntry(order.Lines[0], 4))
	require.NoError(t, c.AddEntry(order.Lines[1], 5))

	require.Len(t, c.Entries, 2)
	assert.Equal(t, 10, c.Entries[0].Quantity)
	assert.Equal(t, 15, c.TotalQuantity())

	assert.Error(t, c.AddEntry(order.Lines[0], 1))
	assert.Error(t, c.AddEntry(order.Lines[1], 0))
	assert.Error(t, c.AddEntry(nil, 1))
}

func TestConsignment_ApplyCarrierStatus(t *testing.T) {
	tests := []struct {
		name        string
		from        ConsignmentStatus
		code        string
		wantStatus  ConsignmentStatus
		wantChanged bool
	}{
		{"shipped to transit", ConsignmentStatusShipped, "transit", ConsignmentStatusInTransit, true},
		{"transit to delivered", ConsignmentStatusInTransit, "delivered", ConsignmentStatusDelivered, true},
		{"unknown code keeps status", ConsignmentStatusInTransit, "failure", ConsignmentStatusInTransit, false},
		{"same status", ConsignmentStatusDelivered, "delivered", ConsignmentStatusDelivered, false},
		{"delivered never goes back", ConsignmentStatusDelivered, "transit", ConsignmentStatusDelivered, false},
		{"delivered to returned", ConsignmentStatusDelivered, "returned", ConsignmentStatusReturned, true},
		{"cancelled ignores carrier", ConsignmentStatusCancelled, "delivered", ConsignmentStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConsignment(t, newTestOrder(t, 1), "T1", tt.from)

			changed := c.ApplyCarrierStatus(tt.code)

			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, c.Status)
			assert.Equal(t, tt.code, c.CarrierStatusCode)
		})
	}
}

func TestConsignment_Cancel(t *testing.T) {
	order := newTestOrder(t, 1)

	c := newTestConsignment(t, order, "T1", ConsignmentStatusInTransit)
	require.NoError(t, c.Cancel())
	assert.Equal(t, ConsignmentStatusCancelled, c.Status)
	require.NoError(t, c.Cancel())

	delivered := newTestConsignment(t, order, "T2", ConsignmentStatusDelivered)
	assert.Error(t, delivered.Cancel())
	assert.Equal(t, ConsignmentStatusDelivered, delivered.Status)
}

func TestConsignment_VendorSync(t *testing.T) {
	order := newTestOrder(t, 1)

	c := newTestConsignment(t, order, "T1", ConsignmentStatusShipped)
	assert.False(t, c.VendorHoldsConsignment())
	assert.True(t, c.NeedsVendorSync())

	c.MarkVendorRegistered("")
	assert.Equal(t, VendorSyncAccepted, c.VendorSync)
	assert.True(t, c.VendorHoldsConsignment())
	assert.False(t, c.IsRegisteredWithVendor())
	assert.True(t, c.NeedsVendorSync())

	c.MarkVendorRegistered("C-1")
	assert.Equal(t, VendorSyncRegistered, c.VendorSync)
	assert.True(t, c.IsRegisteredWithVendor())
	assert.False(t, c.NeedsVendorSync())

	// an empty code never demotes a known one
	c.MarkVendorRegistered("")
	assert.Equal(t, "C-1", c.VendorCode)
	assert.Equal(t, VendorSyncRegistered, c.VendorSync)

	cancelled := newTestConsignment(t, order, "T2", ConsignmentStatusCancelled)
	assert.False(t, cancelled.NeedsVendorSync(), "never sent, nothing to undo")
	cancelled.MarkVendorRegistered("")
	assert.True(t, cancelled.NeedsVendorSync(), "vendor holds a consignment cancelled locally")
}
