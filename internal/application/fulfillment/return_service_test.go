package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestReturnService(order *fulfillment.Order, vendor *MockVendorGateway) (*ReturnService, *memoryReturnRepository) {
	orders := newMemoryOrderRepository(order)
	returns := newMemoryReturnRepository(orders)
	return NewReturnService(returns, orders, NewCancellationLedger(orders, nil, nil), vendor, nil, nil), returns
}

func returnRequest() CreateReturnRequest {
	return CreateReturnRequest{
		OrderCode:  "MK-1001",
		ReturnCode: "R-1",
		Entries: []ReturnEntryRequest{{
			LineNumber: 1,
			Quantity:   3,
			Reason:     "damaged",
			Consignments: []ReturnConsignmentRequest{{
				TrackingID: "RT-1",
				Carrier:    "DHL",
				Packages:   []ReturnPackageRequest{{PackageNumber: "P-1", WeightGrams: 800}},
			}},
		}},
	}
}

func TestReturnService_Lifecycle(t *testing.T) {
	order := newTestOrder(t, 10, 5)
	order.Status = fulfillment.OrderStatusDelivered
	vendor := new(MockVendorGateway)
	vendor.On("CreateReturn", mock.Anything, mock.MatchedBy(func(req *integration.ReturnRequest) bool {
		return req.ReturnCode == "R-1" && len(req.Entries) == 1 && req.Entries[0].Quantity == 3
	})).Return("VR-1", true).Once()
	vendor.On("UpdateReturnStatus", mock.Anything, "VR-1", "RECEIVED").Return(true).Once()
	vendor.On("UpdateReturnStatus", mock.Anything, "VR-1", "COMPLETED").Return(false).Once()
	svc, returns := newTestReturnService(order, vendor)
	ctx := context.Background()

	r, err := svc.CreateReturn(ctx, returnRequest())
	require.NoError(t, err)
	assert.Equal(t, "VR-1", r.VendorCode)
	assert.Equal(t, "29.97", r.TotalRefund().StringFixed(2))
	require.Len(t, r.Entries[0].Consignments, 1)
	assert.Len(t, r.Entries[0].Consignments[0].Packages, 1)

	_, err = svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceived)
	require.NoError(t, err)
	assert.Equal(t, 3, order.Lines[0].CancelledOrReturnedQuantity)

	_, err = svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 3, order.Lines[0].CancelledOrReturnedQuantity)

	stored, err := returns.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.ReturnStatusCompleted, stored.Status)
	assert.Equal(t, fulfillment.OrderStatusDelivered, order.Status)
	vendor.AssertExpectations(t)

	_, err = svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceiving)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestReturnService_CreateReturn_Rejections(t *testing.T) {
	t.Run("order not shipped", func(t *testing.T) {
		svc, _ := newTestReturnService(newTestOrder(t, 10), new(MockVendorGateway))
		_, err := svc.CreateReturn(context.Background(), returnRequest())
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("more than remaining", func(t *testing.T) {
		order := newTestOrder(t, 2)
		order.Status = fulfillment.OrderStatusShipped
		svc, _ := newTestReturnService(order, new(MockVendorGateway))
		_, err := svc.CreateReturn(context.Background(), returnRequest())
		assert.Error(t, err)
	})

	t.Run("vendor refuses", func(t *testing.T) {
		order := newTestOrder(t, 10)
		order.Status = fulfillment.OrderStatusShipped
		vendor := new(MockVendorGateway)
		vendor.On("CreateReturn", mock.Anything, mock.Anything).Return("", false)
		svc, returns := newTestReturnService(order, vendor)

		r, err := svc.CreateReturn(context.Background(), returnRequest())

		require.NoError(t, err)
		assert.Empty(t, r.VendorCode)
		_, err = returns.FindByCode(context.Background(), "R-1")
		assert.NoError(t, err)
	})
}

func TestReturnService_CreateReturn_CountsOpenReturns(t *testing.T) {
	order := newTestOrder(t, 3)
	order.Status = fulfillment.OrderStatusDelivered
	vendor := new(MockVendorGateway)
	vendor.On("CreateReturn", mock.Anything, mock.Anything).Return("", false)
	svc, returns := newTestReturnService(order, vendor)
	ctx := context.Background()

	first, err := svc.CreateReturn(ctx, returnRequest())
	require.NoError(t, err)

	second := returnRequest()
	second.ReturnCode = "R-2"
	_, err = svc.CreateReturn(ctx, second)
	assert.ErrorIs(t, err, shared.NewDomainError("INVALID_QUANTITY", ""))
	_, err = returns.FindByCode(ctx, "R-2")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	// once received the units are booked on the line; still nothing left
	_, err = svc.UpdateReturnStatus(ctx, first.ID, fulfillment.ReturnStatusReceived)
	require.NoError(t, err)
	_, err = svc.CreateReturn(ctx, second)
	assert.ErrorIs(t, err, shared.NewDomainError("INVALID_QUANTITY", ""))
	assert.Equal(t, 3, order.Lines[0].CancelledOrReturnedQuantity)
}

func TestReturnService_UpdateReturnStatus_RetryAfterFailedReceipt(t *testing.T) {
	order := newTestOrder(t, 10)
	order.Status = fulfillment.OrderStatusDelivered
	vendor := new(MockVendorGateway)
	vendor.On("CreateReturn", mock.Anything, mock.Anything).Return("VR-1", true)
	vendor.On("UpdateReturnStatus", mock.Anything, "VR-1", "RECEIVED").Return(true).Once()
	svc, returns := newTestReturnService(order, vendor)
	ctx := context.Background()

	r, err := svc.CreateReturn(ctx, returnRequest())
	require.NoError(t, err)

	returns.receiveErr = shared.NewRepositoryError("receive", "return", errors.New("connection reset"))
	_, err = svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceived)
	require.True(t, shared.IsRepositoryError(err))
	assert.Zero(t, order.Lines[0].CancelledOrReturnedQuantity)
	stored, err := returns.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.ReturnStatusInProgress, stored.Status)

	got, err := svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceived)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.ReturnStatusReceived, got.Status)
	assert.Equal(t, 3, order.Lines[0].CancelledOrReturnedQuantity)

	// a third attempt is a no-op
	_, err = svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceived)
	require.NoError(t, err)
	assert.Equal(t, 3, order.Lines[0].CancelledOrReturnedQuantity)
	vendor.AssertExpectations(t)
}

func TestReturnService_UpdateReturnStatus_ConcurrentReceipt(t *testing.T) {
	order := newTestOrder(t, 10)
	order.Status = fulfillment.OrderStatusDelivered
	vendor := new(MockVendorGateway)
	vendor.On("CreateReturn", mock.Anything, mock.Anything).Return("", false)
	svc, returns := newTestReturnService(order, vendor)
	ctx := context.Background()

	r, err := svc.CreateReturn(ctx, returnRequest())
	require.NoError(t, err)

	// another worker receives it between our load and our write
	returns.beforeReceive = func() {
		_, _ = returns.UpdateStatusByID(ctx, r.ID, fulfillment.ReturnStatusReceived)
	}

	got, err := svc.UpdateReturnStatus(ctx, r.ID, fulfillment.ReturnStatusReceived)

	require.NoError(t, err)
	assert.Equal(t, fulfillment.ReturnStatusReceived, got.Status)
	assert.Zero(t, order.Lines[0].CancelledOrReturnedQuantity, "booking belongs to the other worker")
	vendor.AssertNotCalled(t, "UpdateReturnStatus", mock.Anything, mock.Anything, mock.Anything)
}
