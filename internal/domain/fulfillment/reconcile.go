package fulfillment

// DeriveOrderStatus computes an order's status from its consignments.
//
//   - no consignments: the current status stands
//   - DELIVERED is never demoted
//   - any consignment DELIVERED: DELIVERED, even if siblings are still moving
//   - all consignments CANCELLED: CANCELLED
//   - otherwise: SHIPPED
//
// The first delivered parcel marks a multi-parcel order delivered. This
// matches the marketplace's single-parcel expectation and is kept as is.
func DeriveOrderStatus(current OrderStatus, consignments []*Consignment) OrderStatus {
	if len(consignments) == 0 {
		return current
	}
	if current == OrderStatusDelivered {
		return OrderStatusDelivered
	}

	seen := 0
	allCancelled := true
	for _, c := range consignments {
		if c == nil {
			continue
		}
		seen++
		if c.Status == ConsignmentStatusDelivered {
			return OrderStatusDelivered
		}
		if c.Status != ConsignmentStatusCancelled {
			allCancelled = false
		}
	}
	if seen == 0 {
		return current
	}
	if allCancelled {
		return OrderStatusCancelled
	}
	return OrderStatusShipped
}
