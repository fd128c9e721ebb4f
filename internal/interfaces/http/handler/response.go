package handler

import (
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
)

// OrderLineResponse is the API view of an order line
type OrderLineResponse struct {
	LineNumber                  int    `json:"line_number"`
	ProductCode                 string `json:"product_code"`
	ProductName                 string `json:"product_name,omitempty"`
	Quantity                    int    `json:"quantity"`
	CancelledOrReturnedQuantity int    `json:"cancelled_or_returned_quantity"`
	RemainingQuantity           int    `json:"remaining_quantity"`
	UnitPrice                   string `json:"unit_price"`
}

// OrderResponse is the API view of an order
type OrderResponse struct {
	ID            string              `json:"id"`
	Code          string              `json:"code"`
	Status        string              `json:"status"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	TotalAmount   string              `json:"total_amount"`
	Lines         []OrderLineResponse `json:"lines"`
	PlacedAt      time.Time           `json:"placed_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func toOrderResponse(o *fulfillment.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID.String(),
		Code:          o.Code,
		Status:        o.Status.String(),
		CustomerEmail: o.CustomerEmail,
		TotalAmount:   o.TotalAmount().StringFixed(2),
		Lines:         make([]OrderLineResponse, 0, len(o.Lines)),
		PlacedAt:      o.PlacedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		if l == nil {
			continue
		}
		resp.Lines = append(resp.Lines, OrderLineResponse{
			LineNumber:                  l.LineNumber,
			ProductCode:                 l.ProductCode,
			ProductName:                 l.ProductName,
			Quantity:                    l.Quantity,
			CancelledOrReturnedQuantity: l.CancelledOrReturnedQuantity,
			RemainingQuantity:           l.RemainingQuantity(),
			UnitPrice:                   l.UnitPrice.StringFixed(2),
		})
	}
	return resp
}

func toOrderResponses(orders []*fulfillment.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		if o != nil {
			out = append(out, toOrderResponse(o))
		}
	}
	return out
}

// ConsignmentEntryResponse is one shipped line of a consignment
type ConsignmentEntryResponse struct {
	LineNumber int `json:"line_number"`
	Quantity   int `json:"quantity"`
}

// ConsignmentResponse is the API view of a consignment
type ConsignmentResponse struct {
	ID                string                     `json:"id"`
	OrderCode         string                     `json:"order_code"`
	TrackingID        string                     `json:"tracking_id"`
	Carrier           string                     `json:"carrier"`
	Status            string                     `json:"status"`
	CarrierStatusCode string                     `json:"carrier_status_code,omitempty"`
	VendorCode        string                     `json:"vendor_code,omitempty"`
	DeliveryReported  bool                       `json:"delivery_reported"`
	Entries           []ConsignmentEntryResponse `json:"entries"`
	ShippedAt         time.Time                  `json:"shipped_at"`
}

func toConsignmentResponse(c *fulfillment.Consignment) ConsignmentResponse {
	resp := ConsignmentResponse{
		ID:                c.ID.String(),
		OrderCode:         c.OrderCode,
		TrackingID:        c.TrackingID,
		Carrier:           c.Carrier,
		Status:            c.Status.String(),
		CarrierStatusCode: c.CarrierStatusCode,
		VendorCode:        c.VendorCode,
		DeliveryReported:  c.DeliveryReported,
		Entries:           make([]ConsignmentEntryResponse, 0, len(c.Entries)),
		ShippedAt:         c.ShippedAt,
	}
	for _, e := range c.Entries {
		if e != nil {
			resp.Entries = append(resp.Entries, ConsignmentEntryResponse{LineNumber: e.LineNumber, Quantity: e.Quantity})
		}
	}
	return resp
}

// ReturnEntryResponse is one returned line
type ReturnEntryResponse struct {
	LineNumber   int      `json:"line_number"`
	Quantity     int      `json:"quantity"`
	Reason       string   `json:"reason,omitempty"`
	RefundAmount string   `json:"refund_amount"`
	TrackingIDs  []string `json:"tracking_ids,omitempty"`
}

// ReturnResponse is the API view of a return
type ReturnResponse struct {
	ID          string                `json:"id"`
	Code        string                `json:"code"`
	OrderCode   string                `json:"order_code"`
	Status      string                `json:"status"`
	VendorCode  string                `json:"vendor_code,omitempty"`
	TotalRefund string                `json:"total_refund"`
	Entries     []ReturnEntryResponse `json:"entries"`
	CreatedAt   time.Time             `json:"created_at"`
}

func toReturnResponse(r *fulfillment.Return) ReturnResponse {
	resp := ReturnResponse{
		ID:          r.ID.String(),
		Code:        r.Code,
		OrderCode:   r.OrderCode,
		Status:      string(r.Status),
		VendorCode:  r.VendorCode,
		TotalRefund: r.TotalRefund().StringFixed(2),
		Entries:     make([]ReturnEntryResponse, 0, len(r.Entries)),
		CreatedAt:   r.CreatedAt,
	}
	for _, e := range r.Entries {
		if e == nil {
			continue
		}
		entry := ReturnEntryResponse{
			LineNumber:   e.LineNumber,
			Quantity:     e.Quantity,
			Reason:       e.Reason,
			RefundAmount: e.RefundAmount.StringFixed(2),
		}
		for _, leg := range e.Consignments {
			if leg != nil {
				entry.TrackingIDs = append(entry.TrackingIDs, leg.TrackingID)
			}
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}

// TrackingEventResponse acknowledges a carrier webhook
type TrackingEventResponse struct {
	TrackingID string `json:"tracking_id"`
	Accepted   bool   `json:"accepted"`
}
