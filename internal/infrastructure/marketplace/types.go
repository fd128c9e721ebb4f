package marketplace

import (
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// maxResponseSize is the maximum allowed response size from the vendor API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// tokenResponse is the OAuth2 token endpoint response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// errorResponse is the vendor's error envelope
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

// orderListResponse wraps GET /orders
type orderListResponse struct {
	Orders []orderDTO `json:"orders"`
	Total  int        `json:"total"`
}

type orderDTO struct {
	Code          string         `json:"code"`
	Status        string         `json:"status"`
	CustomerEmail string         `json:"customerEmail"`
	Created       time.Time      `json:"created"`
	Entries       []orderLineDTO `json:"entries"`
}

type orderLineDTO struct {
	EntryNumber int             `json:"entryNumber"`
	ProductCode string          `json:"productCode"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	BasePrice   decimal.Decimal `json:"basePrice"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type consignmentEntryDTO struct {
	OrderEntryNumber int `json:"orderEntryNumber"`
	Quantity         int `json:"quantity"`
}

type consignmentCreateRequest struct {
	TrackingID  string                `json:"trackingId"`
	CarrierCode string                `json:"carrierCode"`
	ShippedAt   time.Time             `json:"shippingDate"`
	Entries     []consignmentEntryDTO `json:"entries"`
}

type consignmentResponse struct {
	Code       string `json:"code"`
	Status     string `json:"status"`
	TrackingID string `json:"trackingId,omitempty"`
}

type consignmentListResponse struct {
	Consignments []consignmentResponse `json:"consignments"`
}

type returnEntryDTO struct {
	OrderEntryNumber int    `json:"orderEntryNumber"`
	ExpectedQuantity int    `json:"expectedQuantity"`
	Reason           string `json:"refundReason,omitempty"`
}

type returnCreateRequest struct {
	OrderCode string           `json:"order"`
	RMA       string           `json:"rma"`
	Entries   []returnEntryDTO `json:"returnEntries"`
}

type returnResponse struct {
	Code   string `json:"code"`
	RMA    string `json:"rma"`
	Status string `json:"status"`
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func (o *orderDTO) toVendorOrder() integration.VendorOrder {
	out := integration.VendorOrder{
		Code:          o.Code,
		Status:        integration.VendorOrderStatus(o.Status),
		CustomerEmail: o.CustomerEmail,
		PlacedAt:      o.Created,
		Lines:         make([]integration.VendorOrderLine, 0, len(o.Entries)),
	}
	for _, e := range o.Entries {
		out.Lines = append(out.Lines, integration.VendorOrderLine{
			LineNumber:  e.EntryNumber,
			ProductCode: e.ProductCode,
			ProductName: e.ProductName,
			Quantity:    e.Quantity,
			UnitPrice:   e.BasePrice,
		})
	}
	return out
}

func newConsignmentCreateRequest(req *integration.ConsignmentRequest) consignmentCreateRequest {
	out := consignmentCreateRequest{
		TrackingID:  req.TrackingID,
		CarrierCode: req.Carrier,
		ShippedAt:   req.ShippedAt,
		Entries:     make([]consignmentEntryDTO, 0, len(req.Entries)),
	}
	for _, e := range req.Entries {
		out.Entries = append(out.Entries, consignmentEntryDTO{
			OrderEntryNumber: e.LineNumber,
			Quantity:         e.Quantity,
		})
	}
	return out
}

func newReturnCreateRequest(req *integration.ReturnRequest) returnCreateRequest {
	out := returnCreateRequest{
		OrderCode: req.OrderCode,
		RMA:       req.ReturnCode,
		Entries:   make([]returnEntryDTO, 0, len(req.Entries)),
	}
	for _, e := range req.Entries {
		out.Entries = append(out.Entries, returnEntryDTO{
			OrderEntryNumber: e.LineNumber,
			ExpectedQuantity: e.Quantity,
			Reason:           e.Reason,
		})
	}
	return out
}
