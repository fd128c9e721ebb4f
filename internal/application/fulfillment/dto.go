package fulfillment

// ========== Return DTOs ==========

// CreateReturnRequest represents a request to open a customer return
type CreateReturnRequest struct {
	OrderCode  string               `json:"order_code" binding:"required,max=64"`
	ReturnCode string               `json:"return_code" binding:"omitempty,max=64"`
	Entries    []ReturnEntryRequest `json:"entries" binding:"required,min=1,dive"`
}

// ReturnEntryRequest is one returned order line
type ReturnEntryRequest struct {
	LineNumber   int                        `json:"line_number" binding:"gte=0"`
	Quantity     int                        `json:"quantity" binding:"required,gt=0"`
	Reason       string                     `json:"reason" binding:"max=255"`
	Consignments []ReturnConsignmentRequest `json:"consignments" binding:"dive"`
}

// ReturnConsignmentRequest is one carrier leg of a returned line
type ReturnConsignmentRequest struct {
	TrackingID string                 `json:"tracking_id" binding:"required,max=64"`
	Carrier    string                 `json:"carrier" binding:"required,max=32"`
	Packages   []ReturnPackageRequest `json:"packages" binding:"dive"`
}

// ReturnPackageRequest is one parcel of a return leg
type ReturnPackageRequest struct {
	PackageNumber string `json:"package_number" binding:"required,max=64"`
	WeightGrams   int    `json:"weight_grams" binding:"gte=0"`
}

// UpdateReturnStatusRequest moves a return forward
type UpdateReturnStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=RECEIVING RECEIVED COMPLETED"`
}

// ========== Order DTOs ==========

// CancelLinesRequest cancels quantities on one or more order lines
type CancelLinesRequest struct {
	Lines []CancelLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// CancelLineRequest cancels quantity units of one line
type CancelLineRequest struct {
	LineNumber int    `json:"line_number" binding:"gte=0"`
	Quantity   int    `json:"quantity" binding:"gte=0"`
	Reason     string `json:"reason" binding:"max=255"`
}

// ========== Tracking DTOs ==========

// TrackingEventRequest is a carrier webhook status event
type TrackingEventRequest struct {
	TrackingID string `json:"tracking_id" binding:"required"`
	StatusCode string `json:"status_code" binding:"required"`
}
