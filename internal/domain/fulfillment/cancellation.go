package fulfillment

// CancellationRequest asks to cancel Quantity units of one order line
type CancellationRequest struct {
	LineNumber int    `json:"line_number" validate:"gte=0"`
	Quantity   int    `json:"quantity" validate:"gte=0"`
	Reason     string `json:"reason" validate:"max=255"`
}
