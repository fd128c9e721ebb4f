package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Vendor Errors
// ---------------------------------------------------------------------------

var (
	ErrVendorNotConfigured   = errors.New("integration: vendor not configured")
	ErrVendorUnavailable     = errors.New("integration: vendor temporarily unavailable")
	ErrVendorRequestFailed   = errors.New("integration: vendor request failed")
	ErrVendorInvalidResponse = errors.New("integration: invalid vendor response")
	ErrVendorUnauthorized    = errors.New("integration: vendor rejected credential")
)

// APIError is raised by vendor operations whose callers must tell
// "nothing happened remotely" apart from "happened, but the reply was unusable"
type APIError struct {
	Operation  string
	StatusCode int
	// Created is true when the vendor accepted the request but the response
	// could not be interpreted
	Created bool
	Err     error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("integration: vendor %s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("integration: vendor %s failed: %v", e.Operation, e.Err)
}

// Unwrap returns the cause
func (e *APIError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Vendor payloads
// ---------------------------------------------------------------------------

// VendorOrderStatus is the order status vocabulary of the vendor API
type VendorOrderStatus string

const (
	VendorOrderStatusOpen       VendorOrderStatus = "OPEN"
	VendorOrderStatusInProgress VendorOrderStatus = "IN_PROGRESS"
	VendorOrderStatusShipped    VendorOrderStatus = "SHIPPED"
	VendorOrderStatusDelivered  VendorOrderStatus = "DELIVERED"
	VendorOrderStatusCancelled  VendorOrderStatus = "CANCELLED"
)

// String returns the string representation of VendorOrderStatus
func (s VendorOrderStatus) String() string {
	return string(s)
}

// VendorOrderLine is one line of an order as the vendor reports it
type VendorOrderLine struct {
	LineNumber  int
	ProductCode string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// VendorOrder is an order as the vendor reports it
type VendorOrder struct {
	Code          string
	Status        VendorOrderStatus
	CustomerEmail string
	PlacedAt      time.Time
	Lines         []VendorOrderLine
}

// ConsignmentEntryRequest is one shipped line of a consignment
type ConsignmentEntryRequest struct {
	LineNumber int
	Quantity   int
}

// ConsignmentRequest registers a shipped consignment with the vendor
type ConsignmentRequest struct {
	OrderCode  string
	TrackingID string
	Carrier    string
	ShippedAt  time.Time
	Entries    []ConsignmentEntryRequest
}

// ConsignmentResult is the vendor's acknowledgement of a consignment
type ConsignmentResult struct {
	Code   string
	Status string
}

// ReturnEntryRequest is one returned line
type ReturnEntryRequest struct {
	LineNumber int
	Quantity   int
	Reason     string
}

// ReturnRequest registers a customer return with the vendor
type ReturnRequest struct {
	OrderCode  string
	ReturnCode string
	Entries    []ReturnEntryRequest
}

// ---------------------------------------------------------------------------
// VendorGateway port
// ---------------------------------------------------------------------------

// VendorGateway is the authenticated boundary to the vendor marketplace.
// Operations report failure as false or an empty result and log the cause;
// CreateConsignment and FindConsignment are the exceptions and return errors.
type VendorGateway interface {
	// FetchOpenOrders returns orders waiting to be accepted, or nil on failure
	FetchOpenOrders(ctx context.Context) []VendorOrder
	// PushOrderStatus reports an order status change
	PushOrderStatus(ctx context.Context, orderCode string, status VendorOrderStatus) bool
	// CancelOrder reports a whole-order cancellation
	CancelOrder(ctx context.Context, orderCode string) bool
	// CreateConsignment registers a shipped consignment
	CreateConsignment(ctx context.Context, req *ConsignmentRequest) (*ConsignmentResult, error)
	// FindConsignment looks up the consignment the vendor holds for a tracking
	// ID of an order. A nil result with a nil error means there is none.
	FindConsignment(ctx context.Context, orderCode, trackingID string) (*ConsignmentResult, error)
	// CancelConsignment cancels a consignment the vendor knows by code
	CancelConsignment(ctx context.Context, consignmentCode string) bool
	// ReportDelivery tells the vendor a consignment was delivered
	ReportDelivery(ctx context.Context, consignmentCode string) bool
	// CreateReturn registers a return and yields the vendor's return code
	CreateReturn(ctx context.Context, req *ReturnRequest) (string, bool)
	// UpdateReturnStatus reports a return status change
	UpdateReturnStatus(ctx context.Context, returnCode string, status string) bool
}
