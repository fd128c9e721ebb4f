package fulfillment

import (
	"errors"
	"fmt"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
)

// ErrVendorRejected is returned when the vendor refuses an operation whose
// local effect depends on the vendor's acknowledgement
var ErrVendorRejected = errors.New("fulfillment: vendor rejected the request")

// ErrVendorCodeUnknown is returned when the vendor holds a consignment whose
// code could not be resolved, so it cannot be addressed remotely yet
var ErrVendorCodeUnknown = shared.NewDomainError("VENDOR_CODE_UNKNOWN",
	"The marketplace holds this consignment but its code is not resolved yet")

// OrderError wraps an unexpected failure while working on one order
type OrderError struct {
	OrderCode string
	Op        string
	Err       error
}

// Error implements the error interface
func (e *OrderError) Error() string {
	return fmt.Sprintf("fulfillment: %s order %s: %v", e.Op, e.OrderCode, e.Err)
}

// Unwrap returns the cause
func (e *OrderError) Unwrap() error {
	return e.Err
}

// ConsignmentError wraps an unexpected failure while working on one consignment
type ConsignmentError struct {
	ConsignmentID uuid.UUID
	TrackingID    string
	Op            string
	Err           error
}

// Error implements the error interface
func (e *ConsignmentError) Error() string {
	return fmt.Sprintf("fulfillment: %s consignment %s (tracking %s): %v", e.Op, e.ConsignmentID, e.TrackingID, e.Err)
}

// Unwrap returns the cause
func (e *ConsignmentError) Unwrap() error {
	return e.Err
}

// ReturnError wraps an unexpected failure while working on one return
type ReturnError struct {
	ReturnCode string
	Op         string
	Err        error
}

// Error implements the error interface
func (e *ReturnError) Error() string {
	return fmt.Sprintf("fulfillment: %s return %s: %v", e.Op, e.ReturnCode, e.Err)
}

// Unwrap returns the cause
func (e *ReturnError) Unwrap() error {
	return e.Err
}

// passThrough reports errors that callers must see unchanged:
// storage failures, validation failures, not-found and domain rule violations.
func passThrough(err error) bool {
	var de *shared.DomainError
	return shared.IsRepositoryError(err) || shared.IsValidationError(err) || errors.As(err, &de)
}

func wrapOrderError(order, op string, err error) error {
	if err == nil || passThrough(err) {
		return err
	}
	return &OrderError{OrderCode: order, Op: op, Err: err}
}

func wrapConsignmentError(c *fulfillment.Consignment, op string, err error) error {
	if err == nil || passThrough(err) {
		return err
	}
	return &ConsignmentError{ConsignmentID: c.ID, TrackingID: c.TrackingID, Op: op, Err: err}
}

func wrapReturnError(code, op string, err error) error {
	if err == nil || passThrough(err) {
		return err
	}
	return &ReturnError{ReturnCode: code, Op: op, Err: err}
}
