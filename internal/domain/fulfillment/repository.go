package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

// Repository contract shared by the interfaces below:
//   - a missing row is reported as shared.ErrNotFound
//   - any storage failure is reported as *shared.RepositoryError
//   - UpdateStatus* return false when no row matched

// OrderRepository defines persistence for orders and their lines
type OrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindByCode(ctx context.Context, code string) (*Order, error)
	FindByStatus(ctx context.Context, status OrderStatus) ([]*Order, error)
	// Search matches the term against order code, customer email and product codes
	Search(ctx context.Context, term string, limit int) ([]*Order, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	// Save creates or updates the order together with its lines
	Save(ctx context.Context, order *Order) error
	SaveLine(ctx context.Context, line *OrderLine) error
	UpdateStatusByCode(ctx context.Context, code string, status OrderStatus) (bool, error)
	UpdateStatusByID(ctx context.Context, id uuid.UUID, status OrderStatus) (bool, error)
}

// ConsignmentRepository defines persistence for consignments and their entries
type ConsignmentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Consignment, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*Consignment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*Consignment, error)
	FindByStatus(ctx context.Context, statuses ...ConsignmentStatus) ([]*Consignment, error)
	ExistsByTrackingID(ctx context.Context, trackingID string) (bool, error)
	// FindPendingVendorSync lists consignments whose vendor code is unknown,
	// except cancelled ones the vendor never accepted
	FindPendingVendorSync(ctx context.Context) ([]*Consignment, error)
	// Save creates or updates the consignment. Entries are written on create only.
	Save(ctx context.Context, consignment *Consignment) error
	UpdateStatusByID(ctx context.Context, id uuid.UUID, status ConsignmentStatus, carrierStatusCode string) (bool, error)
}

// ReturnRepository defines persistence for the return tree
type ReturnRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Return, error)
	FindByCode(ctx context.Context, code string) (*Return, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*Return, error)
	FindByStatus(ctx context.Context, status ReturnStatus) ([]*Return, error)
	Save(ctx context.Context, r *Return) error
	UpdateStatusByID(ctx context.Context, id uuid.UUID, status ReturnStatus) (bool, error)
	// MarkReceived moves an open return to RECEIVED and adds its entry
	// quantities to the order lines, clamped to the line quantity, in one
	// transaction. It returns false when the return was no longer open.
	MarkReceived(ctx context.Context, r *Return) (bool, error)
}
