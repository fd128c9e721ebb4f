package persistence

import (
	"context"
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityConsignment = "consignment"

// GormConsignmentRepository implements fulfillment.ConsignmentRepository using GORM
type GormConsignmentRepository struct {
	db *gorm.DB
}

// NewGormConsignmentRepository creates a new GormConsignmentRepository
func NewGormConsignmentRepository(db *gorm.DB) *GormConsignmentRepository {
	return &GormConsignmentRepository{db: db}
}

// Ensure GormConsignmentRepository implements ConsignmentRepository
var _ fulfillment.ConsignmentRepository = (*GormConsignmentRepository)(nil)

// FindByID finds a consignment with its entries
func (r *GormConsignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Consignment, error) {
	var m models.ConsignmentModel
	if err := r.db.WithContext(ctx).Preload("Entries").First(&m, "id = ?", id).Error; err != nil {
		return nil, storageError("find", entityConsignment, err)
	}
	return m.ToDomain(), nil
}

// FindByTrackingID finds a consignment by carrier tracking id
func (r *GormConsignmentRepository) FindByTrackingID(ctx context.Context, trackingID string) (*fulfillment.Consignment, error) {
	var m models.ConsignmentModel
	if err := r.db.WithContext(ctx).Preload("Entries").First(&m, "tracking_id = ?", trackingID).Error; err != nil {
		return nil, storageError("find", entityConsignment, err)
	}
	return m.ToDomain(), nil
}

// FindByOrderID lists the consignments of an order in shipping order
func (r *GormConsignmentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*fulfillment.Consignment, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("order_id = ?", orderID))
}

// FindByStatus lists consignments in any of statuses; no statuses lists all
func (r *GormConsignmentRepository) FindByStatus(ctx context.Context, statuses ...fulfillment.ConsignmentStatus) ([]*fulfillment.Consignment, error) {
	query := r.db.WithContext(ctx)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	return r.list(ctx, query)
}

// FindPendingVendorSync lists consignments without a vendor code that the
// vendor holds, or that still have to be registered
func (r *GormConsignmentRepository) FindPendingVendorSync(ctx context.Context) ([]*fulfillment.Consignment, error) {
	query := r.db.WithContext(ctx).
		Where("vendor_code IS NULL OR vendor_code = ''").
		Where("vendor_sync = ? OR status <> ?", fulfillment.VendorSyncAccepted, fulfillment.ConsignmentStatusCancelled)
	return r.list(ctx, query)
}

func (r *GormConsignmentRepository) list(_ context.Context, query *gorm.DB) ([]*fulfillment.Consignment, error) {
	var rows []models.ConsignmentModel
	if err := query.Preload("Entries").Order("shipped_at ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, storageError("list", entityConsignment, err)
	}
	out := make([]*fulfillment.Consignment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// ExistsByTrackingID reports whether a consignment with trackingID is stored
func (r *GormConsignmentRepository) ExistsByTrackingID(ctx context.Context, trackingID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ConsignmentModel{}).
		Where("tracking_id = ?", trackingID).
		Count(&count).Error; err != nil {
		return false, storageError("exists", entityConsignment, err)
	}
	return count > 0, nil
}

// Save inserts the consignment with its entries, or updates the mutable
// header columns of an existing one. Entries are never rewritten.
func (r *GormConsignmentRepository) Save(ctx context.Context, c *fulfillment.Consignment) error {
	m := models.ConsignmentModelFromDomain(c)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ConsignmentModel{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"status":              m.Status,
				"carrier_status_code": m.CarrierStatusCode,
				"vendor_code":         m.VendorCode,
				"vendor_sync":         m.VendorSync,
				"delivery_reported":   m.DeliveryReported,
				"updated_at":          m.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		return tx.Create(m).Error
	})
	return storageError("save", entityConsignment, err)
}

// UpdateStatusByID sets the status and last carrier code of a consignment
func (r *GormConsignmentRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.ConsignmentStatus, carrierStatusCode string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ConsignmentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":              status,
			"carrier_status_code": carrierStatusCode,
			"updated_at":          time.Now(),
		})
	if result.Error != nil {
		return false, storageError("update status", entityConsignment, result.Error)
	}
	return result.RowsAffected > 0, nil
}
