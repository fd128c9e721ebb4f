package persistence

import (
	"context"
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityReturn = "return"

// GormReturnRepository implements fulfillment.ReturnRepository using GORM
type GormReturnRepository struct {
	db *gorm.DB
}

// NewGormReturnRepository creates a new GormReturnRepository
func NewGormReturnRepository(db *gorm.DB) *GormReturnRepository {
	return &GormReturnRepository{db: db}
}

// Ensure GormReturnRepository implements ReturnRepository
var _ fulfillment.ReturnRepository = (*GormReturnRepository)(nil)

func (r *GormReturnRepository) withTree(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Entries.Consignments.Packages")
}

// FindByID finds a return with its entries, legs and packages
func (r *GormReturnRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Return, error) {
	var m models.ReturnModel
	if err := r.withTree(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, storageError("find", entityReturn, err)
	}
	return m.ToDomain(), nil
}

// FindByCode finds a return by its code
func (r *GormReturnRepository) FindByCode(ctx context.Context, code string) (*fulfillment.Return, error) {
	var m models.ReturnModel
	if err := r.withTree(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, storageError("find", entityReturn, err)
	}
	return m.ToDomain(), nil
}

// FindByOrderID lists the returns of an order
func (r *GormReturnRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]*fulfillment.Return, error) {
	return r.list(r.withTree(ctx).Where("order_id = ?", orderID))
}

// FindByStatus lists returns in status
func (r *GormReturnRepository) FindByStatus(ctx context.Context, status fulfillment.ReturnStatus) ([]*fulfillment.Return, error) {
	return r.list(r.withTree(ctx).Where("status = ?", status))
}

func (r *GormReturnRepository) list(query *gorm.DB) ([]*fulfillment.Return, error) {
	var rows []models.ReturnModel
	if err := query.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, storageError("list", entityReturn, err)
	}
	out := make([]*fulfillment.Return, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

// Save inserts the whole return tree, or updates the header of an existing return
func (r *GormReturnRepository) Save(ctx context.Context, ret *fulfillment.Return) error {
	m := models.ReturnModelFromDomain(ret)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ReturnModel{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"status":      m.Status,
				"vendor_code": m.VendorCode,
				"updated_at":  m.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		return tx.Create(m).Error
	})
	return storageError("save", entityReturn, err)
}

// UpdateStatusByID sets the status of a return
func (r *GormReturnRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ReturnModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return false, storageError("update status", entityReturn, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkReceived moves an open return to RECEIVED and books its entry
// quantities on the order lines in the same transaction
func (r *GormReturnRepository) MarkReceived(ctx context.Context, ret *fulfillment.Return) (bool, error) {
	received := false
	now := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ReturnModel{}).
			Where("id = ? AND status IN ?", ret.ID, []fulfillment.ReturnStatus{
				fulfillment.ReturnStatusInProgress,
				fulfillment.ReturnStatusReceiving,
			}).
			Updates(map[string]any{"status": fulfillment.ReturnStatusReceived, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		for _, e := range ret.Entries {
			err := tx.Model(&models.OrderLineModel{}).
				Where("id = ?", e.OrderLineID).
				Updates(map[string]any{
					"cancelled_or_returned_quantity": gorm.Expr(
						"CASE WHEN cancelled_or_returned_quantity + ? > quantity THEN quantity ELSE cancelled_or_returned_quantity + ? END",
						e.Quantity, e.Quantity),
					"updated_at": now,
				}).Error
			if err != nil {
				return err
			}
		}
		received = true
		return nil
	})
	if err != nil {
		return false, storageError("receive", entityReturn, err)
	}
	return received, nil
}
