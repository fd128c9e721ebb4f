package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const entityOrder = "order"

// GormOrderRepository implements fulfillment.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Ensure GormOrderRepository implements OrderRepository
var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)

func (r *GormOrderRepository) withLines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Lines", func(db *gorm.DB) *gorm.DB {
		return db.Order("line_number ASC")
	})
}

// FindByID finds an order with its lines
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var m models.OrderModel
	if err := r.withLines(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, storageError("find", entityOrder, err)
	}
	return m.ToDomain(), nil
}

// FindByCode finds an order by its marketplace code
func (r *GormOrderRepository) FindByCode(ctx context.Context, code string) (*fulfillment.Order, error) {
	var m models.OrderModel
	if err := r.withLines(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, storageError("find", entityOrder, err)
	}
	return m.ToDomain(), nil
}

// FindByStatus lists orders in status, oldest first
func (r *GormOrderRepository) FindByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	var rows []models.OrderModel
	if err := r.withLines(ctx).
		Where("status = ?", status).
		Order("placed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, storageError("list", entityOrder, err)
	}
	return ordersToDomain(rows), nil
}

// Search matches term case-insensitively against the order code, customer
// email and the product codes of its lines
func (r *GormOrderRepository) Search(ctx context.Context, term string, limit int) ([]*fulfillment.Order, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
	lineMatch := r.db.Model(&models.OrderLineModel{}).
		Select("order_id").
		Where("LOWER(product_code) LIKE ?", pattern)

	var rows []models.OrderModel
	if err := r.withLines(ctx).
		Where("LOWER(code) LIKE ? OR LOWER(customer_email) LIKE ? OR id IN (?)", pattern, pattern, lineMatch).
		Order("placed_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, storageError("search", entityOrder, err)
	}
	return ordersToDomain(rows), nil
}

// ExistsByCode reports whether an order with code is stored
func (r *GormOrderRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.OrderModel{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, storageError("exists", entityOrder, err)
	}
	return count > 0, nil
}

// Save creates or updates the order together with its lines
func (r *GormOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(models.OrderModelFromDomain(order)).Error; err != nil {
			return err
		}
		for _, line := range order.Lines {
			if line == nil {
				continue
			}
			line.OrderID = order.ID
			if err := tx.Save(models.OrderLineModelFromDomain(line)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return storageError("save", entityOrder, err)
}

// SaveLine persists a single line, typically after a ledger change
func (r *GormOrderRepository) SaveLine(ctx context.Context, line *fulfillment.OrderLine) error {
	err := r.db.WithContext(ctx).Save(models.OrderLineModelFromDomain(line)).Error
	return storageError("save", "order line", err)
}

// UpdateStatusByCode sets the status of the order with code
func (r *GormOrderRepository) UpdateStatusByCode(ctx context.Context, code string, status fulfillment.OrderStatus) (bool, error) {
	return r.updateStatus(ctx, "code = ?", code, status)
}

// UpdateStatusByID sets the status of the order with id
func (r *GormOrderRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.OrderStatus) (bool, error) {
	return r.updateStatus(ctx, "id = ?", id, status)
}

func (r *GormOrderRepository) updateStatus(ctx context.Context, where string, arg any, status fulfillment.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.OrderModel{}).
		Where(where, arg).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return false, storageError("update status", entityOrder, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func ordersToDomain(rows []models.OrderModel) []*fulfillment.Order {
	out := make([]*fulfillment.Order, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}
