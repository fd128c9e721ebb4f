package persistence

import (
	"context"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCredentialRepository implements integration.CredentialRepository using GORM.
// The table holds a single meaningful row; the most recently updated one wins.
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Ensure GormCredentialRepository implements CredentialRepository
var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)

// Find returns the current credential or shared.ErrNotFound
func (r *GormCredentialRepository) Find(ctx context.Context) (*integration.Credential, error) {
	var m models.CredentialModel
	if err := r.db.WithContext(ctx).Order("updated_at DESC").First(&m).Error; err != nil {
		return nil, storageError("find", "credential", err)
	}
	return m.ToDomain(), nil
}

// Save updates the credential in place, inserting it on first use
func (r *GormCredentialRepository) Save(ctx context.Context, c *integration.Credential) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	err := r.db.WithContext(ctx).Save(models.CredentialModelFromDomain(c)).Error
	return storageError("save", "credential", err)
}
