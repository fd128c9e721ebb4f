package persistence

import (
	"errors"

	"github.com/erp/marketsync/internal/domain/shared"
	"gorm.io/gorm"
)

// storageError maps a gorm error to the repository contract: a missing row
// is shared.ErrNotFound, anything else a *shared.RepositoryError.
func storageError(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return shared.NewRepositoryError(op, entity, err)
}
