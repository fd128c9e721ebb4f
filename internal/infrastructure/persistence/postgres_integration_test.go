//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a throwaway postgres container and applies the embedded migrations
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("marketsync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	migrator, err := migration.New(sqlDB, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(4), version)
	return db
}

func TestPostgres_ConsignmentLifecycle(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	orders := NewGormOrderRepository(db)
	consignments := NewGormConsignmentRepository(db)

	order := newOrder(t, "MK-PG-1", "pg@example.com", "4006381333931", "4006381333948")
	require.NoError(t, orders.Save(ctx, order))

	c, err := fulfillment.NewConsignment(order, "00340434161094042557", "DHL", time.Now())
	require.NoError(t, err)
	require.NoError(t, c.AddEntry(order.Lines[0], 2))
	require.NoError(t, consignments.Save(ctx, c))

	updated, err := consignments.UpdateStatusByID(ctx, c.ID, fulfillment.ConsignmentStatusDelivered, "delivered")
	require.NoError(t, err)
	assert.True(t, updated)

	found, err := consignments.FindByTrackingID(ctx, "00340434161094042557")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.ConsignmentStatusDelivered, found.Status)
	assert.Len(t, found.Entries, 1)

	hits, err := orders.Search(ctx, "333948", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "MK-PG-1", hits[0].Code)
}

func TestPostgres_DuplicateTrackingIDIsRepositoryError(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()

	order := newOrder(t, "MK-PG-2", "", "A1")
	require.NoError(t, NewGormOrderRepository(db).Save(ctx, order))

	first, err := fulfillment.NewConsignment(order, "DUP-1", "DHL", time.Now())
	require.NoError(t, err)
	require.NoError(t, first.AddEntry(order.Lines[0], 1))
	repo := NewGormConsignmentRepository(db)
	require.NoError(t, repo.Save(ctx, first))

	second, err := fulfillment.NewConsignment(order, "DUP-1", "DHL", time.Now())
	require.NoError(t, err)
	require.NoError(t, second.AddEntry(order.Lines[0], 1))

	err = repo.Save(ctx, second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository: save consignment")
}
