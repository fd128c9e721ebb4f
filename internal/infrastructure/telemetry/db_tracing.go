package telemetry

import (
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled bool
	// DBSystem names the database in spans. Default: "postgresql"
	DBSystem string
	// LogFullSQL keeps bound variables in span statements. Dev only.
	LogFullSQL bool
}

const dbSpanCallback = "marketsync:span_attributes"

// RegisterDBTracing installs the otelgorm plugin and a callback that adds the
// table, affected rows and error status to the statement span before otelgorm
// ends it.
// Record-not-found is not treated as a span error.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	steps := []error{
		cb.Create().After("gorm:create").Before("otel:after:create").Register(dbSpanCallback, annotateDBSpan),
		cb.Query().After("gorm:query").Before("otel:after:query").Register(dbSpanCallback, annotateDBSpan),
		cb.Update().After("gorm:update").Before("otel:after:update").Register(dbSpanCallback, annotateDBSpan),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register(dbSpanCallback, annotateDBSpan),
		cb.Row().After("gorm:row").Before("otel:after:row").Register(dbSpanCallback, annotateDBSpan),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register(dbSpanCallback, annotateDBSpan),
	}
	if err := errors.Join(steps...); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
	)
	return nil
}

func annotateDBSpan(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
