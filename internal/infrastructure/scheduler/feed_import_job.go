package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/carrier"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// FeedParser turns a carrier feed file into records
type FeedParser interface {
	Parse(r io.Reader) ([]integration.FeedRecord, []*carrier.RowError, error)
}

// BatchResolver groups feed records into unsaved consignments
type BatchResolver interface {
	ImportBatch(ctx context.Context, records []integration.FeedRecord) ([]*fulfillment.Consignment, error)
}

// ConsignmentCreator stores a consignment and registers it with the vendor
type ConsignmentCreator interface {
	CreateConsignment(ctx context.Context, c *fulfillment.Consignment) error
}

// FeedImportSummary is the Detail of an import-feed run
type FeedImportSummary struct {
	Files      int `json:"files"`
	Archived   int `json:"archived"`
	Records    int `json:"records"`
	RowErrors  int `json:"row_errors"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// FeedImportJob reads carrier batch files and creates a consignment per
// tracking ID. A file is archived once it was read to the end and every
// consignment was attempted, even if some rows or consignments failed,
// storage failures included. A file nothing could be stored from stays in
// place for the next run: the source could not be opened, the batch could
// not be resolved, or every consignment hit a storage failure.
type FeedImportJob struct {
	source   integration.FeedSource
	parser   FeedParser
	resolver BatchResolver
	creator  ConsignmentCreator
	logger   *zap.Logger
}

// NewFeedImportJob creates a FeedImportJob
func NewFeedImportJob(source integration.FeedSource, parser FeedParser, resolver BatchResolver, creator ConsignmentCreator, log *zap.Logger) *FeedImportJob {
	return &FeedImportJob{
		source:   source,
		parser:   parser,
		resolver: resolver,
		creator:  creator,
		logger:   log,
	}
}

// Name implements Job
func (j *FeedImportJob) Name() string { return JobImportFeed }

// Run implements Job
func (j *FeedImportJob) Run(ctx context.Context) (Result, error) {
	summary := &FeedImportSummary{}
	result := func() Result {
		return Result{
			Processed: summary.Created,
			Failed:    summary.Failed,
			Skipped:   summary.Duplicates + summary.RowErrors,
			Detail:    summary,
		}
	}

	files, err := j.source.List(ctx)
	if err != nil {
		return result(), fmt.Errorf("list feed files: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result(), err
		}
		summary.Files++

		archive, err := j.importFile(ctx, f.Name, summary)
		if err != nil {
			summary.Failed++
			logger.For(ctx, j.logger).Error("Feed file import failed",
				zap.String("file", f.Name),
				zap.Bool("archived", archive),
				zap.Error(err),
			)
		}
		if !archive {
			continue
		}
		if err := j.source.Archive(ctx, f.Name); err != nil {
			logger.For(ctx, j.logger).Error("Failed to archive feed file", zap.String("file", f.Name), zap.Error(err))
			continue
		}
		summary.Archived++
	}
	return result(), nil
}

// importFile reports whether the file should be archived
func (j *FeedImportJob) importFile(ctx context.Context, name string, summary *FeedImportSummary) (bool, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "feed", "import_file",
		telemetry.WithAttribute(telemetry.SpanAttrFeedFile, name),
	)
	defer span.End()
	log := logger.For(ctx, j.logger).With(zap.String("file", name))

	rc, err := j.source.Open(ctx, name)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	var (
		records   []integration.FeedRecord
		rowErrors []*carrier.RowError
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("feed.parse", nil), func(context.Context) {
		records, rowErrors, err = j.parser.Parse(rc)
	})
	_ = rc.Close()
	if err != nil {
		telemetry.RecordError(span, err)
		// an unreadable file does not improve on retry
		return true, err
	}

	summary.Records += len(records)
	summary.RowErrors += len(rowErrors)
	for _, re := range rowErrors {
		log.Warn("Skipping feed row", zap.Int("line", re.Line), zap.String("column", re.Column), zap.String("reason", re.Message))
	}

	consignments, err := j.resolver.ImportBatch(ctx, records)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}

	var storageErr error
	storageFailures := 0
	for _, c := range consignments {
		err := j.creator.CreateConsignment(ctx, c)
		switch {
		case err == nil:
			summary.Created++
		case errors.Is(err, shared.ErrAlreadyExists):
			summary.Duplicates++
		case shared.IsRepositoryError(err):
			telemetry.RecordError(span, err)
			storageErr = err
			storageFailures++
			log.Error("Failed to store consignment from feed",
				zap.String("tracking_id", c.TrackingID),
				zap.String("order_code", c.OrderCode),
				zap.Error(err),
			)
		default:
			summary.Failed++
			log.Warn("Failed to create consignment from feed",
				zap.String("tracking_id", c.TrackingID),
				zap.String("order_code", c.OrderCode),
				zap.Error(err),
			)
		}
	}

	if storageFailures > 0 && storageFailures == len(consignments) {
		return false, storageErr
	}
	summary.Failed += storageFailures

	log.Info("Feed file imported",
		zap.Int("records", len(records)),
		zap.Int("row_errors", len(rowErrors)),
		zap.Int("consignments", len(consignments)),
	)
	return true, nil
}
