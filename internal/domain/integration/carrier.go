package integration

import (
	"context"
	"io"
	"time"
)

// CarrierTracker looks up the current status code of one parcel.
// ok is false on any failure or when the carrier has no data.
type CarrierTracker interface {
	GetStatus(ctx context.Context, trackingID string) (code string, ok bool)
}

// FeedRecord is one row of a carrier batch feed. Several rows with the same
// TrackingID describe one consignment.
type FeedRecord struct {
	RowNumber      int
	TrackingID     string
	CustomerNumber string
	OrderCode      string
	ArticleNumber  string
	Quantity       int
	Carrier        string
	ShippedAt      time.Time
}

// FeedFile names a feed file available at a FeedSource
type FeedFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// FeedSource is where carrier batch feed files are dropped
type FeedSource interface {
	// List returns unprocessed feed files, oldest first
	List(ctx context.Context) ([]FeedFile, error)
	// Open returns the content of a feed file
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Archive moves a feed file to the processed location
	Archive(ctx context.Context, name string) error
}
