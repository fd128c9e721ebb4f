package shared

import (
	"context"
	"strings"
	"time"
)

// IdempotencyStore remembers inbound event keys so a redelivered carrier
// event is applied once within the retention window.
type IdempotencyStore interface {
	// MarkProcessed records key and reports whether this call was the first
	// to do so. A false result means a previous delivery already claimed it.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	Close() error
}

// IdempotencyConfig controls duplicate suppression for pushed events
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig keeps keys for a day
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{TTL: 24 * time.Hour, Enabled: true}
}

// TrackingEventKey identifies one carrier status for one parcel. Status codes
// compare case-insensitively.
func TrackingEventKey(trackingID, statusCode string) string {
	return "tracking:" + trackingID + "|" + strings.ToLower(statusCode)
}
