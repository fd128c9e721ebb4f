package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackingEventKey(t *testing.T) {
	assert.Equal(t, "tracking:TRK1|delivered", TrackingEventKey("TRK1", "DELIVERED"))
	assert.Equal(t, TrackingEventKey("TRK1", "Delivered"), TrackingEventKey("TRK1", "delivered"))
	assert.NotEqual(t, TrackingEventKey("TRK1", "transit"), TrackingEventKey("TRK2", "transit"))
}

func TestDefaultIdempotencyConfig(t *testing.T) {
	cfg := DefaultIdempotencyConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}
