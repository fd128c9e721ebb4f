package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from the tracking API (2MB)
const maxResponseSize = 2 * 1024 * 1024

// DefaultPollDelay is the carrier's requested spacing between tracking lookups
const DefaultPollDelay = 8 * time.Second

// PollConfig holds configuration for the carrier tracking API
type PollConfig struct {
	// BaseURL is the tracking API root, e.g. https://api-eu.dhl.com
	BaseURL string
	// APIKey is sent in APIKeyHeader on every request
	APIKey       string
	APIKeyHeader string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PollDelay is the minimum spacing between lookups
	PollDelay time.Duration
}

// ErrPollConfigMissingBaseURL is returned when no tracking API URL is configured
var ErrPollConfigMissingBaseURL = errors.New("carrier: tracking base URL is required")

// Validate validates the configuration and fills in defaults
func (c *PollConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrPollConfigMissingBaseURL
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = "DHL-API-Key"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.PollDelay < 0 {
		c.PollDelay = 0
	}
	return nil
}

type trackingResponse struct {
	Shipments []struct {
		ID     string `json:"id"`
		Status struct {
			StatusCode  string `json:"statusCode"`
			Status      string `json:"status"`
			Description string `json:"description"`
		} `json:"status"`
	} `json:"shipments"`
}

// PollClient queries a carrier's tracking-status API one parcel at a time.
// It never retries; the caller polls again on its own schedule.
type PollClient struct {
	config     *PollConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewPollClient creates a new PollClient
func NewPollClient(config *PollConfig, logger *zap.Logger) (*PollClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if config.PollDelay > 0 {
		limit = rate.Every(config.PollDelay)
	}
	return &PollClient{
		config:     config,
		httpClient: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With(zap.String("component", "carrier_poll_client")),
	}, nil
}

// Ensure PollClient implements CarrierTracker
var _ integration.CarrierTracker = (*PollClient)(nil)

// GetStatus returns the carrier status code of the first shipment for trackingID.
// ok is false on transport failure, non-2xx, or when the carrier has no data.
func (c *PollClient) GetStatus(ctx context.Context, trackingID string) (string, bool) {
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error("Tracking poll aborted", zap.String("tracking_id", trackingID), zap.Error(err))
		return "", false
	}

	ctx, span := telemetry.StartSpan(ctx, "carrier.get_status",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrTrackingID, trackingID),
	)
	defer span.End()

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/track/shipments?trackingNumber=" + url.QueryEscape(trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logger.Error("Failed to create tracking request", zap.String("tracking_id", trackingID), zap.Error(err))
		return "", false
	}
	req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Error("Tracking request failed", zap.String("tracking_id", trackingID), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("Failed to read tracking response", zap.String("tracking_id", trackingID), zap.Error(err))
		return "", false
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("tracking API returned HTTP %d", resp.StatusCode)
		telemetry.RecordError(span, err)
		c.logger.Error("Tracking request rejected",
			zap.String("tracking_id", trackingID),
			zap.Int("status", resp.StatusCode),
		)
		return "", false
	}

	var tr trackingResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		c.logger.Error("Failed to parse tracking response", zap.String("tracking_id", trackingID), zap.Error(err))
		return "", false
	}
	if len(tr.Shipments) == 0 || tr.Shipments[0].Status.StatusCode == "" {
		c.logger.Warn("Carrier has no tracking data", zap.String("tracking_id", trackingID))
		return "", false
	}

	code := tr.Shipments[0].Status.StatusCode
	telemetry.SetAttribute(span, telemetry.SpanAttrCarrierStatus, code)
	return code, true
}
