package marketplace

import (
	"bytes"
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

// CallRecorder receives the outcome of every vendor call
type CallRecorder interface {
	RecordVendorCall(ctx context.Context, operation string, statusCode int, duration time.Duration)
	RecordTokenRetry(ctx context.Context, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordVendorCall(context.Context, string, int, time.Duration) {}
func (nopRecorder) RecordTokenRetry(context.Context, string)                     {}

// Client is the authenticated HTTP client for the vendor marketplace API.
// Every call carries a bearer token from the TokenProvider; a 401 triggers a
// forced refresh and a retry, at most Config.MaxUnauthorizedRetries times.
type Client struct {
	config     *Config
	httpClient *http.Client
	tokens     integration.TokenProvider
	limiter    *rate.Limiter
	recorder   CallRecorder
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRecorder sets the call recorder
func WithRecorder(r CallRecorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewClient creates a new vendor API client
func NewClient(config *Config, tokens integration.TokenProvider, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, integration.ErrVendorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.CallDelay > 0 {
		limit = rate.Every(config.CallDelay)
	}

	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout()},
		tokens:     tokens,
		limiter:    rate.NewLimiter(limit, 1),
		recorder:   nopRecorder{},
		logger:     logger.With(zap.String("component", "marketplace_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ensure Client implements VendorGateway
var _ integration.VendorGateway = (*Client)(nil)

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOpenOrders returns orders waiting to be accepted, or nil on failure
func (c *Client) FetchOpenOrders(ctx context.Context) []integration.VendorOrder {
	path := "/orders?status=" + url.QueryEscape(integration.VendorOrderStatusOpen.String())
	resp, err := c.do(ctx, "fetch_orders", http.MethodGet, path, nil, false)
	if err != nil {
		c.logger.Error("Failed to fetch open orders", zap.Error(err))
		return nil
	}

	var list orderListResponse
	if err := json.Unmarshal(resp.body, &list); err != nil {
		c.logger.Error("Failed to parse order list", zap.Error(err))
		return nil
	}

	orders := make([]integration.VendorOrder, 0, len(list.Orders))
	for i := range list.Orders {
		orders = append(orders, list.Orders[i].toVendorOrder())
	}
	return orders
}

// PushOrderStatus reports an order status change
func (c *Client) PushOrderStatus(ctx context.Context, orderCode string, status integration.VendorOrderStatus) bool {
	path := "/orders/" + url.PathEscape(orderCode) + "/status"
	_, err := c.do(ctx, "push_order_status", http.MethodPut, path, statusUpdateRequest{Status: status.String()}, true)
	if err != nil {
		c.logger.Error("Failed to push order status",
			zap.String("order_code", orderCode),
			zap.String("status", status.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// CancelOrder reports a whole-order cancellation
func (c *Client) CancelOrder(ctx context.Context, orderCode string) bool {
	path := "/orders/" + url.PathEscape(orderCode) + "/cancel"
	_, err := c.do(ctx, "cancel_order", http.MethodPut, path, nil, true)
	if err != nil {
		c.logger.Error("Failed to cancel order", zap.String("order_code", orderCode), zap.Error(err))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Consignments
// ---------------------------------------------------------------------------

// CreateConsignment registers a consignment. Unlike the other operations it
// returns *integration.APIError so callers can tell "not created" from
// "created, but the response was unusable" (APIError.Created).
func (c *Client) CreateConsignment(ctx context.Context, req *integration.ConsignmentRequest) (*integration.ConsignmentResult, error) {
	const op = "create_consignment"
	if req == nil || req.OrderCode == "" {
		return nil, &integration.APIError{Operation: op, Err: integration.ErrVendorRequestFailed}
	}

	path := "/orders/" + url.PathEscape(req.OrderCode) + "/consignments"
	resp, err := c.do(ctx, op, http.MethodPost, path, newConsignmentCreateRequest(req), true)
	if err != nil {
		apiErr := &integration.APIError{Operation: op, Err: err}
		if resp != nil {
			apiErr.StatusCode = resp.status
		}
		c.logger.Error("Failed to create consignment",
			zap.String("order_code", req.OrderCode),
			zap.String("tracking_id", req.TrackingID),
			zap.Error(err),
		)
		return nil, apiErr
	}

	var cr consignmentResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil || cr.Code == "" {
		if err == nil {
			err = errors.New("response without consignment code")
		}
		c.logger.Warn("Consignment created but response is unusable",
			zap.String("order_code", req.OrderCode),
			zap.String("tracking_id", req.TrackingID),
			zap.Error(err),
		)
		return nil, &integration.APIError{
			Operation:  op,
			StatusCode: resp.status,
			Created:    true,
			Err:        fmt.Errorf("%w: %v", integration.ErrVendorInvalidResponse, err),
		}
	}
	return &integration.ConsignmentResult{Code: cr.Code, Status: cr.Status}, nil
}

// FindConsignment looks up the consignment the vendor holds for trackingID
// on an order. It returns nil, nil when the vendor has none.
func (c *Client) FindConsignment(ctx context.Context, orderCode, trackingID string) (*integration.ConsignmentResult, error) {
	const op = "find_consignment"
	if orderCode == "" || trackingID == "" {
		return nil, &integration.APIError{Operation: op, Err: integration.ErrVendorRequestFailed}
	}

	path := "/orders/" + url.PathEscape(orderCode) + "/consignments?trackingId=" + url.QueryEscape(trackingID)
	resp, err := c.do(ctx, op, http.MethodGet, path, nil, false)
	if err != nil {
		apiErr := &integration.APIError{Operation: op, Err: err}
		if resp != nil {
			apiErr.StatusCode = resp.status
		}
		c.logger.Error("Failed to look up consignment",
			zap.String("order_code", orderCode),
			zap.String("tracking_id", trackingID),
			zap.Error(err),
		)
		return nil, apiErr
	}

	var list consignmentListResponse
	if err := json.Unmarshal(resp.body, &list); err != nil {
		return nil, &integration.APIError{
			Operation:  op,
			StatusCode: resp.status,
			Err:        fmt.Errorf("%w: %v", integration.ErrVendorInvalidResponse, err),
		}
	}
	for _, cr := range list.Consignments {
		if cr.Code != "" && strings.EqualFold(cr.TrackingID, trackingID) {
			return &integration.ConsignmentResult{Code: cr.Code, Status: cr.Status}, nil
		}
	}
	return nil, nil
}

// CancelConsignment cancels a consignment the vendor knows by code
func (c *Client) CancelConsignment(ctx context.Context, consignmentCode string) bool {
	path := "/consignments/" + url.PathEscape(consignmentCode) + "/cancel"
	_, err := c.do(ctx, "cancel_consignment", http.MethodPut, path, nil, true)
	if err != nil {
		c.logger.Error("Failed to cancel consignment", zap.String("consignment_code", consignmentCode), zap.Error(err))
		return false
	}
	return true
}

// ReportDelivery tells the vendor a consignment was delivered
func (c *Client) ReportDelivery(ctx context.Context, consignmentCode string) bool {
	path := "/consignments/" + url.PathEscape(consignmentCode) + "/delivery"
	_, err := c.do(ctx, "report_delivery", http.MethodPut, path, nil, true)
	if err != nil {
		c.logger.Error("Failed to report delivery", zap.String("consignment_code", consignmentCode), zap.Error(err))
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

// CreateReturn registers a return and yields the vendor's return code
func (c *Client) CreateReturn(ctx context.Context, req *integration.ReturnRequest) (string, bool) {
	if req == nil {
		return "", false
	}
	resp, err := c.do(ctx, "create_return", http.MethodPost, "/returns", newReturnCreateRequest(req), true)
	if err != nil {
		c.logger.Error("Failed to create return",
			zap.String("order_code", req.OrderCode),
			zap.String("return_code", req.ReturnCode),
			zap.Error(err),
		)
		return "", false
	}

	var rr returnResponse
	if err := json.Unmarshal(resp.body, &rr); err != nil || rr.Code == "" {
		c.logger.Warn("Return created but response carries no code", zap.String("return_code", req.ReturnCode))
		return "", true
	}
	return rr.Code, true
}

// UpdateReturnStatus reports a return status change
func (c *Client) UpdateReturnStatus(ctx context.Context, returnCode string, status string) bool {
	path := "/returns/" + url.PathEscape(returnCode)
	_, err := c.do(ctx, "update_return", http.MethodPut, path, statusUpdateRequest{Status: status}, true)
	if err != nil {
		c.logger.Error("Failed to update return",
			zap.String("return_code", returnCode),
			zap.String("status", status),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

type response struct {
	status int
	body   []byte
}

// do performs an authenticated request. The loop is bounded by
// MaxUnauthorizedRetries; only 401 responses are retried.
// A non-nil response is returned alongside HTTP-level errors.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, throttle bool) (*response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marketplace: failed to encode %s request: %w", op, err)
		}
	}

	if throttle {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("marketplace: %s throttle: %w", op, err)
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "marketplace."+op,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("http.method", method),
	)
	defer span.End()

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := c.send(ctx, method, path, body, token)
		if err != nil {
			c.recorder.RecordVendorCall(ctx, op, 0, time.Since(start))
			telemetry.RecordError(span, err)
			return nil, err
		}
		c.recorder.RecordVendorCall(ctx, op, resp.status, time.Since(start))
		telemetry.SetAttribute(span, telemetry.SpanAttrHTTPStatusCode, resp.status)

		if resp.status != http.StatusUnauthorized {
			if resp.status < 200 || resp.status >= 300 {
				err := fmt.Errorf("%w: HTTP %d%s", integration.ErrVendorRequestFailed, resp.status, describe(resp.body))
				telemetry.RecordError(span, err)
				return resp, err
			}
			return resp, nil
		}

		if attempt >= c.config.MaxUnauthorizedRetries {
			err := fmt.Errorf("%w: HTTP 401 after %d refresh(es)", integration.ErrVendorUnauthorized, attempt)
			telemetry.RecordError(span, err)
			return resp, err
		}

		c.logger.Warn("Vendor rejected token, refreshing",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
		)
		c.recorder.RecordTokenRetry(ctx, op)
		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}
}

// send performs a single HTTP round trip
func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrVendorUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("marketplace: failed to read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// describe extracts the vendor's error message, if any
func describe(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return ""
	}
	switch {
	case er.Message != "":
		return " (" + er.Message + ")"
	case er.ErrorDescription != "":
		return " (" + er.ErrorDescription + ")"
	case er.Error != "":
		return " (" + er.Error + ")"
	}
	return ""
}
