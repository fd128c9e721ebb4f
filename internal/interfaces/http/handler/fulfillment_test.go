package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConsignmentCanceller implements ConsignmentCanceller for testing
type MockConsignmentCanceller struct {
	mock.Mock
}

func (m *MockConsignmentCanceller) CancelConsignment(ctx context.Context, id uuid.UUID) (*fulfillment.Consignment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Consignment), args.Error(1)
}

// MockReturnService implements ReturnService for testing
type MockReturnService struct {
	mock.Mock
}

func (m *MockReturnService) CreateReturn(ctx context.Context, req appfulfillment.CreateReturnRequest) (*fulfillment.Return, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Return), args.Error(1)
}

func (m *MockReturnService) UpdateReturnStatus(ctx context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (*fulfillment.Return, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Return), args.Error(1)
}

func (m *MockReturnService) GetReturn(ctx context.Context, id uuid.UUID) (*fulfillment.Return, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Return), args.Error(1)
}

// MockTrackingEventProcessor implements TrackingEventProcessor for testing
type MockTrackingEventProcessor struct {
	mock.Mock
}

func (m *MockTrackingEventProcessor) ProcessTrackingEvent(ctx context.Context, trackingID, statusCode string) error {
	return m.Called(ctx, trackingID, statusCode).Error(0)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestConsignmentHandler_Cancel(t *testing.T) {
	order := newTestOrder(t, "ORD-7")
	consignment, err := fulfillment.NewConsignment(order, "TRK-1", "DHL", time.Now())
	require.NoError(t, err)
	require.NoError(t, consignment.AddEntry(order.Lines[0], 2))
	require.NoError(t, consignment.Cancel())

	tests := []struct {
		name       string
		id         string
		setup      func(m *MockConsignmentCanceller)
		wantStatus int
		wantCode   string
	}{
		{
			name: "cancelled",
			id:   consignment.ID.String(),
			setup: func(m *MockConsignmentCanceller) {
				m.On("CancelConsignment", mock.Anything, consignment.ID).Return(consignment, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid id",
			id:         "not-a-uuid",
			setup:      func(m *MockConsignmentCanceller) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeBadRequest,
		},
		{
			name: "already delivered",
			id:   consignment.ID.String(),
			setup: func(m *MockConsignmentCanceller) {
				m.On("CancelConsignment", mock.Anything, consignment.ID).Return(nil, shared.ErrInvalidState)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeInvalidState,
		},
		{
			name: "vendor refused",
			id:   consignment.ID.String(),
			setup: func(m *MockConsignmentCanceller) {
				m.On("CancelConsignment", mock.Anything, consignment.ID).Return(nil, appfulfillment.ErrVendorRejected)
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   dto.ErrCodeVendorRejected,
		},
		{
			name: "vendor code unresolved",
			id:   consignment.ID.String(),
			setup: func(m *MockConsignmentCanceller) {
				m.On("CancelConsignment", mock.Anything, consignment.ID).Return(nil, appfulfillment.ErrVendorCodeUnknown)
			},
			wantStatus: http.StatusConflict,
			wantCode:   dto.ErrCodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockConsignmentCanceller)
			tt.setup(svc)
			r := gin.New()
			NewConsignmentHandler(svc).RegisterRoutes(r.Group("/api/v1"))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/consignments/"+tt.id+"/cancel", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
				return
			}
			data := resp.Data.(map[string]any)
			assert.Equal(t, "CANCELLED", data["status"])
			assert.Equal(t, "TRK-1", data["tracking_id"])
			svc.AssertExpectations(t)
		})
	}
}

func setupReturnRouter(svc ReturnService) *gin.Engine {
	r := gin.New()
	NewReturnHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestReturnHandler_Create(t *testing.T) {
	order := newTestOrder(t, "ORD-9")
	ret, err := fulfillment.NewReturn(order, "R-1")
	require.NoError(t, err)
	entry, err := ret.AddEntry(order.Lines[1], 2, "too small")
	require.NoError(t, err)
	entry.AddConsignment("RTN-1", "DHL")

	t.Run("created", func(t *testing.T) {
		svc := new(MockReturnService)
		svc.On("CreateReturn", mock.Anything, mock.MatchedBy(func(req appfulfillment.CreateReturnRequest) bool {
			return req.OrderCode == "ORD-9" && len(req.Entries) == 1 && req.Entries[0].Consignments[0].TrackingID == "RTN-1"
		})).Return(ret, nil)

		body := `{"order_code":"ORD-9","return_code":"R-1","entries":[{"line_number":1,"quantity":2,"reason":"too small",
			"consignments":[{"tracking_id":"RTN-1","carrier":"DHL","packages":[{"package_number":"P1","weight_grams":400}]}]}]}`
		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/returns", body))

		assert.Equal(t, http.StatusCreated, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "R-1", data["code"])
		assert.Equal(t, "IN_PROGRESS", data["status"])
		assert.Equal(t, "10.00", data["total_refund"])
		svc.AssertExpectations(t)
	})

	t.Run("missing entries", func(t *testing.T) {
		svc := new(MockReturnService)
		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/returns", `{"order_code":"ORD-9"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "CreateReturn", mock.Anything, mock.Anything)
	})

	t.Run("quantity exceeds remaining", func(t *testing.T) {
		svc := new(MockReturnService)
		svc.On("CreateReturn", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError("INVALID_QUANTITY", "Returned quantity exceeds remaining quantity for line 1"))

		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/returns",
			`{"order_code":"ORD-9","entries":[{"line_number":1,"quantity":50}]}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidationRange, decodeResponse(t, w).Error.Code)
	})
}

func TestReturnHandler_UpdateStatus(t *testing.T) {
	order := newTestOrder(t, "ORD-9")
	ret, err := fulfillment.NewReturn(order, "R-2")
	require.NoError(t, err)
	require.NoError(t, ret.TransitionTo(fulfillment.ReturnStatusReceiving))

	t.Run("moves forward", func(t *testing.T) {
		svc := new(MockReturnService)
		svc.On("UpdateReturnStatus", mock.Anything, ret.ID, fulfillment.ReturnStatusReceiving).Return(ret, nil)

		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPut,
			"/api/v1/returns/"+ret.ID.String()+"/status", `{"status":"RECEIVING"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "RECEIVING", decodeResponse(t, w).Data.(map[string]any)["status"])
		svc.AssertExpectations(t)
	})

	t.Run("status outside allowed set", func(t *testing.T) {
		svc := new(MockReturnService)
		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPut,
			"/api/v1/returns/"+ret.ID.String()+"/status", `{"status":"IN_PROGRESS"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "UpdateReturnStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("backwards transition", func(t *testing.T) {
		svc := new(MockReturnService)
		svc.On("UpdateReturnStatus", mock.Anything, ret.ID, fulfillment.ReturnStatusReceiving).Return(nil, shared.ErrInvalidState)

		w := httptest.NewRecorder()
		setupReturnRouter(svc).ServeHTTP(w, jsonRequest(http.MethodPut,
			"/api/v1/returns/"+ret.ID.String()+"/status", `{"status":"RECEIVING"}`))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupReturnRouter(new(MockReturnService)).ServeHTTP(w, jsonRequest(http.MethodPut,
			"/api/v1/returns/xyz/status", `{"status":"RECEIVED"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReturnHandler_Get(t *testing.T) {
	id := uuid.New()
	svc := new(MockReturnService)
	svc.On("GetReturn", mock.Anything, id).Return(nil, shared.ErrNotFound)

	w := httptest.NewRecorder()
	setupReturnRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/returns/"+id.String(), nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestTrackingHandler_ReceiveEvent(t *testing.T) {
	const token = "s3cret"

	tests := []struct {
		name       string
		token      string
		body       string
		setup      func(m *MockTrackingEventProcessor)
		wantStatus int
	}{
		{
			name:  "accepted",
			token: token,
			body:  `{"tracking_id":"TRK-1","status_code":"DLV"}`,
			setup: func(m *MockTrackingEventProcessor) {
				m.On("ProcessTrackingEvent", mock.Anything, "TRK-1", "DLV").Return(nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing token",
			body:       `{"tracking_id":"TRK-1","status_code":"DLV"}`,
			setup:      func(m *MockTrackingEventProcessor) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			token:      "guess",
			body:       `{"tracking_id":"TRK-1","status_code":"DLV"}`,
			setup:      func(m *MockTrackingEventProcessor) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing status code",
			token:      token,
			body:       `{"tracking_id":"TRK-1"}`,
			setup:      func(m *MockTrackingEventProcessor) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "storage failure",
			token: token,
			body:  `{"tracking_id":"TRK-1","status_code":"DLV"}`,
			setup: func(m *MockTrackingEventProcessor) {
				m.On("ProcessTrackingEvent", mock.Anything, "TRK-1", "DLV").
					Return(shared.NewRepositoryError("save", "consignment", errors.New("disk full")))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTrackingEventProcessor)
			tt.setup(svc)
			r := gin.New()
			NewTrackingHandler(svc, token).RegisterRoutes(r.Group("/api/v1"))

			req := jsonRequest(http.MethodPost, "/api/v1/carrier/tracking-events", tt.body)
			if tt.token != "" {
				req.Header.Set(middleware.WebhookTokenHeader, tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestTrackingHandler_NoTokenConfigured(t *testing.T) {
	svc := new(MockTrackingEventProcessor)
	svc.On("ProcessTrackingEvent", mock.Anything, "TRK-2", "TRN").Return(nil)
	r := gin.New()
	NewTrackingHandler(svc, "").RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/carrier/tracking-events", `{"tracking_id":"TRK-2","status_code":"TRN"}`))

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "TRK-2", data["tracking_id"])
	assert.Equal(t, true, data["accepted"])
}
