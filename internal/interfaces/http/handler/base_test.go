package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandlerSuccessResponses(t *testing.T) {
	tests := []struct {
		name   string
		call   func(h *BaseHandler, c *gin.Context)
		status int
	}{
		{"success", func(h *BaseHandler, c *gin.Context) { h.Success(c, gin.H{"k": "v"}) }, http.StatusOK},
		{"created", func(h *BaseHandler, c *gin.Context) { h.Created(c, gin.H{"id": "1"}) }, http.StatusCreated},
		{"accepted", func(h *BaseHandler, c *gin.Context) { h.Accepted(c, gin.H{"ok": true}) }, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			tt.call(&BaseHandler{}, c)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.True(t, resp.Success)
			assert.NotNil(t, resp.Data)
			assert.Nil(t, resp.Error)
		})
	}
}

func TestBaseHandlerErrorIncludesRequestID(t *testing.T) {
	c, w := newTestContext()
	c.Set(middleware.RequestIDKey, "req-42")

	h := &BaseHandler{}
	h.BadRequest(c, "nope")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	assert.Equal(t, "nope", resp.Error.Message)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}

func TestBaseHandlerInternalError(t *testing.T) {
	c, w := newTestContext()
	(&BaseHandler{}).InternalError(c, "boom")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("lookup: %w", shared.ErrNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"invalid argument", shared.ErrInvalidArgument, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid quantity", shared.NewDomainError("INVALID_QUANTITY", "too many"), http.StatusBadRequest, dto.ErrCodeValidationRange},
		{"null entity", shared.ErrOrderIsNull, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"unmapped domain code", shared.NewDomainError("SOMETHING_ODD", "odd"), http.StatusBadRequest, "SOMETHING_ODD"},
		{"vendor rejected", fmt.Errorf("cancel: %w", appfulfillment.ErrVendorRejected), http.StatusBadGateway, dto.ErrCodeVendorRejected},
		{"storage", shared.NewRepositoryError("find", "order", errors.New("db down")), http.StatusInternalServerError, dto.ErrCodeStorage},
		{"timeout", fmt.Errorf("vendor call: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, dto.ErrCodeInternal},
		{"unknown", errors.New("kaput"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Len(t, c.Errors, 1)
		})
	}
}

func TestBaseHandlerHandleValidationError(t *testing.T) {
	c, w := newTestContext()
	err := &shared.ValidationError{
		Entity: "CancellationRequest",
		Fields: []shared.FieldError{{Field: "quantity", Message: "must be positive"}},
	}
	(&BaseHandler{}).HandleError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "quantity", resp.Error.Details[0].Field)
}

func TestBaseHandlerHandleNilError(t *testing.T) {
	c, w := newTestContext()
	(&BaseHandler{}).HandleError(c, nil)

	assert.Empty(t, c.Errors)
	assert.Equal(t, 0, w.Body.Len())
}
