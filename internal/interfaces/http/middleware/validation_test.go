package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingEventInput struct {
	TrackingID string `json:"tracking_id" binding:"required"`
	StatusCode string `json:"status_code" binding:"required,max=8"`
	Quantity   int    `json:"quantity" binding:"gte=0"`
}

func newValidationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req trackingEventInput
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return router
}

func TestHandleValidationError_FieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newValidationRouter()

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"status_code":"much-too-long","quantity":-1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-42", resp.Error.RequestID)

	fields := map[string]string{}
	for _, d := range resp.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "This field is required", fields["tracking_id"])
	assert.Equal(t, "Must be at most 8 characters", fields["status_code"])
	assert.Equal(t, "Must be greater than or equal to 0", fields["quantity"])
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newValidationRouter()

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"tracking_id":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "body", resp.Error.Details[0].Field)
}

func TestHandleValidationError_ValidInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newValidationRouter()

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"tracking_id":"T1","status_code":"transit"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetValidationMessage(t *testing.T) {
	type input struct {
		OneOf string `validate:"oneof=RECEIVING RECEIVED"`
		UUID  string `validate:"uuid"`
		GT    int    `validate:"gt=0"`
		Code  string `validate:"min=3"`
		Lines []int  `validate:"max=1"`
		Regex string `validate:"alpha"`
	}

	err := validator.New().Struct(input{OneOf: "LOST", UUID: "nope", Code: "A", Lines: []int{1, 2}, Regex: "1"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	got := map[string]string{}
	for _, e := range verrs {
		got[e.Field()] = getValidationMessage(e)
	}
	assert.Equal(t, "Must be one of: RECEIVING RECEIVED", got["OneOf"])
	assert.Equal(t, "Invalid UUID format", got["UUID"])
	assert.Equal(t, "Must be greater than 0", got["GT"])
	assert.Equal(t, "Must be at least 3 characters", got["Code"])
	assert.Equal(t, "Must be at most 1", got["Lines"])
	assert.Equal(t, "Invalid value", got["Regex"])
}
