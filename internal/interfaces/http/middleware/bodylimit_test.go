package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const trackingEvent = `{"tracking_id":"00340434161094042557","status_code":"DELIVERED"}`

// echoLength reads the whole body and answers 200, or 413 once the reader trips
func echoLength(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", len(body))
}

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		limit    int64
		method   string
		body     string
		chunked  bool
		wantCode int
		wantBody string
	}{
		{"event within limit", 1024, http.MethodPost, trackingEvent, false, http.StatusOK, ""},
		{"declared length over limit", 16, http.MethodPost, trackingEvent, false, http.StatusRequestEntityTooLarge, "ERR_REQUEST_TOO_LARGE"},
		{"chunked body trips reader", 16, http.MethodPost, trackingEvent, true, http.StatusRequestEntityTooLarge, ""},
		{"bodiless GET", 1, http.MethodGet, "", false, http.StatusOK, "0"},
		{"zero disables", 0, http.MethodPost, strings.Repeat(trackingEvent, 100), false, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(BodyLimit(tt.limit))
			router.Handle(tt.method, "/carrier/tracking-events", echoLength)

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, "/carrier/tracking-events", body)
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}
