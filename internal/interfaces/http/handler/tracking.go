package handler

import (
	"context"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// TrackingEventProcessor applies one carrier status event
type TrackingEventProcessor interface {
	ProcessTrackingEvent(ctx context.Context, trackingID, statusCode string) error
}

var _ TrackingEventProcessor = (*appfulfillment.TrackingIngestor)(nil)

// TrackingHandler receives carrier webhooks
type TrackingHandler struct {
	BaseHandler
	ingestor     TrackingEventProcessor
	webhookToken string
}

// NewTrackingHandler creates a new TrackingHandler. A non-empty
// webhookToken must be sent as X-Webhook-Token.
func NewTrackingHandler(ingestor TrackingEventProcessor, webhookToken string) *TrackingHandler {
	return &TrackingHandler{ingestor: ingestor, webhookToken: webhookToken}
}

// ReceiveEvent handles POST /carrier/tracking-events. Events for unknown
// tracking IDs and repeated events are accepted and ignored.
//
// @Summary      Receive a carrier tracking event
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Token header string false "Shared webhook secret"
// @Param        request body appfulfillment.TrackingEventRequest true "Tracking event"
// @Success      202 {object} dto.Response{data=TrackingEventResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /carrier/tracking-events [post]
func (h *TrackingHandler) ReceiveEvent(c *gin.Context) {
	var req appfulfillment.TrackingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.ingestor.ProcessTrackingEvent(c.Request.Context(), req.TrackingID, req.StatusCode); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, TrackingEventResponse{TrackingID: req.TrackingID, Accepted: true})
}

// RegisterRoutes mounts the webhook route on rg behind the token check
func (h *TrackingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	carrier := rg.Group("/carrier", middleware.WebhookAuth(h.webhookToken))
	carrier.POST("/tracking-events", h.ReceiveEvent)
}
