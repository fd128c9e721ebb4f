package handler

import (
	"context"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ConsignmentCanceller cancels consignments on user request
type ConsignmentCanceller interface {
	CancelConsignment(ctx context.Context, id uuid.UUID) (*fulfillment.Consignment, error)
}

var _ ConsignmentCanceller = (*appfulfillment.ConsignmentService)(nil)

// ConsignmentHandler serves consignment commands
type ConsignmentHandler struct {
	BaseHandler
	consignments ConsignmentCanceller
}

// NewConsignmentHandler creates a new ConsignmentHandler
func NewConsignmentHandler(consignments ConsignmentCanceller) *ConsignmentHandler {
	return &ConsignmentHandler{consignments: consignments}
}

// Cancel godoc
// @Summary      Cancel a consignment
// @Description  Cancels the consignment at the marketplace, then locally, and
// @Description  resolves the order status. A consignment the marketplace holds
// @Description  under an unresolved code is refused with 409.
// @Tags         consignments
// @Produce      json
// @Param        id path string true "Consignment ID" format(uuid)
// @Success      200 {object} dto.Response{data=ConsignmentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /consignments/{id}/cancel [post]
func (h *ConsignmentHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid consignment ID format")
		return
	}

	consignment, err := h.consignments.CancelConsignment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConsignmentResponse(consignment))
}

// RegisterRoutes mounts the consignment routes on rg
func (h *ConsignmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/consignments/:id/cancel", h.Cancel)
}
