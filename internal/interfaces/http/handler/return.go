package handler

import (
	"context"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReturnService is the part of the return service the HTTP layer uses
type ReturnService interface {
	CreateReturn(ctx context.Context, req appfulfillment.CreateReturnRequest) (*fulfillment.Return, error)
	UpdateReturnStatus(ctx context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (*fulfillment.Return, error)
	GetReturn(ctx context.Context, id uuid.UUID) (*fulfillment.Return, error)
}

var _ ReturnService = (*appfulfillment.ReturnService)(nil)

// ReturnHandler serves customer returns
type ReturnHandler struct {
	BaseHandler
	returns ReturnService
}

// NewReturnHandler creates a new ReturnHandler
func NewReturnHandler(returns ReturnService) *ReturnHandler {
	return &ReturnHandler{returns: returns}
}

// Create godoc
// @Summary      Open a customer return
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        request body appfulfillment.CreateReturnRequest true "Return details"
// @Success      201 {object} dto.Response{data=ReturnResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /returns [post]
func (h *ReturnHandler) Create(c *gin.Context) {
	var req appfulfillment.CreateReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	r, err := h.returns.CreateReturn(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toReturnResponse(r))
}

// Get godoc
// @Summary      Get a return
// @Tags         returns
// @Produce      json
// @Param        id path string true "Return ID" format(uuid)
// @Success      200 {object} dto.Response{data=ReturnResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /returns/{id} [get]
func (h *ReturnHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid return ID format")
		return
	}
	r, err := h.returns.GetReturn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReturnResponse(r))
}

// UpdateStatus godoc
// @Summary      Change a return's status
// @Description  RECEIVED books the returned quantities on the order lines once.
// @Tags         returns
// @Accept       json
// @Produce      json
// @Param        id path string true "Return ID" format(uuid)
// @Param        request body appfulfillment.UpdateReturnStatusRequest true "Target status"
// @Success      200 {object} dto.Response{data=ReturnResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /returns/{id}/status [put]
func (h *ReturnHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid return ID format")
		return
	}
	var req appfulfillment.UpdateReturnStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	r, err := h.returns.UpdateReturnStatus(c.Request.Context(), id, fulfillment.ReturnStatus(req.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReturnResponse(r))
}

// RegisterRoutes mounts the return routes on rg
func (h *ReturnHandler) RegisterRoutes(rg *gin.RouterGroup) {
	returns := rg.Group("/returns")
	returns.POST("", h.Create)
	returns.GET("/:id", h.Get)
	returns.PUT("/:id/status", h.UpdateStatus)
}
