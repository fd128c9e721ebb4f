package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// OrderService is the part of the order service the HTTP layer uses
type OrderService interface {
	GetOrder(ctx context.Context, code string) (*fulfillment.Order, error)
	ListByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error)
	Search(ctx context.Context, term string, limit int) ([]*fulfillment.Order, error)
	CancelOrderLines(ctx context.Context, code string, requests []fulfillment.CancellationRequest) (*fulfillment.Order, error)
}

var _ OrderService = (*appfulfillment.OrderService)(nil)

// OrderHandler serves order lookups and line cancellations
type OrderHandler struct {
	BaseHandler
	orders OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// List handles GET /orders?status=&q=&limit=.
// status selects orders in that status; otherwise q searches code, customer
// email and product codes, and an empty q returns the most recent orders.
//
// @Summary      List or search orders
// @Tags         orders
// @Produce      json
// @Param        status query string false "Order status" Enums(CREATED, IN_PROGRESS, SHIPPED, DELIVERED, CANCELLED)
// @Param        q query string false "Order code, customer email or product code"
// @Param        limit query int false "Maximum number of orders"
// @Success      200 {object} dto.Response{data=[]OrderResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		orders, err := h.orders.ListByStatus(ctx, fulfillment.OrderStatus(status))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if limit > 0 && len(orders) > limit {
			orders = orders[:limit]
		}
		c.JSON(http.StatusOK, dto.NewListResponse(toOrderResponses(orders), limit))
		return
	}

	orders, err := h.orders.Search(ctx, c.Query("q"), limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if limit == 0 {
		limit = appfulfillment.DefaultSearchLimit
	}
	c.JSON(http.StatusOK, dto.NewListResponse(toOrderResponses(orders), limit))
}

// Get godoc
// @Summary      Get an order by marketplace code
// @Tags         orders
// @Produce      json
// @Param        code path string true "Marketplace order code"
// @Success      200 {object} dto.Response{data=OrderResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{code} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order))
}

// CancelLines godoc
// @Summary      Cancel order line quantities
// @Description  Validates every request against the remaining quantities,
// @Description  reports the cancellation to the marketplace and books it.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        code path string true "Marketplace order code"
// @Param        request body appfulfillment.CancelLinesRequest true "Lines to cancel"
// @Success      200 {object} dto.Response{data=OrderResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /orders/{code}/cancellations [post]
func (h *OrderHandler) CancelLines(c *gin.Context) {
	var req appfulfillment.CancelLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	requests := make([]fulfillment.CancellationRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		requests = append(requests, fulfillment.CancellationRequest{
			LineNumber: l.LineNumber,
			Quantity:   l.Quantity,
			Reason:     l.Reason,
		})
	}

	order, err := h.orders.CancelOrderLines(c.Request.Context(), c.Param("code"), requests)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toOrderResponse(order))
}

// RegisterRoutes mounts the order routes on rg
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	orders.GET("", h.List)
	orders.GET("/:code", h.Get)
	orders.POST("/:code/cancellations", h.CancelLines)
}
