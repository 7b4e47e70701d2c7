package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/response"
	"github.com/storefront/server/internal/utils/middleware"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for orders.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new order handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterProtectedRoutes registers order routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
	}
}

// RegisterAdminRoutes registers operator routes. r must already enforce the admin role.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.PATCH("/:id/status", h.UpdateStatus)
	}
}

// ListOrders returns orders for the current user.
//
//	@Summary		List orders
//	@Description	Get all orders for the current user
//	@Tags			Order
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int	false	"Page number"	default(1)
//	@Param			page_size	query		int	false	"Page size"		default(20)
//	@Success		200			{object}	OrderListResponse
//	@Failure		400			{object}	response.ErrorResponse
//	@Failure		401			{object}	response.ErrorResponse
//	@Router			/orders [get]
func (h *Handler) ListOrders(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	pagination := NewPagination()
	if err := c.ShouldBindQuery(pagination); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	orders, total, err := h.service.ListOrders(c.Request.Context(), userID, pagination)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	resp := OrderListResponse{
		Orders:   make([]*OrderResponse, len(orders)),
		Total:    total,
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	}
	for i, o := range orders {
		resp.Orders[i] = o.ToResponse()
	}
	c.JSON(http.StatusOK, resp)
}

// GetOrder returns a single order of the current user.
//
//	@Summary		Get order
//	@Description	Get an order by id or order number
//	@Tags			Order
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Order ID or order number"
//	@Success		200	{object}	OrderResponse
//	@Failure		401	{object}	response.ErrorResponse
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/orders/{id} [get]
func (h *Handler) GetOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	order, err := h.service.GetOrder(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order.ToResponse())
}

// CreateOrder imports an order from checkout.
//
//	@Summary		Import order
//	@Description	Record an order placed through checkout
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		CreateOrderRequest	true	"Order"
//	@Success		201		{object}	OrderResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		403		{object}	response.ErrorResponse
//	@Router			/admin/orders [post]
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order, err := h.service.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, order.ToResponse())
}

// UpdateStatus moves an order through fulfilment.
//
//	@Summary		Update order status
//	@Description	Set the fulfilment status of an order. Refused while a cancellation request is pending.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string				true	"Order ID or order number"
//	@Param			request	body		UpdateStatusRequest	true	"New status"
//	@Success		200		{object}	OrderResponse
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Failure		409		{object}	response.ErrorResponse
//	@Router			/admin/orders/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	order, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order.ToResponse())
}
