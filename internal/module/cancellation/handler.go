package cancellation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/shared/response"
	"github.com/storefront/server/internal/utils/middleware"
	"go.uber.org/zap"
)

// AdminChecker decides whether a caller is a store operator.
type AdminChecker interface {
	IsAdmin(userID uuid.UUID, email, role string) bool
}

// Handler handles HTTP requests for cancellations.
type Handler struct {
	service *Service
	admins  AdminChecker
	logger  *zap.Logger
}

// NewHandler creates a new cancellation handler.
func NewHandler(service *Service, admins AdminChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, admins: admins, logger: logger}
}

// RegisterPublicRoutes registers routes that need no authentication.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/cancellation/policy", h.GetPolicy)
}

// RegisterProtectedRoutes registers cancellation routes. r must already
// authenticate the caller. requireAdmin guards the review routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup, requireAdmin gin.HandlerFunc) {
	cancellation := r.Group("/cancellation")
	{
		cancellation.POST("/request", h.RequestCancellation)
		cancellation.POST("/estimate", h.EstimateRefund)
		cancellation.GET("/orders/:orderRef", h.ListForOrder)
		cancellation.GET("/:ref", h.GetRequest)

		cancellation.POST("/process", requireAdmin, h.ProcessRequest)
		cancellation.POST("/complete-refund", requireAdmin, h.CompleteRefund)
		cancellation.GET("/pending", requireAdmin, h.ListPending)
	}
}

// GetPolicy returns the active cancellation policy.
//
//	@Summary		Get cancellation policy
//	@Description	Timing tiers, loyalty bonuses, penalties, blocked order statuses and accepted reasons
//	@Tags			Cancellation
//	@Produce		json
//	@Success		200	{object}	refundpolicy.Policy
//	@Failure		500	{object}	response.ErrorResponse
//	@Router			/cancellation/policy [get]
func (h *Handler) GetPolicy(c *gin.Context) {
	policy, err := h.service.ActivePolicy(c.Request.Context())
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, policy)
}

// RequestCancellation files a cancellation request.
//
//	@Summary		Request cancellation
//	@Description	Request cancellation of a whole order or of some of its items
//	@Tags			Cancellation
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Idempotency-Key	header		string		false	"Idempotency key"
//	@Param			request			body		RequestBody	true	"Cancellation request"
//	@Success		201				{object}	CreatedResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Router			/cancellation/request [post]
func (h *Handler) RequestCancellation(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var body RequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cmd, err := body.Normalize(userID)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	req, err := h.service.RequestCancellation(c.Request.Context(), cmd)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, CreatedResponse{
		RequestID:        req.ID.String(),
		CancellationID:   req.CancellationID,
		CancellationType: req.Type,
		Status:           req.Status,
		ExpectedRefund:   req.ExpectedRefund,
		RefundPercentage: req.Estimate.RefundPercentage,
		IncludesDelivery: req.IncludesDelivery,
		DeliveryRefund:   req.DeliveryRefund,
		Calculation:      req.Estimate,
	})
}

// EstimateRefund prices a cancellation without filing it.
//
//	@Summary		Estimate refund
//	@Tags			Cancellation
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RequestBody	true	"Cancellation to price"
//	@Success		200		{object}	Estimate
//	@Failure		400		{object}	response.ErrorResponse
//	@Failure		404		{object}	response.ErrorResponse
//	@Router			/cancellation/estimate [post]
func (h *Handler) EstimateRefund(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var body RequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cmd, err := body.NormalizeEstimate(userID)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	est, err := h.service.EstimateRefund(c.Request.Context(), cmd)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

// GetRequest returns one cancellation request.
//
//	@Summary		Get cancellation request
//	@Tags			Cancellation
//	@Produce		json
//	@Security		BearerAuth
//	@Param			ref	path		string	true	"Request ID or cancellation ID"
//	@Success		200	{object}	Request
//	@Failure		404	{object}	response.ErrorResponse
//	@Router			/cancellation/{ref} [get]
func (h *Handler) GetRequest(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var (
		req *Request
		err error
	)
	if h.isAdmin(c) {
		req, err = h.service.GetRequest(c.Request.Context(), c.Param("ref"))
	} else {
		req, err = h.service.GetRequestForUser(c.Request.Context(), userID, c.Param("ref"))
	}
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ListForOrder returns the cancellation history of an order.
//
//	@Summary		List cancellation requests of an order
//	@Tags			Cancellation
//	@Produce		json
//	@Security		BearerAuth
//	@Param			orderRef	path		string	true	"Order ID or order number"
//	@Success		200			{object}	ListResponse
//	@Failure		404			{object}	response.ErrorResponse
//	@Router			/cancellation/orders/{orderRef} [get]
func (h *Handler) ListForOrder(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	reqs, err := h.service.ListForOrder(c.Request.Context(), userID, c.Param("orderRef"), h.isAdmin(c))
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Requests: reqs, Total: int64(len(reqs))})
}

// ProcessRequest approves or rejects a pending request.
//
//	@Summary		Process cancellation request
//	@Description	Approve or reject a pending request. Approval computes the refund of record and updates the order.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Idempotency-Key	header		string		false	"Idempotency key"
//	@Param			request			body		ProcessBody	true	"Decision"
//	@Success		200				{object}	ProcessResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		403				{object}	response.ErrorResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Router			/cancellation/process [post]
func (h *Handler) ProcessRequest(c *gin.Context) {
	var body ProcessBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cmd, err := body.Normalize(middleware.GetUserID(c))
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	req, o, err := h.service.ProcessCancellationRequest(c.Request.Context(), cmd)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ProcessResponse{
		RequestID:        req.ID.String(),
		CancellationID:   req.CancellationID,
		Status:           req.Status,
		RefundAmount:     req.Admin.RefundAmount,
		RefundPercentage: req.Admin.RefundPercentage,
		DeliveryRefund:   req.Refund.DeliveryAmount,
		RefundStatus:     req.Refund.Status,
		OrderStatus:      o.Status,
	})
}

// CompleteRefund records the payout of an approved request.
//
//	@Summary		Complete refund
//	@Description	Mark the refund of an approved request completed. A second call is rejected.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Idempotency-Key	header		string			false	"Idempotency key"
//	@Param			request			body		CompleteBody	true	"Completion"
//	@Success		200				{object}	CompleteResponse
//	@Failure		400				{object}	response.ErrorResponse
//	@Failure		403				{object}	response.ErrorResponse
//	@Failure		404				{object}	response.ErrorResponse
//	@Failure		409				{object}	response.ErrorResponse
//	@Router			/cancellation/complete-refund [post]
func (h *Handler) CompleteRefund(c *gin.Context) {
	var body CompleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cmd, err := body.Normalize(middleware.GetUserID(c))
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	req, err := h.service.CompleteRefund(c.Request.Context(), cmd)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, CompleteResponse{
		RequestID:      req.ID.String(),
		CancellationID: req.CancellationID,
		RefundID:       req.Refund.RefundID,
		RefundDate:     req.Refund.RefundDate,
		RefundAmount:   req.Admin.RefundAmount,
		RefundStatus:   req.Refund.Status,
		Source:         req.Refund.Source,
	})
}

// ListPending returns the review queue.
//
//	@Summary		List pending cancellation requests
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			page		query		int	false	"Page number"	default(1)
//	@Param			page_size	query		int	false	"Page size"		default(20)
//	@Success		200			{object}	ListResponse
//	@Failure		403			{object}	response.ErrorResponse
//	@Router			/cancellation/pending [get]
func (h *Handler) ListPending(c *gin.Context) {
	pagination := order.NewPagination()
	if err := c.ShouldBindQuery(pagination); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	reqs, total, err := h.service.ListPending(c.Request.Context(), pagination)
	if err != nil {
		response.HandleAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{
		Requests: reqs,
		Total:    total,
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	})
}

func (h *Handler) isAdmin(c *gin.Context) bool {
	return h.admins != nil && h.admins.IsAdmin(middleware.GetUserID(c), middleware.GetEmail(c), middleware.GetRole(c))
}
