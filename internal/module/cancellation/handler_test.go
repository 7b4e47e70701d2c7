package cancellation_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/cancellation"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/shared/response"
	"github.com/storefront/server/internal/utils/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	userHeader = "X-Test-User"
	roleHeader = "X-Test-Role"
)

// fakeAuth stands in for the JWT middleware.
func fakeAuth(c *gin.Context) {
	if id, err := uuid.Parse(c.GetHeader(userHeader)); err == nil {
		c.Set(middleware.UserIDKey, id)
		c.Set(middleware.RoleKey, c.GetHeader(roleHeader))
	}
	c.Next()
}

func newRouter(f *fixture) *gin.Engine {
	admins := middleware.NewAdminAuthorizer(nil, nil)
	h := cancellation.NewHandler(f.svc, admins, zap.NewNop())

	router := gin.New()
	api := router.Group("/api/v1")
	h.RegisterPublicRoutes(api)
	protected := api.Group("")
	protected.Use(fakeAuth)
	h.RegisterProtectedRoutes(protected, middleware.RequireAdmin(admins))
	return router
}

type caller struct {
	id   uuid.UUID
	role string
}

func call(t *testing.T, router *gin.Engine, who *caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set(userHeader, who.id.String())
		req.Header.Set(roleHeader, who.role)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandler_Workflow(t *testing.T) {
	customer := &caller{id: uuid.New(), role: "user"}
	admin := &caller{id: uuid.New(), role: "admin"}
	o := standardOrder(customer.id)
	f := newFixture(t, []*order.Order{o})
	router := newRouter(f)

	w := call(t, router, customer, http.MethodPost, "/api/v1/cancellation/request", gin.H{
		"orderNo": o.OrderNo,
		"reason":  "changed_mind",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[cancellation.CreatedResponse](t, w)
	assert.Equal(t, cancellation.TypeFullOrder, created.CancellationType)
	assert.Equal(t, int64(99000), created.ExpectedRefund)
	assert.Equal(t, 90.0, created.RefundPercentage)
	assert.True(t, created.IncludesDelivery)

	t.Run("duplicate request is a conflict", func(t *testing.T) {
		w := call(t, router, customer, http.MethodPost, "/api/v1/cancellation/request", gin.H{
			"orderId": o.ID.String(),
			"reason":  "CHANGED_MIND",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "PENDING_REQUEST_EXISTS", decode[response.ErrorResponse](t, w).Code)
	})

	t.Run("customers cannot process", func(t *testing.T) {
		w := call(t, router, customer, http.MethodPost, "/api/v1/cancellation/process", gin.H{
			"requestId": created.RequestID,
			"action":    "APPROVE",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	w = call(t, router, admin, http.MethodPost, "/api/v1/cancellation/process", gin.H{
		"cancellationId": created.CancellationID,
		"action":         "approved",
		"adminComments":  "ok",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	processed := decode[cancellation.ProcessResponse](t, w)
	assert.Equal(t, cancellation.StatusApproved, processed.Status)
	assert.Equal(t, int64(99000), processed.RefundAmount)
	assert.Equal(t, int64(9000), processed.DeliveryRefund)
	assert.Equal(t, cancellation.RefundProcessing, processed.RefundStatus)
	assert.Equal(t, order.StatusCancelled, processed.OrderStatus)

	w = call(t, router, admin, http.MethodPost, "/api/v1/cancellation/complete-refund", gin.H{
		"requestId":     created.RequestID,
		"transactionId": "TXN-42",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decode[cancellation.CompleteResponse](t, w)
	assert.Equal(t, "TXN-42", completed.RefundID)
	assert.Equal(t, cancellation.RefundCompleted, completed.RefundStatus)
	assert.Equal(t, cancellation.SourceManual, completed.Source)
	assert.NotNil(t, completed.RefundDate)

	t.Run("second completion is a conflict", func(t *testing.T) {
		w := call(t, router, admin, http.MethodPost, "/api/v1/cancellation/complete-refund", gin.H{
			"requestId": created.RequestID,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "REFUND_ALREADY_COMPLETED", decode[response.ErrorResponse](t, w).Code)
	})

	t.Run("owner reads the request", func(t *testing.T) {
		w := call(t, router, customer, http.MethodGet, "/api/v1/cancellation/"+created.CancellationID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "APPROVED", body["status"])
		assert.Equal(t, "FULL_ORDER", body["cancellationType"])
	})

	t.Run("strangers do not", func(t *testing.T) {
		w := call(t, router, &caller{id: uuid.New()}, http.MethodGet, "/api/v1/cancellation/"+created.CancellationID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_Validation(t *testing.T) {
	customer := &caller{id: uuid.New()}
	admin := &caller{id: uuid.New(), role: "admin"}
	o := standardOrder(customer.id)
	router := newRouter(newFixture(t, []*order.Order{o}))

	tests := []struct {
		name   string
		who    *caller
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "unauthenticated",
			path:   "/api/v1/cancellation/request",
			body:   gin.H{"orderNo": o.OrderNo, "reason": "CHANGED_MIND"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "missing reason",
			who:    customer,
			path:   "/api/v1/cancellation/request",
			body:   gin.H{"orderNo": o.OrderNo},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "malformed json",
			who:    customer,
			path:   "/api/v1/cancellation/request",
			body:   "not an object",
			status: http.StatusBadRequest,
			code:   "BAD_REQUEST",
		},
		{
			name:   "unknown order",
			who:    customer,
			path:   "/api/v1/cancellation/request",
			body:   gin.H{"orderNo": "ORD-20260101-NOPE0", "reason": "CHANGED_MIND"},
			status: http.StatusNotFound,
			code:   "ORDER_NOT_FOUND",
		},
		{
			name:   "override out of range",
			who:    admin,
			path:   "/api/v1/cancellation/process",
			body:   gin.H{"requestId": uuid.NewString(), "action": "APPROVE", "overridePercentage": 150},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown request",
			who:    admin,
			path:   "/api/v1/cancellation/complete-refund",
			body:   gin.H{"requestId": "CAN-20260101-ZZZZZ"},
			status: http.StatusNotFound,
			code:   "CANCELLATION_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, router, tt.who, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[response.ErrorResponse](t, w).Code)
			}
		})
	}
}

func TestHandler_PolicyAndEstimate(t *testing.T) {
	customer := &caller{id: uuid.New()}
	o := standardOrder(customer.id)
	router := newRouter(newFixture(t, []*order.Order{o}))

	w := call(t, router, nil, http.MethodGet, "/api/v1/cancellation/policy", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var policy map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &policy))
	assert.Equal(t, "test", policy["version"])
	assert.Len(t, policy["tiers"], 3)

	w = call(t, router, customer, http.MethodPost, "/api/v1/cancellation/estimate", gin.H{
		"orderRef":      o.OrderNo,
		"itemsToCancel": []gin.H{{"itemId": o.Items[1].ID.String()}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	est := decode[cancellation.Estimate](t, w)
	assert.Equal(t, cancellation.TypePartialItems, est.CancellationType)
	assert.Equal(t, int64(54000), est.ExpectedRefund)
	assert.False(t, est.HasPending)
}
