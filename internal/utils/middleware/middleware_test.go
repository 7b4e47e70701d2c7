package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/storefront/server/internal/module/auth"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/utils/metrics"
	"github.com/storefront/server/internal/utils/requestctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "middleware-test-secret-of-decent-length"

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func bearer(t *testing.T, userID uuid.UUID, email, role string) string {
	t.Helper()
	token, _, err := auth.NewJWTManager(&auth.JWTConfig{Secret: testSecret}).GenerateAccessToken(userID, email, role)
	require.NoError(t, err)
	return BearerPrefix + token
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		assert.Equal(t, GetRequestID(c), requestctx.RequestID(c.Request.Context()))
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates new request ID when not provided", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-request-id-123", w.Body.String())
	})

	t.Run("replaces oversized ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Len(t, w.Body.String(), 36)
	})
}

func TestLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})

	router := gin.New()
	router.Use(RequestID(), Logging(log))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/conflict", func(c *gin.Context) { c.Status(http.StatusConflict) })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	tests := []struct {
		path  string
		level string
	}{
		{"/ok?page=2", `"level":"INFO"`},
		{"/conflict", `"level":"WARN"`},
		{"/fail", `"level":"ERROR"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), `"request_id"`)
		})
	}
}

func TestLogging_RouteTemplate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})

	router := gin.New()
	router.Use(Logging(log))
	router.GET("/cancellation/:ref", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cancellation/CAN-20260311-7KQ2M", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/cancellation/:ref", entry["route"])
	assert.NotContains(t, buf.String(), "CAN-20260311-7KQ2M")
	assert.NotContains(t, entry, "user_id")
}

func TestRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: "error", Format: "json", Output: buf})

	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(DefaultCORSConfig()))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", IdempotencyKeyHeader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuth(t *testing.T) {
	validator := auth.NewJWTManager(&auth.JWTConfig{Secret: testSecret})
	userID := uuid.New()

	router := gin.New()
	router.Use(RequireAuth(validator))
	router.GET("/me", func(c *gin.Context) {
		actor, ok := requestctx.ActorFrom(c.Request.Context())
		assert.True(t, ok)
		assert.Equal(t, GetUserID(c), actor.UserID)
		c.String(http.StatusOK, GetUserID(c).String())
	})

	t.Run("accepts valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, bearer(t, userID, "buyer@example.com", ""))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("rejects missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+"garbage")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})
}

func TestRequireAdmin(t *testing.T) {
	validator := auth.NewJWTManager(&auth.JWTConfig{Secret: testSecret})
	listedAdmin := uuid.New()
	authorizer := NewAdminAuthorizer([]string{" Ops@Example.com "}, []string{listedAdmin.String(), "not-a-uuid"})

	router := gin.New()
	router.Use(RequireAuth(validator), RequireAdmin(authorizer))
	router.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"admin role claim", bearer(t, uuid.New(), "x@example.com", auth.RoleAdmin), http.StatusOK},
		{"listed email", bearer(t, uuid.New(), "ops@example.com", ""), http.StatusOK},
		{"listed user id", bearer(t, listedAdmin, "", ""), http.StatusOK},
		{"plain customer", bearer(t, uuid.New(), "buyer@example.com", ""), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req.Header.Set(AuthorizationHeader, tt.token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestIdempotency(t *testing.T) {
	client := newRedis(t)
	calls := 0

	router := gin.New()
	router.Use(Idempotency(client, DefaultIdempotencyConfig()))
	router.POST("/cancellation/request", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})
	router.POST("/flaky", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusInternalServerError, gin.H{"call": calls})
	})

	send := func(path, key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("replays the stored response", func(t *testing.T) {
		calls = 0
		first := send("/cancellation/request", "key-1", `{"orderRef":"ORD-1"}`)
		second := send("/cancellation/request", "key-1", `{"orderRef":"ORD-1"}`)

		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
		assert.Equal(t, 1, calls)
	})

	t.Run("rejects key reuse with a different body", func(t *testing.T) {
		w := send("/cancellation/request", "key-1", `{"orderRef":"ORD-2"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("does not store server errors", func(t *testing.T) {
		calls = 0
		send("/flaky", "key-2", `{}`)
		send("/flaky", "key-2", `{}`)
		assert.Equal(t, 2, calls)
	})

	t.Run("requests without key pass through", func(t *testing.T) {
		calls = 0
		send("/cancellation/request", "", `{}`)
		send("/cancellation/request", "", `{}`)
		assert.Equal(t, 2, calls)
	})
}

func TestRateLimit(t *testing.T) {
	limiter := NewRedisRateLimiter(newRedis(t))

	router := gin.New()
	router.Use(RateLimit(limiter, RateLimitConfig{Limit: 2, Window: time.Minute}))
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
		codes = append(codes, w.Code)
		if i == 2 {
			assert.NotEmpty(t, w.Header().Get(RetryAfter))
			assert.Equal(t, "0", w.Header().Get(RateLimitRemaining))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewWithRegistry("mw", prometheus.NewRegistry())

	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/123", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/orders/:id", "2xx")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}
