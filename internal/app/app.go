package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	_ "github.com/storefront/server/cmd/server/docs" // swagger docs
	"github.com/storefront/server/internal/module/auth"
	"github.com/storefront/server/internal/module/cancellation"
	"github.com/storefront/server/internal/module/notification"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/refundpolicy"
	sharedcache "github.com/storefront/server/internal/shared/cache"
	"github.com/storefront/server/internal/shared/config"
	"github.com/storefront/server/internal/shared/database"
	"github.com/storefront/server/internal/shared/events"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/utils/metrics"
	"github.com/storefront/server/internal/utils/middleware"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serviceName = "storefront"

// App represents the application.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	// Event infrastructure
	eventBus *events.Bus

	// Auth
	jwt    *auth.JWTManager
	admins *middleware.AdminAuthorizer

	// Modules
	orderHandler        *order.Handler
	cancellationHandler *cancellation.Handler
	webhookHandler      *payment.WebhookHandler

	// Services (for cross-module dependencies)
	orderRepo        order.Repository
	orderService     *order.Service
	requestRepo      cancellation.Repository
	cancellationSvc  *cancellation.Service
	policyStore      *refundpolicy.Store
	policySource     refundpolicy.Source
	refunder         payment.Refunder
	notificationSend notification.Sender
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	// Initialize logger
	logCfg := &logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: serviceName,
	}
	log := logger.New(logCfg)

	// Initialize zap logger for modules that use zap
	zapLog, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New(serviceName),
	}

	// Initialize database
	db, err := database.New(&cfg.Database, zapLog)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if cfg.Database.AutoMigrate {
		if err := migrate(db); err != nil {
			return nil, err
		}
	}

	// Initialize Redis (optional)
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			// Redis is optional, log warning but continue
			zapLog.Warn("redis unavailable, running without policy cache and idempotency", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	// Initialize router
	app.router = app.setupRouter()

	// Initialize modules
	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	// Start modules
	ctx := context.Background()
	if err := app.startModules(ctx); err != nil {
		return nil, fmt.Errorf("start modules: %w", err)
	}

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	// Set Gin mode based on environment
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Apply global middleware
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	// Health check endpoint
	r.GET("/health", a.health)

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation endpoint
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	// Initialize event bus for domain events
	a.eventBus = events.NewBus(a.zapLogger)

	a.initAuth()

	if err := a.initPolicy(); err != nil {
		return fmt.Errorf("init refund policy: %w", err)
	}

	a.initPaymentModule()
	a.initOrderModule()
	a.initCancellationModule()
	a.initNotificationModule()

	a.registerEventHandlers()
	return nil
}

func (a *App) initAuth() {
	a.jwt = auth.NewJWTManager(&auth.JWTConfig{
		Secret: a.config.Auth.JWTSecret,
		Issuer: a.config.Auth.Issuer,
	})
	a.admins = middleware.NewAdminAuthorizer(a.config.Auth.AdminEmails, a.config.Auth.AdminUserIDs)
}

// initPolicy builds the policy source chain: database, redis cache when
// available, and the configured default when both fail.
func (a *App) initPolicy() error {
	defaultPolicy, err := refundpolicy.FromConfig(a.config.Cancellation.Policy)
	if err != nil {
		return err
	}

	a.policyStore = refundpolicy.NewStore(a.db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.policyStore.EnsureDefault(ctx, defaultPolicy); err != nil {
		a.zapLogger.Warn("could not seed default cancellation policy", zap.Error(err))
	}

	var source refundpolicy.Source = a.policyStore
	if a.redis != nil {
		source = refundpolicy.NewCachedSource(source, a.redis, a.config.Cancellation.PolicyCacheTTL, a.metrics, a.zapLogger)
	}
	a.policySource = refundpolicy.NewFallbackSource(source, defaultPolicy, a.zapLogger)
	return nil
}

// initPaymentModule initializes the refund gateway and the webhook receiver.
func (a *App) initPaymentModule() {
	cfg := a.config.Payment
	if cfg.StripeSecretKey != "" {
		a.refunder = payment.NewStripeRefunder(payment.StripeConfig{
			SecretKey:       cfg.StripeSecretKey,
			Timeout:         cfg.RefundTimeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerTimeout:  cfg.BreakerTimeout,
		}, a.zapLogger)
	} else {
		a.zapLogger.Info("stripe not configured, refunds complete with manual or generated ids")
	}

	if cfg.StripeWebhookSecret != "" {
		a.webhookHandler = payment.NewWebhookHandler(
			cfg.StripeWebhookSecret,
			payment.NewWebhookRepository(a.db),
			a.eventBus,
			a.zapLogger,
		)
	}
}

// initOrderModule initializes the order module.
func (a *App) initOrderModule() {
	a.orderRepo = order.NewRepository(a.db)
	a.requestRepo = cancellation.NewRepository(a.db)

	a.orderService = order.NewService(
		a.orderRepo,
		database.NewTxRunner(a.db),
		a.requestRepo, // order.PendingChecker
		a.zapLogger,
	)
	a.orderHandler = order.NewHandler(a.orderService, a.zapLogger)
}

// initCancellationModule initializes the cancellation workflow.
func (a *App) initCancellationModule() {
	deps := cancellation.Deps{
		Orders:    a.orderRepo,
		Requests:  a.requestRepo,
		Tx:        database.NewTxRunner(a.db),
		Policies:  a.policySource,
		Refunder:  a.refunder,
		Publisher: a.eventBus,
		Metrics:   a.metrics,
		Logger:    a.zapLogger,
	}
	a.cancellationSvc = cancellation.NewService(deps)
	a.cancellationHandler = cancellation.NewHandler(a.cancellationSvc, a.admins, a.zapLogger)
}

// initNotificationModule picks the mail transport.
func (a *App) initNotificationModule() {
	cfg := a.config.Notification
	if cfg.SMTPHost == "" || cfg.FromAddress == "" {
		a.zapLogger.Info("smtp not configured, customer emails are logged only")
		a.notificationSend = notification.NewLogSender(a.zapLogger)
		return
	}

	smtpSender := notification.NewSMTPSender(&notification.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		User:        cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
	}, a.zapLogger)
	a.notificationSend = notification.NewBreakerSender(smtpSender, 3, time.Minute, a.zapLogger)
}

// registerEventHandlers registers all domain event handlers.
func (a *App) registerEventHandlers() {
	// Order module handles PaymentSucceeded and PaymentFailed events
	a.eventBus.Register(order.NewEventHandler(a.orderService, a.zapLogger))

	// Notification module emails customers about cancellation transitions
	a.eventBus.Register(notification.NewEventHandler(
		a.notificationSend,
		a.config.Notification.SupportEmail,
		a.config.Notification.SendTimeout,
		a.metrics,
		a.zapLogger,
	))
}

// startModules starts all application modules.
func (a *App) startModules(_ context.Context) error {
	// Register module routes
	a.registerRoutes()
	return nil
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	// API v1 group
	v1 := a.router.Group("/api/v1")

	// Public routes (no auth required)
	publicRouter := v1.Group("")

	// Protected routes (requires auth)
	protectedRouter := v1.Group("")
	protectedRouter.Use(middleware.RequireAuth(a.jwt))

	// Admin routes (requires admin auth)
	requireAdmin := middleware.RequireAdmin(a.admins)
	adminRouter := v1.Group("/admin")
	adminRouter.Use(middleware.RequireAuth(a.jwt), requireAdmin)

	// Replay-safe mutations and per-caller rate limits need redis
	if a.redis != nil {
		protectedRouter.Use(
			middleware.RateLimit(middleware.NewRedisRateLimiter(a.redis), middleware.RateLimitConfig{
				Limit:  60,
				Window: time.Minute,
			}),
			middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()),
		)
		adminRouter.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))
	}

	// Webhook routes (no auth required, uses signature verification)
	webhookRouter := a.router.Group("/webhooks")

	// Register module routes
	a.cancellationHandler.RegisterPublicRoutes(publicRouter)
	a.cancellationHandler.RegisterProtectedRoutes(protectedRouter, requireAdmin)
	a.orderHandler.RegisterProtectedRoutes(protectedRouter)
	a.orderHandler.RegisterAdminRoutes(adminRouter)
	if a.webhookHandler != nil {
		a.webhookHandler.RegisterRoutes(webhookRouter)
	}
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	// Sync zap logger
	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}

	// Close Redis connection
	if a.redis != nil {
		_ = sharedcache.Close(a.redis)
	}

	// Close database connection
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
