package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/events"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 64 << 10
	orderIDMetadataKey    = "order_id"
)

// WebhookHandler turns Stripe webhook deliveries into payment events.
type WebhookHandler struct {
	secret     string
	repo       WebhookRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. A dispatch error answers
// 500 and leaves the delivery unprocessed so the gateway retries it.
func NewWebhookHandler(secret string, repo WebhookRepository, dispatcher events.Dispatcher, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		secret:     secret,
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook handles Stripe webhooks.
//
//	@Summary	Stripe webhook
//	@Tags		Webhooks
//	@Accept		json
//	@Produce	json
//	@Param		Stripe-Signature	header		string	true	"Stripe signature"
//	@Success	200					{object}	map[string]string
//	@Failure	400					{object}	response.ErrorResponse
//	@Router		/webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader(stripeSignatureHeader), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe webhook rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidSignature.Message, "code": ErrInvalidSignature.Code})
		return
	}

	ctx := c.Request.Context()
	stored, err := h.repo.Record(ctx, &WebhookEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Payload: string(payload),
	})
	if err != nil {
		h.logger.Error("failed to record webhook event", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}
	if stored.Processed() {
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		return
	}

	handleErr := h.dispatch(ctx, &event)
	if err := h.repo.MarkProcessed(ctx, event.ID, handleErr); err != nil {
		h.logger.Error("failed to mark webhook event processed", zap.String("event_id", event.ID), zap.Error(err))
	}
	if handleErr != nil {
		h.logger.Error("failed to process webhook",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(handleErr),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

func (h *WebhookHandler) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		orderID, ok := h.orderID(&pi)
		if !ok {
			return nil
		}
		reference := pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			reference = pi.LatestCharge.ID
		}
		return h.dispatcher.Dispatch(ctx, &events.PaymentSucceededEvent{
			BaseEvent: events.NewBaseEvent(events.TypePaymentSucceeded, orderID, "Order", eventTime(event)),
			OrderID:   orderID,
			Reference: reference,
			Amount:    pi.AmountReceived,
			Currency:  string(pi.Currency),
		})

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		orderID, ok := h.orderID(&pi)
		if !ok {
			return nil
		}
		reason := "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			reason = pi.LastPaymentError.Msg
		}
		return h.dispatcher.Dispatch(ctx, &events.PaymentFailedEvent{
			BaseEvent: events.NewBaseEvent(events.TypePaymentFailed, orderID, "Order", eventTime(event)),
			OrderID:   orderID,
			Reference: pi.ID,
			Reason:    reason,
		})

	default:
		h.logger.Debug("ignoring stripe event", zap.String("event_type", string(event.Type)))
		return nil
	}
}

// orderID reads the order id the checkout stored in the intent metadata.
func (h *WebhookHandler) orderID(pi *stripe.PaymentIntent) (uuid.UUID, bool) {
	id, err := uuid.Parse(pi.Metadata[orderIDMetadataKey])
	if err != nil {
		h.logger.Warn("payment intent without order id",
			zap.String("payment_intent", pi.ID),
			zap.String(orderIDMetadataKey, pi.Metadata[orderIDMetadataKey]),
		)
		return uuid.Nil, false
	}
	return id, true
}

func eventTime(event *stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return time.Now().UTC()
}
