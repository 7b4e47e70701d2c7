package order

import (
	"context"

	"github.com/storefront/server/internal/shared/events"
	"go.uber.org/zap"
)

// EventHandler applies payment events to orders.
type EventHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewEventHandler creates a new order event handler.
func NewEventHandler(service *Service, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{service: service, logger: logger}
}

// Handles returns the list of event types this handler can process.
func (h *EventHandler) Handles() []string {
	return []string{
		events.TypePaymentSucceeded,
		events.TypePaymentFailed,
	}
}

// Handle processes the given event.
func (h *EventHandler) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.PaymentSucceededEvent:
		return h.service.MarkPaid(ctx, e.OrderID, e.Reference)
	case *events.PaymentFailedEvent:
		return h.service.MarkPaymentFailed(ctx, e.OrderID, e.Reason)
	default:
		h.logger.Warn("unhandled event type",
			zap.String("event_type", event.EventType()),
		)
		return nil
	}
}

// Compile-time check that EventHandler implements events.Handler.
var _ events.Handler = (*EventHandler)(nil)
