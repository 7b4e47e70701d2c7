package notification

import (
	"context"
	"time"

	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/events"
	"github.com/storefront/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// EventHandler emails customers about their cancellation requests.
// Failures are returned to the bus, which logs them; the workflow that
// published the event has already committed.
type EventHandler struct {
	sender       Sender
	supportEmail string
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewEventHandler creates a new notification event handler.
func NewEventHandler(sender Sender, supportEmail string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *EventHandler {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		sender:       sender,
		supportEmail: supportEmail,
		timeout:      timeout,
		metrics:      m,
		logger:       logger,
	}
}

// Handles returns the list of event types this handler can process.
func (h *EventHandler) Handles() []string {
	return []string{
		events.TypeCancellationRequested,
		events.TypeCancellationApproved,
		events.TypeCancellationRejected,
		events.TypeRefundCompleted,
	}
}

// Handle renders and sends the email for event.
func (h *EventHandler) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.CancellationEvent)
	if !ok {
		h.logger.Warn("unhandled event type",
			zap.String("event_type", event.EventType()),
		)
		return nil
	}
	if e.CustomerEmail == "" {
		h.logger.Warn("no customer email, skipping notification",
			zap.String("event_type", e.EventType()),
			zap.String("cancellation_id", e.CancellationID),
		)
		return nil
	}

	msg, err := Render(e, h.supportEmail)
	if err != nil {
		return h.fail(e, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.sender.Send(ctx, msg); err != nil {
		return h.fail(e, err)
	}

	h.logger.Debug("notification sent",
		zap.String("event_type", e.EventType()),
		zap.String("cancellation_id", e.CancellationID),
	)
	return nil
}

func (h *EventHandler) fail(e *events.CancellationEvent, err error) error {
	h.metrics.RecordNotificationFailure(e.EventType())
	return apperrors.Notification(err)
}

// Compile-time check that EventHandler implements events.Handler.
var _ events.Handler = (*EventHandler)(nil)
