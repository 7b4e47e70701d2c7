package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/events"
	"github.com/storefront/server/internal/utils/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send without deadline")
	}
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func cancellationEvent(eventType string) *events.CancellationEvent {
	at := time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)
	return &events.CancellationEvent{
		BaseEvent:        events.NewBaseEvent(eventType, uuid.New(), "CancellationRequest", at),
		CancellationID:   "CAN-20260311-K7Q2M",
		OrderNo:          "ORD-20260310-AB12C",
		CustomerEmail:    "buyer@example.com",
		CustomerName:     "Asha",
		CancellationType: "FULL_ORDER",
		Currency:         "INR",
		Items: []events.CancelledItem{
			{Name: "shirt", Quantity: 1, Amount: 36000},
			{Name: "shoes", Quantity: 1, Amount: 54000},
		},
		RefundAmount:     99000,
		RefundPercentage: 90,
		DeliveryRefund:   9000,
		Bonuses:          []string{"VIP member bonus: +5%"},
	}
}

func TestRender(t *testing.T) {
	t.Run("requested", func(t *testing.T) {
		msg, err := Render(cancellationEvent(events.TypeCancellationRequested), "help@example.com")
		require.NoError(t, err)

		assert.Equal(t, "buyer@example.com", msg.To)
		assert.Equal(t, "We received your cancellation request for order ORD-20260310-AB12C", msg.Subject)
		assert.Contains(t, msg.HTML, "Hi Asha,")
		assert.Contains(t, msg.HTML, "INR 360.00")
		assert.Contains(t, msg.HTML, "INR 90.00")
		assert.Contains(t, msg.HTML, "INR 990.00")
		assert.Contains(t, msg.HTML, "90.00%")
		assert.Contains(t, msg.HTML, "VIP member bonus: +5%")
		assert.Contains(t, msg.HTML, "mailto:help@example.com")
	})

	t.Run("rejected shows comments and no breakdown", func(t *testing.T) {
		e := cancellationEvent(events.TypeCancellationRejected)
		e.Comments = "already <shipped>"
		msg, err := Render(e, "")
		require.NoError(t, err)

		assert.Contains(t, msg.HTML, "already &lt;shipped&gt;")
		assert.NotContains(t, msg.HTML, "INR 990.00")
		assert.NotContains(t, msg.HTML, "mailto:")
	})

	t.Run("refunded", func(t *testing.T) {
		e := cancellationEvent(events.TypeRefundCompleted)
		e.RefundID = "RFD-01JNXYZ"
		refunded := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		e.RefundDate = &refunded
		msg, err := Render(e, "")
		require.NoError(t, err)

		assert.Contains(t, msg.Subject, "refund")
		assert.Contains(t, msg.HTML, "RFD-01JNXYZ")
		assert.Contains(t, msg.HTML, "14 Mar 2026")
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := Render(cancellationEvent("Something"), "")
		assert.Error(t, err)
	})
}

func TestEventHandler(t *testing.T) {
	t.Run("sends one email per event", func(t *testing.T) {
		sender := &recordingSender{}
		h := NewEventHandler(sender, "", time.Second, nil, zap.NewNop())

		for _, eventType := range h.Handles() {
			require.NoError(t, h.Handle(context.Background(), cancellationEvent(eventType)))
		}
		assert.Len(t, sender.sent, 4)
	})

	t.Run("failures are notification errors and counted", func(t *testing.T) {
		m := metrics.NewWithRegistry("test", prometheus.NewRegistry())
		sender := &recordingSender{err: errors.New("421 try later")}
		h := NewEventHandler(sender, "", time.Second, m, zap.NewNop())

		err := h.Handle(context.Background(), cancellationEvent(events.TypeCancellationApproved))

		assert.Equal(t, apperrors.KindNotification, apperrors.KindOf(err))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailuresTotal.WithLabelValues(events.TypeCancellationApproved)))
	})

	t.Run("no address is skipped", func(t *testing.T) {
		sender := &recordingSender{}
		h := NewEventHandler(sender, "", 0, nil, nil)
		e := cancellationEvent(events.TypeCancellationRequested)
		e.CustomerEmail = ""

		require.NoError(t, h.Handle(context.Background(), e))
		assert.Empty(t, sender.sent)
	})

	t.Run("a failing handler does not break the bus", func(t *testing.T) {
		bus := events.NewBus(zap.NewNop())
		bus.Register(NewEventHandler(&recordingSender{err: errors.New("down")}, "", time.Second, nil, nil))

		assert.NotPanics(t, func() {
			bus.Publish(context.Background(), cancellationEvent(events.TypeRefundCompleted))
		})
	})
}

func TestBreakerSender(t *testing.T) {
	failing := &recordingSender{err: errors.New("connection refused")}
	s := NewBreakerSender(failing, 2, time.Minute, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.Error(t, s.Send(ctx, Message{To: "a@example.com"}))
	assert.Error(t, s.Send(ctx, Message{To: "a@example.com"}))
	assert.Equal(t, gobreaker.StateOpen, s.State())

	failing.err = nil
	err := s.Send(ctx, Message{To: "a@example.com"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Empty(t, failing.sent)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).Send(context.Background(), Message{To: "a@example.com"}))
}
