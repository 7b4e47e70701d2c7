package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryWebhookRepo struct {
	mu     sync.Mutex
	events map[string]*WebhookEvent
}

func newMemoryWebhookRepo() *memoryWebhookRepo {
	return &memoryWebhookRepo{events: make(map[string]*WebhookEvent)}
}

func (r *memoryWebhookRepo) Record(_ context.Context, event *WebhookEvent) (*WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.events[event.EventID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *event
	r.events[event.EventID] = &cp
	return event, nil
}

func (r *memoryWebhookRepo) MarkProcessed(_ context.Context, eventID string, handleErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	e := r.events[eventID]
	e.ProcessedAt = &now
	e.Error = ""
	if handleErr != nil {
		e.Error = handleErr.Error()
	}
	return nil
}

type captureDispatcher struct {
	events []events.Event
	err    error
}

func (d *captureDispatcher) Dispatch(_ context.Context, event events.Event) error {
	d.events = append(d.events, event)
	return d.err
}

func sign(payload string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventID, eventType, intent string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":1760000000,"data":{"object":%s}}`,
		eventID, eventType, intent)
}

func setupWebhook() (*gin.Engine, *captureDispatcher, *memoryWebhookRepo) {
	pub := &captureDispatcher{}
	repo := newMemoryWebhookRepo()
	h := NewWebhookHandler(testWebhookSecret, repo, pub, zap.NewNop())
	r := gin.New()
	h.RegisterRoutes(r.Group("/webhooks"))
	return r, pub, repo
}

func deliver(r *gin.Engine, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_PaymentSucceeded(t *testing.T) {
	r, pub, _ := setupWebhook()
	orderID := uuid.New()
	payload := intentEvent("evt_1", "payment_intent.succeeded", fmt.Sprintf(
		`{"id":"pi_1","object":"payment_intent","amount_received":110000,"currency":"inr","latest_charge":"ch_1","metadata":{"order_id":%q}}`,
		orderID))

	w := deliver(r, payload, sign(payload, time.Now()))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "processed")
	require.Len(t, pub.events, 1)
	e, ok := pub.events[0].(*events.PaymentSucceededEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, e.OrderID)
	assert.Equal(t, "ch_1", e.Reference)
	assert.Equal(t, int64(110000), e.Amount)
	assert.Equal(t, "inr", e.Currency)

	t.Run("redelivery is ignored", func(t *testing.T) {
		w := deliver(r, payload, sign(payload, time.Now()))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "already_processed")
		assert.Len(t, pub.events, 1)
	})
}

func TestWebhookHandler_PaymentFailed(t *testing.T) {
	r, pub, _ := setupWebhook()
	orderID := uuid.New()
	payload := intentEvent("evt_2", "payment_intent.payment_failed", fmt.Sprintf(
		`{"id":"pi_2","object":"payment_intent","last_payment_error":{"message":"card declined"},"metadata":{"order_id":%q}}`,
		orderID))

	w := deliver(r, payload, sign(payload, time.Now()))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.events, 1)
	e, ok := pub.events[0].(*events.PaymentFailedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, e.OrderID)
	assert.Equal(t, "pi_2", e.Reference)
	assert.Equal(t, "card declined", e.Reason)
}

func TestWebhookHandler_Rejections(t *testing.T) {
	t.Run("bad signature", func(t *testing.T) {
		r, pub, repo := setupWebhook()
		payload := intentEvent("evt_3", "payment_intent.succeeded", `{"id":"pi_3","object":"payment_intent"}`)

		w := deliver(r, payload, "t=1,v1=deadbeef")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_SIGNATURE")
		assert.Empty(t, pub.events)
		assert.Empty(t, repo.events)
	})

	t.Run("intent without order id is acknowledged", func(t *testing.T) {
		r, pub, repo := setupWebhook()
		payload := intentEvent("evt_4", "payment_intent.succeeded", `{"id":"pi_4","object":"payment_intent","metadata":{}}`)

		w := deliver(r, payload, sign(payload, time.Now()))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, pub.events)
		assert.True(t, repo.events["evt_4"].Processed())
	})

	t.Run("unrelated events are acknowledged", func(t *testing.T) {
		r, pub, _ := setupWebhook()
		payload := intentEvent("evt_5", "customer.created", `{"id":"cus_1","object":"customer"}`)

		w := deliver(r, payload, sign(payload, time.Now()))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, pub.events)
	})
}

func TestWebhookHandler_DispatchFailure(t *testing.T) {
	r, pub, repo := setupWebhook()
	pub.err = errors.New("order not found")
	orderID := uuid.New()
	payload := intentEvent("evt_6", "payment_intent.succeeded", fmt.Sprintf(
		`{"id":"pi_6","object":"payment_intent","latest_charge":"ch_6","metadata":{"order_id":%q}}`,
		orderID))

	w := deliver(r, payload, sign(payload, time.Now()))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	stored := repo.events["evt_6"]
	assert.False(t, stored.Processed())
	assert.Equal(t, "order not found", stored.Error)

	t.Run("redelivery retries once the order handler recovers", func(t *testing.T) {
		pub.err = nil

		w := deliver(r, payload, sign(payload, time.Now()))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"processed"`)
		assert.Len(t, pub.events, 2)
		assert.True(t, repo.events["evt_6"].Processed())
	})
}
