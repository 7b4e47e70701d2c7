package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/order/ordertest"
	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pendingStub struct {
	pending bool
	err     error
}

func (p pendingStub) HasPending(context.Context, uuid.UUID) (bool, error) {
	return p.pending, p.err
}

func newService(repo *ordertest.Repository, pending order.PendingChecker) *order.Service {
	return order.NewService(repo, &ordertest.TxRunner{}, pending, zap.NewNop())
}

func TestService_CreateOrder(t *testing.T) {
	repo := ordertest.NewRepository()
	svc := newService(repo, nil)
	sizePrice := int64(35000)

	created, err := svc.CreateOrder(context.Background(), &order.CreateOrderRequest{
		UserID:         uuid.New(),
		CustomerEmail:  "buyer@example.com",
		DeliveryCharge: 10000,
		Items: []order.CreateOrderItemRequest{
			{CatalogID: "p-1", Name: "Kettle", Quantity: 2, UnitPrice: 30000},
			{CatalogID: "b-1", Name: "Tea set", Kind: order.ItemKindBundle, Quantity: 1, UnitPrice: 30000, Size: "L", SizePrice: &sizePrice},
		},
	})
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-\d{8}-[A-Z0-9]{5}$`, created.OrderNo)
	assert.Equal(t, order.StatusPaymentPending, created.Status)
	assert.Equal(t, order.PaymentPending, created.PaymentStatus)
	assert.Equal(t, order.PaymentMethodOnline, created.PaymentMethod)
	assert.Equal(t, "INR", created.Currency)
	assert.Equal(t, int64(60000), created.Items[0].LineTotal)
	assert.Equal(t, int64(35000), created.Items[1].LineTotal)
	assert.Equal(t, int64(95000), created.Subtotal)
	assert.Equal(t, int64(105000), created.TotalAmt)
	assert.Equal(t, created.TotalAmt, created.OriginalTotal)
	assert.NotNil(t, repo.Get(created.ID))
}

func TestService_CreateOrder_COD(t *testing.T) {
	svc := newService(ordertest.NewRepository(), nil)

	created, err := svc.CreateOrder(context.Background(), &order.CreateOrderRequest{
		UserID:        uuid.New(),
		CustomerEmail: "buyer@example.com",
		PaymentMethod: order.PaymentMethodCOD,
		Items:         []order.CreateOrderItemRequest{{CatalogID: "p-1", Name: "Mug", Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusOrderPlaced, created.Status)
}

func TestService_CreateOrder_Validation(t *testing.T) {
	svc := newService(ordertest.NewRepository(), nil)

	_, err := svc.CreateOrder(context.Background(), &order.CreateOrderRequest{
		PaymentMethod: "CRYPTO",
		Items:         []order.CreateOrderItemRequest{{Quantity: 0}},
	})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields, "user_id")
	assert.Contains(t, appErr.Fields, "payment_method")
	assert.Contains(t, appErr.Fields, "items[0]")
}

func TestService_GetOrder(t *testing.T) {
	owner := uuid.New()
	o := ordertest.PaidOrder(owner, time.Now(), 0, ordertest.Item("a", 1000))
	svc := newService(ordertest.NewRepository(o), nil)
	ctx := context.Background()

	got, err := svc.GetOrder(ctx, owner, o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, o.OrderNo, got.OrderNo)

	got, err = svc.GetOrder(ctx, owner, o.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = svc.GetOrder(ctx, uuid.New(), o.OrderNo)
	assert.ErrorIs(t, err, order.ErrOrderNotFound, "foreign orders look missing")

	_, err = svc.GetOrder(ctx, owner, "ORD-00000000-NOPE0")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivered stamps actual delivery", func(t *testing.T) {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		o.Status = order.StatusOutForDelivery
		repo := ordertest.NewRepository(o)

		updated, err := newService(repo, pendingStub{}).UpdateStatus(ctx, o.OrderNo, order.StatusDelivered)
		require.NoError(t, err)
		assert.Equal(t, order.StatusDelivered, updated.Status)
		assert.NotNil(t, repo.Get(o.ID).ActualDeliveryDate)
	})

	t.Run("refused while cancellation is pending", func(t *testing.T) {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		repo := ordertest.NewRepository(o)

		_, err := newService(repo, pendingStub{pending: true}).UpdateStatus(ctx, o.ID.String(), order.StatusProcessing)
		assert.ErrorIs(t, err, order.ErrUnderCancellationReview)
		assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
		assert.Equal(t, order.StatusOrderPlaced, repo.Get(o.ID).Status)
	})

	t.Run("pending check failure is a dependency error", func(t *testing.T) {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		svc := newService(ordertest.NewRepository(o), pendingStub{err: errors.New("db down")})

		_, err := svc.UpdateStatus(ctx, o.ID.String(), order.StatusProcessing)
		assert.Equal(t, apperrors.KindDependency, apperrors.KindOf(err))
	})

	t.Run("invalid transition", func(t *testing.T) {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		svc := newService(ordertest.NewRepository(o), pendingStub{})

		_, err := svc.UpdateStatus(ctx, o.ID.String(), order.StatusDelivered)
		assert.ErrorIs(t, err, order.ErrInvalidTransition)
	})

	t.Run("workflow statuses are not settable", func(t *testing.T) {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		svc := newService(ordertest.NewRepository(o), pendingStub{})

		_, err := svc.UpdateStatus(ctx, o.ID.String(), order.StatusCancelled)
		assert.ErrorIs(t, err, order.ErrInvalidTransition)

		_, err = svc.UpdateStatus(ctx, o.ID.String(), "SHIPPED")
		assert.ErrorIs(t, err, order.ErrUnknownStatus)
	})
}

func TestEventHandler_Payments(t *testing.T) {
	ctx := context.Background()
	o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
	o.Status = order.StatusPaymentPending
	o.PaymentStatus = order.PaymentPending
	repo := ordertest.NewRepository(o)
	handler := order.NewEventHandler(newService(repo, nil), zap.NewNop())

	assert.ElementsMatch(t, []string{events.TypePaymentSucceeded, events.TypePaymentFailed}, handler.Handles())

	failed := &events.PaymentFailedEvent{
		BaseEvent: events.NewBaseEvent(events.TypePaymentFailed, o.ID, "Order", time.Now()),
		OrderID:   o.ID,
		Reason:    "card_declined",
	}
	require.NoError(t, handler.Handle(ctx, failed))
	assert.Equal(t, order.PaymentFailed, repo.Get(o.ID).PaymentStatus)

	paid := &events.PaymentSucceededEvent{
		BaseEvent: events.NewBaseEvent(events.TypePaymentSucceeded, o.ID, "Order", time.Now()),
		OrderID:   o.ID,
		Reference: "pi_123",
	}
	require.NoError(t, handler.Handle(ctx, paid))
	require.NoError(t, handler.Handle(ctx, paid), "duplicate deliveries are ignored")

	stored := repo.Get(o.ID)
	assert.Equal(t, order.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, order.StatusOrderPlaced, stored.Status)
	assert.Equal(t, "pi_123", stored.PaymentReference)
	assert.NotNil(t, stored.PaidAt)

	require.NoError(t, handler.Handle(ctx, failed), "late failures do not unpay an order")
	assert.Equal(t, order.PaymentPaid, repo.Get(o.ID).PaymentStatus)
}

func TestService_MarkPaid(t *testing.T) {
	ctx := context.Background()

	pendingOrder := func() *order.Order {
		o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
		o.Status = order.StatusPaymentPending
		o.PaymentStatus = order.PaymentPending
		return o
	}

	t.Run("pending order becomes placed", func(t *testing.T) {
		o := pendingOrder()
		repo := ordertest.NewRepository(o)

		require.NoError(t, newService(repo, nil).MarkPaid(ctx, o.ID, "ch_1"))

		stored := repo.Get(o.ID)
		assert.Equal(t, order.PaymentPaid, stored.PaymentStatus)
		assert.Equal(t, order.StatusOrderPlaced, stored.Status)
		assert.Equal(t, "ch_1", stored.PaymentReference)
		assert.NotNil(t, stored.PaidAt)
	})

	t.Run("refund in flight keeps its status but stores the capture", func(t *testing.T) {
		for _, status := range []order.PaymentStatus{order.PaymentPartialRefundProcessing, order.PaymentRefundProcessing} {
			o := pendingOrder()
			o.Status = order.StatusPartiallyCancelled
			o.PaymentStatus = status
			repo := ordertest.NewRepository(o)

			require.NoError(t, newService(repo, nil).MarkPaid(ctx, o.ID, "ch_123"))

			stored := repo.Get(o.ID)
			assert.Equal(t, status, stored.PaymentStatus)
			assert.Equal(t, order.StatusPartiallyCancelled, stored.Status)
			assert.Equal(t, "ch_123", stored.PaymentReference)
			assert.NotNil(t, stored.PaidAt)
		}
	})

	t.Run("existing capture reference is kept", func(t *testing.T) {
		o := pendingOrder()
		o.PaymentStatus = order.PaymentRefundProcessing
		o.PaymentReference = "ch_first"
		repo := ordertest.NewRepository(o)

		require.NoError(t, newService(repo, nil).MarkPaid(ctx, o.ID, "ch_second"))
		assert.Equal(t, "ch_first", repo.Get(o.ID).PaymentReference)
	})

	t.Run("unknown order", func(t *testing.T) {
		err := newService(ordertest.NewRepository(), nil).MarkPaid(ctx, uuid.New(), "ch_1")
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}

func TestService_MarkPaymentFailed(t *testing.T) {
	ctx := context.Background()
	o := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("a", 1000))
	o.Status = order.StatusPaymentPending
	o.PaymentStatus = order.PaymentPending
	paid := ordertest.PaidOrder(uuid.New(), time.Now(), 0, ordertest.Item("b", 1000))
	repo := ordertest.NewRepository(o, paid)
	svc := newService(repo, nil)

	require.NoError(t, svc.MarkPaymentFailed(ctx, o.ID, "card_declined"))
	assert.Equal(t, order.PaymentFailed, repo.Get(o.ID).PaymentStatus)

	require.NoError(t, svc.MarkPaymentFailed(ctx, paid.ID, "card_declined"))
	assert.Equal(t, order.PaymentPaid, repo.Get(paid.ID).PaymentStatus)

	assert.ErrorIs(t, svc.MarkPaymentFailed(ctx, uuid.New(), "card_declined"), order.ErrOrderNotFound)
}

func TestEventHandler_DispatchReportsFailures(t *testing.T) {
	bus := events.NewBus(zap.NewNop())
	bus.Register(order.NewEventHandler(newService(ordertest.NewRepository(), nil), zap.NewNop()))
	orderID := uuid.New()

	err := bus.Dispatch(context.Background(), &events.PaymentSucceededEvent{
		BaseEvent: events.NewBaseEvent(events.TypePaymentSucceeded, orderID, "Order", time.Now()),
		OrderID:   orderID,
		Reference: "ch_1",
	})

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
