package cancellation_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/cancellation"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/order/ordertest"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/refundpolicy"
	"github.com/storefront/server/internal/shared/database"
	"github.com/storefront/server/internal/shared/events"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var orderedAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func floatPtr(v float64) *float64 { return &v }

func testPolicy() *refundpolicy.Policy {
	return &refundpolicy.Policy{
		Version: "test",
		Tiers: []refundpolicy.Tier{
			{Name: "EARLY", MaxDays: intPtr(2), Percentage: 90},
			{Name: "STANDARD", MaxDays: intPtr(7), Percentage: 75},
			{Name: "LATE", Percentage: 50},
		},
		LoyaltyBonuses: map[string]float64{"VIP": 5},
		Penalties: refundpolicy.PenaltyRules{
			AfterDelivery:         25,
			PastEstimatedDelivery: 10,
		},
		LegacyPercentage:     75,
		BlockedOrderStatuses: []string{"OUT_FOR_DELIVERY", "DELIVERED", "CANCELLED"},
		AllowedReasons:       []string{"CHANGED_MIND", "ORDERED_BY_MISTAKE", "OTHER"},
	}
}

// --- in-memory request repository ---

type memoryRequests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*cancellation.Request

	// collisions makes the next Create calls report a taken cancellation id.
	collisions int
}

func newMemoryRequests() *memoryRequests {
	return &memoryRequests{byID: make(map[uuid.UUID]*cancellation.Request)}
}

func (m *memoryRequests) Create(_ context.Context, req *cancellation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.OrderID == req.OrderID && r.Status == cancellation.StatusPending && req.Status == cancellation.StatusPending {
			return cancellation.ErrPendingRequestExists
		}
		if r.CancellationID == req.CancellationID {
			return cancellation.ErrDuplicateReference
		}
	}
	if m.collisions > 0 {
		m.collisions--
		return cancellation.ErrDuplicateReference
	}
	m.byID[req.ID] = cloneRequest(req)
	return nil
}

func (m *memoryRequests) GetByID(_ context.Context, id uuid.UUID) (*cancellation.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		return cloneRequest(r), nil
	}
	return nil, cancellation.ErrRequestNotFound
}

func (m *memoryRequests) GetByCancellationID(_ context.Context, cancellationID string) (*cancellation.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.CancellationID == cancellationID {
			return cloneRequest(r), nil
		}
	}
	return nil, cancellation.ErrRequestNotFound
}

func (m *memoryRequests) GetForUpdate(ctx context.Context, id uuid.UUID) (*cancellation.Request, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryRequests) Save(_ context.Context, req *cancellation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[req.ID] = cloneRequest(req)
	return nil
}

func (m *memoryRequests) HasPending(_ context.Context, orderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.OrderID == orderID && r.Status == cancellation.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRequests) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*cancellation.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cancellation.Request
	for _, r := range m.byID {
		if r.OrderID == orderID {
			out = append(out, cloneRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryRequests) ListPending(_ context.Context, _ *order.Pagination) ([]*cancellation.Request, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*cancellation.Request
	for _, r := range m.byID {
		if r.Status == cancellation.StatusPending {
			out = append(out, cloneRequest(r))
		}
	}
	return out, int64(len(out)), nil
}

func (m *memoryRequests) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func cloneRequest(r *cancellation.Request) *cancellation.Request {
	cp := *r
	cp.Items = append([]cancellation.RequestItem(nil), r.Items...)
	return &cp
}

var _ cancellation.Repository = (*memoryRequests)(nil)

// --- collaborators ---

type mockRefunder struct {
	mock.Mock
}

func (m *mockRefunder) Refund(ctx context.Context, in payment.RefundInput) (*payment.RefundResult, error) {
	args := m.Called(ctx, in)
	if res := args.Get(0); res != nil {
		return res.(*payment.RefundResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *capturePublisher) last() *events.CancellationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	e, _ := p.events[len(p.events)-1].(*events.CancellationEvent)
	return e
}

// --- fixture ---

type fixture struct {
	orders    *ordertest.Repository
	requests  *memoryRequests
	publisher *capturePublisher
	refunder  *mockRefunder
	now       time.Time
	svc       *cancellation.Service
}

type fixtureOption func(*cancellation.Deps)

func withRefunder(r payment.Refunder) fixtureOption {
	return func(d *cancellation.Deps) { d.Refunder = r }
}

func withPublisher(p events.Publisher) fixtureOption {
	return func(d *cancellation.Deps) { d.Publisher = p }
}

func withTx(tx database.TxRunner) fixtureOption {
	return func(d *cancellation.Deps) { d.Tx = tx }
}

func newFixture(t *testing.T, orders []*order.Order, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		orders:    ordertest.NewRepository(orders...),
		requests:  newMemoryRequests(),
		publisher: &capturePublisher{},
		refunder:  &mockRefunder{},
		now:       orderedAt.Add(24 * time.Hour),
	}
	deps := cancellation.Deps{
		Orders:    f.orders,
		Requests:  f.requests,
		Tx:        &ordertest.TxRunner{},
		Policies:  refundpolicy.NewStaticSource(testPolicy()),
		Publisher: f.publisher,
		Clock:     cancellation.ClockFunc(func() time.Time { return f.now }),
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = cancellation.NewService(deps)
	return f
}

// standardOrder is the order of the worked examples: two items worth 400.00
// and 600.00 plus 100.00 delivery, placed one day before the fixture clock.
func standardOrder(userID uuid.UUID) *order.Order {
	return ordertest.PaidOrder(userID, orderedAt, 10000,
		ordertest.Item("shirt", 40000),
		ordertest.Item("shoes", 60000),
	)
}

func (f *fixture) request(t *testing.T, userID uuid.UUID, o *order.Order, items ...uuid.UUID) *cancellation.Request {
	t.Helper()
	cmd := cancellation.RequestCommand{UserID: userID, OrderRef: o.OrderNo, Reason: "changed_mind"}
	for _, id := range items {
		cmd.Items = append(cmd.Items, cancellation.ItemSelection{ItemID: id})
	}
	req, err := f.svc.RequestCancellation(context.Background(), cmd)
	require.NoError(t, err)
	return req
}

func (f *fixture) approve(t *testing.T, req *cancellation.Request, override *float64) *cancellation.Request {
	t.Helper()
	out, _, err := f.svc.ProcessCancellationRequest(context.Background(), cancellation.ProcessCommand{
		AdminID:    uuid.New(),
		RequestRef: req.CancellationID,
		Action:     cancellation.ActionApprove,
		Override:   override,
	})
	require.NoError(t, err)
	return out
}
