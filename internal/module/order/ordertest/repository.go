// Package ordertest provides an in-memory order repository for tests.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
)

// Repository is an in-memory order.Repository. Reads return copies, so
// callers only change stored state through Save and the ledger methods.
type Repository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	// SaveErr, when set, is returned by Save.
	SaveErr error
	// LedgerErr, when set, is returned by AppendLedger.
	LedgerErr error
}

// NewRepository creates a repository holding orders.
func NewRepository(orders ...*order.Order) *Repository {
	r := &Repository{orders: make(map[uuid.UUID]*order.Order)}
	for _, o := range orders {
		_ = r.Create(context.Background(), o)
	}
	return r
}

func (r *Repository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	r.orders[o.ID] = clone(o)
	return nil
}

func (r *Repository) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return clone(o), nil
}

func (r *Repository) GetByOrderNo(_ context.Context, orderNo string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		if o.OrderNo == orderNo {
			return clone(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r *Repository) Resolve(ctx context.Context, ref string) (*order.Order, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.GetByID(ctx, id)
	}
	return r.GetByOrderNo(ctx, ref)
}

func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *Repository) ListByUser(_ context.Context, userID uuid.UUID, pagination *order.Pagination) ([]*order.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*order.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := int64(len(out))
	if pagination != nil {
		start := min(pagination.Offset(), len(out))
		end := min(start+pagination.PageSize, len(out))
		out = out[start:end]
	}
	return out, total, nil
}

func (r *Repository) Save(_ context.Context, o *order.Order) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return order.ErrOrderNotFound
	}
	saved := clone(o)
	saved.RefundSummary = stored.RefundSummary
	r.orders[o.ID] = saved
	return nil
}

func (r *Repository) AppendLedger(_ context.Context, entries []order.RefundEntry) error {
	if r.LedgerErr != nil {
		return r.LedgerErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		stored, ok := r.orders[e.OrderID]
		if !ok {
			return order.ErrOrderNotFound
		}
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		stored.RefundSummary = append(stored.RefundSummary, e)
	}
	return nil
}

func (r *Repository) CompleteLedger(_ context.Context, requestID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.orders {
		for i := range o.RefundSummary {
			e := &o.RefundSummary[i]
			if e.RequestID == requestID && e.Status == order.RefundProcessing {
				e.Status = order.RefundCompleted
				completedAt := at
				e.CompletedAt = &completedAt
			}
		}
	}
	return nil
}

// Get returns a copy of the stored order, or nil.
func (r *Repository) Get(id uuid.UUID) *order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o, ok := r.orders[id]; ok {
		return clone(o)
	}
	return nil
}

func clone(o *order.Order) *order.Order {
	cp := *o
	cp.Items = append([]order.OrderItem(nil), o.Items...)
	cp.RefundSummary = append([]order.RefundEntry(nil), o.RefundSummary...)
	return &cp
}

var _ order.Repository = (*Repository)(nil)
