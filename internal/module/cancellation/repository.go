package cancellation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/shared/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for cancellation request data access.
// Methods join the transaction carried by ctx, if any.
type Repository interface {
	// Create inserts a request with its items. A second PENDING request for
	// the same order yields ErrPendingRequestExists and a taken cancellation
	// id yields ErrDuplicateReference.
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetByCancellationID(ctx context.Context, cancellationID string) (*Request, error)
	// GetForUpdate loads the request with its items and locks its row.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	// Save persists the request columns and its items.
	Save(ctx context.Context, req *Request) error
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Request, error)
	ListPending(ctx context.Context, pagination *order.Pagination) ([]*Request, int64, error)
}

// ResolveRequest finds a request by uuid or, failing that, by cancellation id.
func ResolveRequest(ctx context.Context, repo Repository, ref string) (*Request, error) {
	if ref == "" {
		return nil, ErrRequestNotFound
	}
	if id, err := uuid.Parse(ref); err == nil {
		return repo.GetByID(ctx, id)
	}
	return repo.GetByCancellationID(ctx, ref)
}

type repository struct {
	db *gorm.DB
}

var _ order.PendingChecker = (*repository)(nil)

// NewRepository creates a new cancellation request repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, req *Request) error {
	// The savepoint keeps an outer transaction usable after a unique violation.
	err := database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(req).Error
	})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	pending, err := r.HasPending(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if pending {
		return ErrPendingRequestExists
	}
	return ErrDuplicateReference
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return first(r.preloaded(ctx), "id = ?", id)
}

func (r *repository) GetByCancellationID(ctx context.Context, cancellationID string) (*Request, error) {
	return first(r.preloaded(ctx), "cancellation_id = ?", cancellationID)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	query := r.preloaded(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return first(query, "id = ?", id)
}

func (r *repository) Save(ctx context.Context, req *Request) error {
	conn := database.Conn(ctx, r.db)
	if err := conn.Omit(clause.Associations).Save(req).Error; err != nil {
		return err
	}
	for i := range req.Items {
		req.Items[i].RequestID = req.ID
		if err := conn.Save(&req.Items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) HasPending(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&Request{}).
		Where("order_id = ? AND status = ?", orderID, StatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Request, error) {
	var reqs []*Request
	err := r.preloaded(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *repository) ListPending(ctx context.Context, pagination *order.Pagination) ([]*Request, int64, error) {
	var reqs []*Request
	var total int64

	query := database.Conn(ctx, r.db).Model(&Request{}).Where("status = ?", StatusPending)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}
	if err := query.Preload("Items").Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

func (r *repository) preloaded(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db).Preload("Items")
}

func first(query *gorm.DB, cond string, arg any) (*Request, error) {
	var req Request
	if err := query.Where(cond, arg).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}
