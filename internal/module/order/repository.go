package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for order data access.
// Methods join the transaction carried by ctx, if any.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*Order, error)
	// Resolve looks an order up by uuid, then by order number.
	Resolve(ctx context.Context, ref string) (*Order, error)
	// GetForUpdate loads the order with items and ledger and locks its row.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, pagination *Pagination) ([]*Order, int64, error)
	// Save persists the order columns and its items. Ledger rows are not touched.
	Save(ctx context.Context, order *Order) error
	// AppendLedger inserts new ledger rows.
	AppendLedger(ctx context.Context, entries []RefundEntry) error
	// CompleteLedger marks the processing ledger rows of a request completed.
	CompleteLedger(ctx context.Context, requestID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, order *Order) error {
	return database.Conn(ctx, r.db).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.first(r.preloaded(ctx), "id = ?", id)
}

func (r *repository) GetByOrderNo(ctx context.Context, orderNo string) (*Order, error) {
	return r.first(r.preloaded(ctx), "order_no = ?", orderNo)
}

func (r *repository) Resolve(ctx context.Context, ref string) (*Order, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return r.GetByID(ctx, id)
	}
	return r.GetByOrderNo(ctx, ref)
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := r.preloaded(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.first(query, "id = ?", id)
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, pagination *Pagination) ([]*Order, int64, error) {
	var orders []*Order
	var total int64

	query := database.Conn(ctx, r.db).Model(&Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if pagination != nil {
		query = query.Offset(pagination.Offset()).Limit(pagination.PageSize)
	}
	if err := query.Preload("Items").Order("created_at DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *repository) Save(ctx context.Context, order *Order) error {
	db := database.Conn(ctx, r.db)
	if err := db.Omit(clause.Associations).Save(order).Error; err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	for i := range order.Items {
		if err := db.Save(&order.Items[i]).Error; err != nil {
			return fmt.Errorf("save order item: %w", err)
		}
	}
	return nil
}

func (r *repository) AppendLedger(ctx context.Context, entries []RefundEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Create(&entries).Error
}

func (r *repository) CompleteLedger(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	return database.Conn(ctx, r.db).
		Model(&RefundEntry{}).
		Where("request_id = ? AND status = ?", requestID, RefundProcessing).
		Updates(map[string]any{"status": RefundCompleted, "completed_at": at}).Error
}

func (r *repository) preloaded(ctx context.Context) *gorm.DB {
	return database.Conn(ctx, r.db).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("RefundSummary", func(db *gorm.DB) *gorm.DB { return db.Order("created_at") })
}

func (r *repository) first(query *gorm.DB, cond string, arg any) (*Order, error) {
	var order Order
	if err := query.First(&order, cond, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}
