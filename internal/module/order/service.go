package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/shared/database"
	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/utils/random"
	"go.uber.org/zap"
)

// PendingChecker reports whether an order is under cancellation review.
type PendingChecker interface {
	HasPending(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// adminStatuses are the statuses an operator may set directly. Cancellation
// statuses are owned by the cancellation workflow.
var adminStatuses = map[Status]bool{
	StatusOrderPlaced:    true,
	StatusProcessing:     true,
	StatusOutForDelivery: true,
	StatusDelivered:      true,
}

// Service implements order operations.
type Service struct {
	repo    Repository
	tx      database.TxRunner
	pending PendingChecker
	sm      *StateMachine
	now     func() time.Time
	logger  *zap.Logger
}

// NewService creates a new order service.
func NewService(repo Repository, tx database.TxRunner, pending PendingChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		tx:      tx,
		pending: pending,
		sm:      NewStateMachine(),
		now:     time.Now,
		logger:  logger,
	}
}

// CreateOrder imports an order placed through checkout.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	if fields := validateCreate(req); len(fields) > 0 {
		return nil, apperrors.Validation(fields)
	}

	now := s.now()
	method := req.PaymentMethod
	if method == "" {
		method = PaymentMethodOnline
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "INR"
	}

	order := &Order{
		OrderNo:               random.Reference("ORD", now),
		UserID:                req.UserID,
		CustomerEmail:         req.CustomerEmail,
		CustomerName:          req.CustomerName,
		LoyaltyTier:           strings.ToUpper(req.LoyaltyTier),
		DeliveryCharge:        req.DeliveryCharge,
		Currency:              currency,
		PaymentMethod:         method,
		PaymentStatus:         PaymentPending,
		Status:                StatusPaymentPending,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		Items:                 make([]OrderItem, 0, len(req.Items)),
	}
	if method == PaymentMethodCOD {
		order.Status = StatusOrderPlaced
	}

	for i, in := range req.Items {
		kind := in.Kind
		if kind == "" {
			kind = ItemKindProduct
		}
		item := OrderItem{
			Position:  i,
			Kind:      kind,
			CatalogID: in.CatalogID,
			Name:      in.Name,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Size:      in.Size,
			SizePrice: in.SizePrice,
			Status:    ItemActive,
		}
		item.LineTotal = item.EffectiveUnitPrice() * int64(item.Quantity)
		order.Items = append(order.Items, item)
	}
	order.RecomputeTotals()
	order.OriginalTotal = order.TotalAmt

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, apperrors.Dependency("create order", err)
	}

	logger.For(ctx, s.logger).Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_no", order.OrderNo),
		zap.Int64("total", order.TotalAmt),
	)
	return order, nil
}

// GetOrder returns an order owned by userID.
func (s *Service) GetOrder(ctx context.Context, userID uuid.UUID, ref string) (*Order, error) {
	order, err := s.repo.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !order.IsOwnedBy(userID) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns orders for a user.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, pagination *Pagination) ([]*Order, int64, error) {
	return s.repo.ListByUser(ctx, userID, pagination)
}

// UpdateStatus moves an order through fulfilment. Orders with a pending
// cancellation request are refused until the request is decided.
func (s *Service) UpdateStatus(ctx context.Context, ref string, status Status) (*Order, error) {
	if !s.sm.IsKnown(status) {
		return nil, ErrUnknownStatus.WithMessage("unknown order status %q", status)
	}
	if !adminStatuses[status] {
		return nil, ErrInvalidTransition.WithMessage("status %s is managed by the cancellation workflow", status)
	}

	var updated *Order
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		found, err := s.repo.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		order, err := s.repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return err
		}

		if s.pending != nil {
			pending, err := s.pending.HasPending(ctx, order.ID)
			if err != nil {
				return apperrors.Dependency("check pending cancellation", err)
			}
			if pending {
				return ErrUnderCancellationReview
			}
		}

		from := order.Status
		if err := s.sm.Transition(order, status); err != nil {
			return err
		}
		if status == StatusDelivered {
			now := s.now()
			order.ActualDeliveryDate = &now
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return apperrors.Dependency("save order", err)
		}

		logger.For(ctx, s.logger).Info("order status updated",
			zap.String("order_id", order.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(status)),
		)
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkPaid records a confirmed payment. Repeated confirmations are no-ops.
// On an order whose refund is already processing only the capture reference
// is stored, so the refund can still be issued through the gateway.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID, reference string) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		switch order.PaymentStatus {
		case PaymentPending, PaymentFailed:
		case PaymentRefundProcessing, PaymentPartialRefundProcessing:
			// The refund in flight needs the capture reference to reach the gateway.
			if order.PaymentReference != "" {
				return nil
			}
			order.PaymentReference = reference
			order.PaidAt = &now
			if err := s.repo.Save(ctx, order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
			s.logger.Warn("payment captured during cancellation, reference recorded",
				zap.String("order_id", orderID.String()),
				zap.String("payment_status", string(order.PaymentStatus)),
			)
			return nil
		default:
			s.logger.Info("payment already recorded, skipping",
				zap.String("order_id", orderID.String()),
				zap.String("payment_status", string(order.PaymentStatus)),
			)
			return nil
		}

		order.PaymentStatus = PaymentPaid
		order.PaymentReference = reference
		order.PaidAt = &now
		if order.Status == StatusPaymentPending {
			if err := s.sm.Transition(order, StatusOrderPlaced); err != nil {
				return err
			}
		}
		if err := s.repo.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		s.logger.Info("order marked as paid", zap.String("order_id", orderID.String()))
		return nil
	})
}

// MarkPaymentFailed records a failed payment attempt on an unpaid order.
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus != PaymentPending {
			s.logger.Info("ignoring payment failure for settled order",
				zap.String("order_id", orderID.String()),
				zap.String("payment_status", string(order.PaymentStatus)),
			)
			return nil
		}

		order.PaymentStatus = PaymentFailed
		if err := s.repo.Save(ctx, order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		s.logger.Info("order payment failed",
			zap.String("order_id", orderID.String()),
			zap.String("reason", reason),
		)
		return nil
	})
}

func validateCreate(req *CreateOrderRequest) map[string]string {
	fields := make(map[string]string)
	if req == nil {
		fields["body"] = "is required"
		return fields
	}
	if req.UserID == uuid.Nil {
		fields["user_id"] = "is required"
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		fields["customer_email"] = "is required"
	}
	if req.DeliveryCharge < 0 {
		fields["delivery_charge"] = "must not be negative"
	}
	switch req.PaymentMethod {
	case "", PaymentMethodOnline, PaymentMethodCOD:
	default:
		fields["payment_method"] = "must be ONLINE or COD"
	}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for i, item := range req.Items {
		key := fmt.Sprintf("items[%d]", i)
		switch {
		case item.Quantity < 1:
			fields[key] = "quantity must be at least 1"
		case item.UnitPrice < 0 || (item.SizePrice != nil && *item.SizePrice < 0):
			fields[key] = "price must not be negative"
		case item.Kind != "" && item.Kind != ItemKindProduct && item.Kind != ItemKindBundle:
			fields[key] = "kind must be product or bundle"
		}
	}
	return fields
}
