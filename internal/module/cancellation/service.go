package cancellation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/refundpolicy"
	"github.com/storefront/server/internal/shared/database"
	apperrors "github.com/storefront/server/internal/shared/errors"
	"github.com/storefront/server/internal/shared/events"
	"github.com/storefront/server/internal/shared/logger"
	"github.com/storefront/server/internal/utils/metrics"
	"github.com/storefront/server/internal/utils/random"
	"go.uber.org/zap"
)

// referenceAttempts bounds the retries on a cancellation id collision.
const referenceAttempts = 3

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now returns f().
func (f ClockFunc) Now() time.Time { return f() }

// Deps are the collaborators of the cancellation service.
// Refunder, Publisher and Metrics are optional.
type Deps struct {
	Orders    order.Repository
	Requests  Repository
	Tx        database.TxRunner
	Policies  refundpolicy.Source
	Refunder  payment.Refunder
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Clock     Clock
	Logger    *zap.Logger
}

// Service runs the cancellation and refund workflow. Every mutating
// operation loads, mutates and saves the order and the request inside one
// transaction, then publishes its event after commit.
type Service struct {
	orders    order.Repository
	requests  Repository
	tx        database.TxRunner
	policies  refundpolicy.Source
	refunder  payment.Refunder
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     Clock
	sm        *order.StateMachine
	logger    *zap.Logger
}

// NewService creates a new cancellation service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = ClockFunc(time.Now)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		orders:    d.Orders,
		requests:  d.Requests,
		tx:        d.Tx,
		policies:  d.Policies,
		refunder:  d.Refunder,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		clock:     d.Clock,
		sm:        order.NewStateMachine(),
		logger:    d.Logger,
	}
}

// ActivePolicy returns the policy currently applied to cancellations.
func (s *Service) ActivePolicy(ctx context.Context) (*refundpolicy.Policy, error) {
	policy, err := s.policies.Active(ctx)
	if err != nil {
		return nil, ErrPolicyUnavailable.Wrap(err)
	}
	return policy, nil
}

// RequestCancellation files a PENDING request for the caller's order.
// A request covering every active item is a FULL_ORDER request and moves the
// order to CANCEL_REQUESTED.
func (s *Service) RequestCancellation(ctx context.Context, cmd RequestCommand) (*Request, error) {
	req, err := s.requestCancellation(ctx, cmd)
	cancellationType := ""
	if req != nil {
		cancellationType = string(req.Type)
	}
	s.metrics.RecordCancellationRequest(cancellationType, outcome(err))
	return req, err
}

func (s *Service) requestCancellation(ctx context.Context, cmd RequestCommand) (*Request, error) {
	policy, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}
	reason, err := normalizeReason(policy, cmd.Reason, cmd.CustomReason)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var req *Request
	var o *order.Order
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		o, err = s.loadOwnedOrderForUpdate(ctx, cmd.UserID, cmd.OrderRef)
		if err != nil {
			return err
		}
		if err := checkEligibility(policy, o); err != nil {
			return err
		}
		pending, err := s.requests.HasPending(ctx, o.ID)
		if err != nil {
			return apperrors.Dependency("check pending cancellation", err)
		}
		if pending {
			return ErrPendingRequestExists.WithMessage("order %s already has a pending cancellation request", o.OrderNo)
		}

		targets, prices, err := selectTargets(o, cmd.Items)
		if err != nil {
			return err
		}
		full := coversAllActive(o, targets)
		q := price(policy, o, targets, itemBases(targets, prices, cmd.Pricing, full), cmd.Pricing, nil, now)

		req = newRequest(o, cmd, reason, q, prices, now)
		if req.Type == TypeFullOrder {
			req.PreviousOrderStatus = o.Status
			if err := s.sm.Transition(o, order.StatusCancelRequested); err != nil {
				return err
			}
			if err := s.orders.Save(ctx, o); err != nil {
				return apperrors.Dependency("save order", err)
			}
		}
		if err := s.createRequest(ctx, req, now); err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				return err
			}
			return apperrors.Dependency("create cancellation request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.For(ctx, s.logger).Info("cancellation requested",
		zap.String("cancellation_id", req.CancellationID),
		zap.String("order_no", o.OrderNo),
		zap.String("type", string(req.Type)),
		zap.Int64("expected_refund", req.ExpectedRefund),
	)
	s.publish(ctx, newEvent(events.TypeCancellationRequested, req, o, now))
	return req, nil
}

// EstimateRefund prices a cancellation without filing it.
func (s *Service) EstimateRefund(ctx context.Context, cmd RequestCommand) (*Estimate, error) {
	policy, err := s.ActivePolicy(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.Resolve(ctx, cmd.OrderRef)
	if err != nil {
		return nil, err
	}
	if !o.IsOwnedBy(cmd.UserID) {
		return nil, order.ErrOrderNotFound
	}
	if err := checkEligibility(policy, o); err != nil {
		return nil, err
	}
	targets, prices, err := selectTargets(o, cmd.Items)
	if err != nil {
		return nil, err
	}
	pending, err := s.requests.HasPending(ctx, o.ID)
	if err != nil {
		return nil, apperrors.Dependency("check pending cancellation", err)
	}

	full := coversAllActive(o, targets)
	q := price(policy, o, targets, itemBases(targets, prices, cmd.Pricing, full), cmd.Pricing, nil, s.clock.Now())

	est := &Estimate{
		OrderID:          o.ID,
		OrderNo:          o.OrderNo,
		CancellationType: q.cancellationType(),
		Items:            make([]ItemEstimate, len(q.targets)),
		IncludesDelivery: q.includesDelivery,
		DeliveryRefund:   q.deliveryShare,
		ExpectedRefund:   q.result.RefundAmount,
		Calculation:      q.result,
		HasPending:       pending,
	}
	for i, t := range q.targets {
		est.Items[i] = ItemEstimate{
			ItemID:          t.ID,
			Name:            t.Name,
			Quantity:        t.Quantity,
			LineTotal:       t.LineTotal,
			Basis:           q.bases[i],
			EstimatedRefund: q.itemShares[i],
		}
	}
	return est, nil
}

// ProcessCancellationRequest approves or rejects a PENDING request.
func (s *Service) ProcessCancellationRequest(ctx context.Context, cmd ProcessCommand) (*Request, *order.Order, error) {
	if cmd.Override != nil && (*cmd.Override < 0 || *cmd.Override > 100) {
		return nil, nil, ErrInvalidOverride
	}
	if cmd.Action != ActionApprove && cmd.Action != ActionReject {
		return nil, nil, apperrors.Validation(map[string]string{"action": "must be APPROVE or REJECT"})
	}

	var policy *refundpolicy.Policy
	if cmd.Action == ActionApprove {
		var err error
		if policy, err = s.ActivePolicy(ctx); err != nil {
			return nil, nil, err
		}
	}

	now := s.clock.Now()
	var req *Request
	var o *order.Order
	err := s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		found, err := ResolveRequest(ctx, s.requests, cmd.RequestRef)
		if err != nil {
			return err
		}
		if req, err = s.requests.GetForUpdate(ctx, found.ID); err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrAlreadyProcessed.WithMessage("request %s is already %s", req.CancellationID, req.Status)
		}
		if o, err = s.orders.GetForUpdate(ctx, req.OrderID); err != nil {
			return err
		}

		decision := Decision{By: cmd.AdminID, At: now, Comments: cmd.Comments}
		if cmd.Action == ActionReject {
			return s.reject(ctx, req, o, decision)
		}
		return s.approve(ctx, req, o, policy, decision, cmd.Override)
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.RecordDecision(string(cmd.Action), string(req.Type), req.Admin.RefundAmount)
	logger.For(ctx, s.logger).Info("cancellation processed",
		zap.String("cancellation_id", req.CancellationID),
		zap.String("action", string(cmd.Action)),
		zap.String("order_status", string(o.Status)),
		zap.Int64("refund_amount", req.Admin.RefundAmount),
	)

	eventType := events.TypeCancellationApproved
	if req.Status == StatusRejected {
		eventType = events.TypeCancellationRejected
	}
	s.publish(ctx, newEvent(eventType, req, o, now))
	return req, o, nil
}

func (s *Service) reject(ctx context.Context, req *Request, o *order.Order, d Decision) error {
	if err := req.Reject(d); err != nil {
		return err
	}
	if o.Status == order.StatusCancelRequested {
		if err := s.sm.Transition(o, revertStatus(req, o)); err != nil {
			return err
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return apperrors.Dependency("save order", err)
		}
	}
	if err := s.requests.Save(ctx, req); err != nil {
		return apperrors.Dependency("save cancellation request", err)
	}
	return nil
}

// revertStatus is the status an order returns to when its full cancellation
// is rejected.
func revertStatus(req *Request, o *order.Order) order.Status {
	prev := req.PreviousOrderStatus
	switch {
	case prev == "":
		return order.StatusOrderPlaced
	case prev == order.StatusPaymentPending && o.PaymentStatus == order.PaymentPaid:
		return order.StatusOrderPlaced
	default:
		return prev
	}
}

func (s *Service) approve(ctx context.Context, req *Request, o *order.Order, policy *refundpolicy.Policy, d Decision, override *float64) error {
	targets := make([]*order.OrderItem, len(req.Items))
	bases := make([]int64, len(req.Items))
	for i, ri := range req.Items {
		item := o.FindItem(ri.ItemID)
		if item == nil || !item.IsActive() {
			return ErrItemNoLongerActive.WithMessage("item %s of order %s is no longer active", ri.Name, o.OrderNo)
		}
		targets[i] = item
		bases[i] = min(ri.Basis, item.LineTotal)
	}

	q := price(policy, o, targets, bases, req.Pricing, override, d.At)

	entries := make([]order.RefundEntry, 0, len(targets)+1)
	for i, item := range targets {
		item.Status = order.ItemCancelled
		item.CancelApproved = true
		item.RefundStatus = order.RefundProcessing
		item.RefundAmount = q.itemShares[i]
		item.CancelledAt = timePtr(d.At)

		itemID := item.ID
		entries = append(entries, order.RefundEntry{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ItemID:    &itemID,
			RequestID: req.ID,
			Kind:      order.EntryItem,
			Amount:    q.itemShares[i],
			Status:    order.RefundProcessing,
			CreatedAt: d.At,
		})
	}
	if q.deliveryShare > 0 {
		entries = append(entries, order.RefundEntry{
			ID:        uuid.New(),
			OrderID:   o.ID,
			RequestID: req.ID,
			Kind:      order.EntryDelivery,
			Amount:    q.deliveryShare,
			Status:    order.RefundProcessing,
			CreatedAt: d.At,
		})
	}
	if err := o.AppendRefund(entries...); err != nil {
		return err
	}

	o.RecomputeTotals()
	if len(o.ActiveItems()) == 0 {
		if err := s.sm.Transition(o, order.StatusCancelled); err != nil {
			return err
		}
		o.PaymentStatus = order.PaymentRefundProcessing
		o.IsFullOrderCancelled = true
	} else {
		if err := s.sm.Transition(o, order.StatusPartiallyCancelled); err != nil {
			return err
		}
		o.PaymentStatus = order.PaymentPartialRefundProcessing
	}

	if err := req.Approve(Approval{
		Decision:         d,
		Calculation:      q.result,
		Override:         override,
		ItemShares:       q.itemShares,
		IncludesDelivery: q.includesDelivery,
		DeliveryShare:    q.deliveryShare,
	}); err != nil {
		return err
	}

	if err := s.orders.Save(ctx, o); err != nil {
		return apperrors.Dependency("save order", err)
	}
	if err := s.orders.AppendLedger(ctx, entries); err != nil {
		return apperrors.Dependency("append refund ledger", err)
	}
	if err := s.requests.Save(ctx, req); err != nil {
		return apperrors.Dependency("save cancellation request", err)
	}
	return nil
}

// CompleteRefund records the payout of an APPROVED request. Completing the
// same request twice is a Conflict.
func (s *Service) CompleteRefund(ctx context.Context, cmd CompleteCommand) (*Request, error) {
	found, err := ResolveRequest(ctx, s.requests, cmd.RequestRef)
	if err != nil {
		return nil, err
	}
	if err := found.CanComplete(); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, found.OrderID)
	if err != nil {
		return nil, err
	}

	refundID, source, err := s.issueRefund(ctx, found, o, cmd.TransactionRef)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var req *Request
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		if req, err = s.requests.GetForUpdate(ctx, found.ID); err != nil {
			return err
		}
		if err := req.CompleteRefund(Completion{
			By:             cmd.AdminID,
			At:             now,
			RefundID:       refundID,
			TransactionRef: cmd.TransactionRef,
			Source:         source,
			Comments:       cmd.Comments,
		}); err != nil {
			return err
		}
		if o, err = s.orders.GetForUpdate(ctx, req.OrderID); err != nil {
			return err
		}

		o.CompleteRefunds(req.ID, now)
		if !o.HasProcessingRefunds(req.ID) {
			o.PaymentStatus = order.PaymentRefundSuccessful
		}
		if err := s.orders.Save(ctx, o); err != nil {
			return apperrors.Dependency("save order", err)
		}
		if err := s.orders.CompleteLedger(ctx, req.ID, now); err != nil {
			return apperrors.Dependency("complete refund ledger", err)
		}
		if err := s.requests.Save(ctx, req); err != nil {
			return apperrors.Dependency("save cancellation request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRefundCompleted(string(source))
	logger.For(ctx, s.logger).Info("refund completed",
		zap.String("cancellation_id", req.CancellationID),
		zap.String("refund_id", refundID),
		zap.String("source", string(source)),
		zap.Int64("amount", req.Admin.RefundAmount),
	)
	s.publish(ctx, newEvent(events.TypeRefundCompleted, req, o, now))
	return req, nil
}

// issueRefund picks the refund id. A transaction ref supplied by the admin
// wins, then a gateway refund, then a generated id. The gateway call uses an
// idempotency key derived from the request, so retries never refund twice.
func (s *Service) issueRefund(ctx context.Context, req *Request, o *order.Order, transactionRef string) (string, RefundSource, error) {
	if transactionRef != "" {
		return transactionRef, SourceManual, nil
	}
	if s.refunder != nil && o.PaymentReference != "" && req.Admin.RefundAmount > 0 {
		res, err := s.refunder.Refund(ctx, payment.RefundInput{
			ChargeID:       o.PaymentReference,
			Amount:         req.Admin.RefundAmount,
			Currency:       o.Currency,
			Reason:         req.Reason,
			IdempotencyKey: "refund-" + req.ID.String(),
			Metadata: map[string]string{
				"order_no":        o.OrderNo,
				"cancellation_id": req.CancellationID,
			},
		})
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindInternal {
				return "", "", apperrors.Dependency("issue gateway refund", err)
			}
			return "", "", err
		}
		return res.ID, SourceGateway, nil
	}
	return "RFD-" + ulid.MustNew(ulid.Timestamp(s.clock.Now()), ulid.DefaultEntropy()).String(), SourceGenerated, nil
}

// GetRequest returns a request by uuid or cancellation id.
func (s *Service) GetRequest(ctx context.Context, ref string) (*Request, error) {
	return ResolveRequest(ctx, s.requests, ref)
}

// GetRequestForUser returns a request filed by userID.
func (s *Service) GetRequestForUser(ctx context.Context, userID uuid.UUID, ref string) (*Request, error) {
	req, err := ResolveRequest(ctx, s.requests, ref)
	if err != nil {
		return nil, err
	}
	if !req.IsOwnedBy(userID) {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// ListForOrder returns the requests of an order. Non-admin callers only see
// their own orders.
func (s *Service) ListForOrder(ctx context.Context, userID uuid.UUID, orderRef string, admin bool) ([]*Request, error) {
	o, err := s.orders.Resolve(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if !admin && !o.IsOwnedBy(userID) {
		return nil, order.ErrOrderNotFound
	}
	return s.requests.ListByOrder(ctx, o.ID)
}

// ListPending returns the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context, pagination *order.Pagination) ([]*Request, int64, error) {
	return s.requests.ListPending(ctx, pagination)
}

func (s *Service) loadOwnedOrderForUpdate(ctx context.Context, userID uuid.UUID, ref string) (*order.Order, error) {
	found, err := s.orders.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !found.IsOwnedBy(userID) {
		return nil, order.ErrOrderNotFound
	}
	return s.orders.GetForUpdate(ctx, found.ID)
}

// checkEligibility applies the order and payment status rules.
func checkEligibility(policy *refundpolicy.Policy, o *order.Order) error {
	if policy.IsBlocked(string(o.Status)) {
		return ErrOrderNotCancellable.WithMessage("order %s is %s and can no longer be cancelled", o.OrderNo, o.Status)
	}
	switch o.PaymentStatus {
	case order.PaymentPaid, order.PaymentPartialRefundProcessing, order.PaymentRefundSuccessful:
		return nil
	case order.PaymentPending:
		if o.PaymentMethod == order.PaymentMethodOnline {
			return nil
		}
	}
	return ErrPaymentNotEligible.WithMessage("payment of order %s is %s (%s)", o.OrderNo, o.PaymentStatus, o.PaymentMethod)
}

// createRequest inserts req, drawing a new cancellation id when the random
// one is already taken.
func (s *Service) createRequest(ctx context.Context, req *Request, now time.Time) error {
	var err error
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		if attempt > 0 {
			req.CancellationID = random.Reference("CAN", now)
		}
		if err = s.requests.Create(ctx, req); !errors.Is(err, ErrDuplicateReference) {
			return err
		}
		s.logger.Warn("cancellation id collision, retrying", zap.String("cancellation_id", req.CancellationID))
	}
	return err
}

func newRequest(o *order.Order, cmd RequestCommand, reason string, q *quote, prices []*int64, now time.Time) *Request {
	req := &Request{
		ID:               uuid.New(),
		CancellationID:   random.Reference("CAN", now),
		OrderID:          o.ID,
		OrderNo:          o.OrderNo,
		UserID:           cmd.UserID,
		Type:             q.cancellationType(),
		Status:           StatusPending,
		Reason:           reason,
		CustomReason:     cmd.CustomReason,
		Notes:            cmd.Notes,
		Items:            make([]RequestItem, len(q.targets)),
		Pricing:          cmd.Pricing,
		IncludesDelivery: q.includesDelivery,
		DeliveryRefund:   q.deliveryShare,
		ExpectedRefund:   q.result.RefundAmount,
		Estimate:         q.result,
		Delivery: DeliverySnapshot{
			EstimatedDate: o.EstimatedDeliveryDate,
			ActualDate:    o.ActualDeliveryDate,
			PastDue:       o.EstimatedDeliveryDate != nil && now.After(*o.EstimatedDeliveryDate),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, t := range q.targets {
		req.Items[i] = RequestItem{
			ID:              uuid.New(),
			RequestID:       req.ID,
			ItemID:          t.ID,
			Name:            t.Name,
			Quantity:        t.Quantity,
			LineTotal:       t.LineTotal,
			ClientPrice:     prices[i],
			Basis:           q.bases[i],
			EstimatedRefund: q.itemShares[i],
		}
	}
	return req
}

// publish dispatches event after commit. The request context may already be
// done by the time slow handlers run, so cancellation is detached.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(context.WithoutCancel(ctx), event)
}

func outcome(err error) string {
	if err == nil {
		return "created"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return "validation"
	case apperrors.KindNotFound:
		return "not_found"
	case apperrors.KindIneligible:
		return "ineligible"
	case apperrors.KindConflict:
		return "conflict"
	default:
		return "error"
	}
}
