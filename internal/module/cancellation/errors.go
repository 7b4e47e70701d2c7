package cancellation

import (
	"errors"

	apperrors "github.com/storefront/server/internal/shared/errors"
)

// Module errors.
var (
	ErrRequestNotFound        = apperrors.New(apperrors.KindNotFound, "CANCELLATION_NOT_FOUND", "cancellation request not found")
	ErrPendingRequestExists   = apperrors.New(apperrors.KindConflict, "PENDING_REQUEST_EXISTS", "order already has a pending cancellation request")
	ErrAlreadyProcessed       = apperrors.New(apperrors.KindConflict, "REQUEST_ALREADY_PROCESSED", "cancellation request was already processed")
	ErrNotApproved            = apperrors.New(apperrors.KindConflict, "REQUEST_NOT_APPROVED", "cancellation request is not approved")
	ErrRefundAlreadyCompleted = apperrors.New(apperrors.KindConflict, "REFUND_ALREADY_COMPLETED", "refund already completed")
	ErrItemNoLongerActive     = apperrors.New(apperrors.KindConflict, "ITEM_NO_LONGER_ACTIVE", "a requested item is no longer active")
	ErrOrderNotCancellable    = apperrors.New(apperrors.KindIneligible, "ORDER_NOT_CANCELLABLE", "order can no longer be cancelled")
	ErrPaymentNotEligible     = apperrors.New(apperrors.KindIneligible, "PAYMENT_NOT_ELIGIBLE", "order payment does not allow cancellation")
	ErrNoActiveItems          = apperrors.New(apperrors.KindIneligible, "NO_ACTIVE_ITEMS", "no active items left to cancel")
	ErrInvalidOverride        = apperrors.New(apperrors.KindValidation, "INVALID_OVERRIDE_PERCENTAGE", "override percentage must be between 0 and 100")
	ErrPolicyUnavailable      = apperrors.New(apperrors.KindDependency, "POLICY_UNAVAILABLE", "cancellation policy unavailable")
)

// ErrDuplicateReference reports a cancellation id collision on insert. The
// service retries it with a fresh reference.
var ErrDuplicateReference = errors.New("cancellation id already taken")
