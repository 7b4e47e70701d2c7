package order

import apperrors "github.com/storefront/server/internal/shared/errors"

// Module errors.
var (
	ErrOrderNotFound           = apperrors.New(apperrors.KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrInvalidTransition       = apperrors.New(apperrors.KindConflict, "INVALID_STATUS_TRANSITION", "invalid order status transition")
	ErrUnderCancellationReview = apperrors.New(apperrors.KindConflict, "UNDER_CANCELLATION_REVIEW", "order has a pending cancellation request")
	ErrLedgerExceedsTotal      = apperrors.New(apperrors.KindConflict, "REFUND_EXCEEDS_TOTAL", "refunds would exceed the order total")
	ErrInvalidOrder            = apperrors.New(apperrors.KindValidation, "INVALID_ORDER", "invalid order")
	ErrUnknownStatus           = apperrors.New(apperrors.KindValidation, "UNKNOWN_STATUS", "unknown order status")
)
