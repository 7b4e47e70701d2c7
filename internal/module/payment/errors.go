package payment

import apperrors "github.com/storefront/server/internal/shared/errors"

// Module errors.
var (
	ErrInvalidRefund      = apperrors.New(apperrors.KindValidation, "INVALID_REFUND", "refund needs a payment reference and a positive amount")
	ErrRefundFailed       = apperrors.New(apperrors.KindDependency, "REFUND_FAILED", "payment gateway refused the refund")
	ErrGatewayUnavailable = apperrors.New(apperrors.KindDependency, "GATEWAY_UNAVAILABLE", "payment gateway temporarily unavailable")
	ErrInvalidSignature   = apperrors.New(apperrors.KindValidation, "INVALID_SIGNATURE", "invalid webhook signature")
)
