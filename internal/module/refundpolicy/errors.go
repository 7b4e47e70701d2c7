package refundpolicy

import "errors"

var (
	ErrInvalidPolicy  = errors.New("invalid cancellation policy")
	ErrNoActivePolicy = errors.New("no active cancellation policy")
)
