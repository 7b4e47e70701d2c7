package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/refund"
	"go.uber.org/zap"
)

// StripeConfig holds Stripe refund configuration.
type StripeConfig struct {
	SecretKey       string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// Backend overrides the Stripe API backend. Nil uses the default.
	Backend stripe.Backend
}

// StripeRefunder creates Stripe refunds behind a circuit breaker.
type StripeRefunder struct {
	client  *refund.Client
	breaker *gobreaker.CircuitBreaker[*stripe.Refund]
	timeout time.Duration
	logger  *zap.Logger
}

// NewStripeRefunder creates a new Stripe refunder.
func NewStripeRefunder(cfg StripeConfig, logger *zap.Logger) *StripeRefunder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[*stripe.Refund](gobreaker.Settings{
		Name:        "stripe-refunds",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &StripeRefunder{
		client:  &refund.Client{B: backend, Key: cfg.SecretKey},
		breaker: breaker,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Refund creates a refund for a charge or payment intent.
func (r *StripeRefunder) Refund(ctx context.Context, in RefundInput) (*RefundResult, error) {
	if in.ChargeID == "" || in.Amount <= 0 {
		return nil, ErrInvalidRefund
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		Amount: stripe.Int64(in.Amount),
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if strings.HasPrefix(in.ChargeID, "pi_") {
		params.PaymentIntent = stripe.String(in.ChargeID)
	} else {
		params.Charge = stripe.String(in.ChargeID)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	res, err := r.breaker.Execute(func() (*stripe.Refund, error) {
		return r.client.New(params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrGatewayUnavailable.Wrap(err)
		}
		return nil, ErrRefundFailed.Wrap(fmt.Errorf("create refund: %w", err))
	}

	r.logger.Info("stripe refund created",
		zap.String("refund_id", res.ID),
		zap.String("charge", in.ChargeID),
		zap.Int64("amount", res.Amount),
		zap.String("status", string(res.Status)),
	)
	return &RefundResult{ID: res.ID, Status: string(res.Status), Amount: res.Amount}, nil
}

// isBreakerSuccess keeps client-side rejections from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < http.StatusInternalServerError &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}

var _ Refunder = (*StripeRefunder)(nil)
