package app

import (
	"errors"
	"fmt"

	"github.com/storefront/server/internal/module/refundpolicy"
	"github.com/storefront/server/internal/shared/config"
)

// LoadConfig loads application configuration and rejects settings the
// service cannot start with.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *config.Config) error {
	var errs []error
	if cfg.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if cfg.Payment.StripeWebhookSecret != "" && cfg.Payment.StripeSecretKey == "" {
		errs = append(errs, errors.New("payment.stripe_webhook_secret is set without payment.stripe_secret_key"))
	}
	if cfg.Notification.SMTPHost != "" && cfg.Notification.FromAddress == "" {
		errs = append(errs, errors.New("notification.from_address is required with smtp_host"))
	}
	if _, err := refundpolicy.FromConfig(cfg.Cancellation.Policy); err != nil {
		errs = append(errs, fmt.Errorf("cancellation.policy: %w", err))
	}
	return errors.Join(errs...)
}
