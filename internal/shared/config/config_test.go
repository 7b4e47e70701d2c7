package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.Cancellation.PolicyCacheTTL)
	assert.Equal(t, uint32(5), cfg.Payment.BreakerFailures)
	assert.Equal(t, 10*time.Second, cfg.Notification.SendTimeout)

	policy := cfg.Cancellation.Policy
	require.Len(t, policy.Tiers, 3)
	assert.Equal(t, TierConfig{Name: "EARLY", MaxDays: 2, Percentage: 90}, policy.Tiers[0])
	assert.Equal(t, TierConfig{Name: "STANDARD", MaxDays: 7, Percentage: 75}, policy.Tiers[1])
	assert.Equal(t, TierConfig{Name: "LATE", MaxDays: -1, Percentage: 50}, policy.Tiers[2])
	assert.Equal(t, 75.0, policy.LegacyPercentage)
	assert.Contains(t, policy.AllowedReasons, "OTHER")
}

func TestLoad_FileAndSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
server:
  address: ":9090"
auth:
  admin_emails:
    - ops@example.com
cancellation:
  policy:
    version: "2026-03"
    legacy_percentage: 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("STOREFRONT_JWT_SECRET", "from-env")
	t.Setenv("STOREFRONT_STRIPE_SECRET_KEY", "sk_test_env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, []string{"ops@example.com"}, cfg.Auth.AdminEmails)
	assert.Equal(t, "2026-03", cfg.Cancellation.Policy.Version)
	assert.Equal(t, 60.0, cfg.Cancellation.Policy.LegacyPercentage)
	assert.Len(t, cfg.Cancellation.Policy.Tiers, 3)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "sk_test_env", cfg.Payment.StripeSecretKey)
}
