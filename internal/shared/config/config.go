package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Log          LogConfig          `mapstructure:"log"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cancellation CancellationConfig `mapstructure:"cancellation"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	SlowQuery       time.Duration `mapstructure:"slow_query"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"`
	Issuer       string   `mapstructure:"issuer"`
	AdminEmails  []string `mapstructure:"admin_emails"`
	AdminUserIDs []string `mapstructure:"admin_user_ids"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PaymentConfig holds payment gateway configuration.
type PaymentConfig struct {
	StripeSecretKey     string        `mapstructure:"stripe_secret_key"`
	StripeWebhookSecret string        `mapstructure:"stripe_webhook_secret"`
	RefundTimeout       time.Duration `mapstructure:"refund_timeout"`
	BreakerFailures     uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
}

// NotificationConfig holds outbound email configuration.
type NotificationConfig struct {
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	FromAddress  string        `mapstructure:"from_address"`
	FromName     string        `mapstructure:"from_name"`
	SupportEmail string        `mapstructure:"support_email"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

// CancellationConfig holds the default cancellation policy and its cache settings.
type CancellationConfig struct {
	PolicyCacheTTL time.Duration `mapstructure:"policy_cache_ttl"`
	Policy         PolicyConfig  `mapstructure:"policy"`
}

// PolicyConfig is the default refund policy document shipped with the binary.
type PolicyConfig struct {
	Version                      string             `mapstructure:"version"`
	Tiers                        []TierConfig       `mapstructure:"tiers"`
	LoyaltyBonuses               map[string]float64 `mapstructure:"loyalty_bonuses"`
	AfterDeliveryPenalty         float64            `mapstructure:"after_delivery_penalty"`
	PastEstimatedDeliveryPenalty float64            `mapstructure:"past_estimated_delivery_penalty"`
	LegacyPercentage             float64            `mapstructure:"legacy_percentage"`
	BlockedOrderStatuses         []string           `mapstructure:"blocked_order_statuses"`
	AllowedReasons               []string           `mapstructure:"allowed_reasons"`
}

// TierConfig is one timing tier. MaxDays < 0 means unbounded.
type TierConfig struct {
	Name       string  `mapstructure:"name"`
	MaxDays    int     `mapstructure:"max_days"`
	Percentage float64 `mapstructure:"percentage"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/storefront")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("STOREFRONT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("STOREFRONT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("STOREFRONT_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("STOREFRONT_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("STOREFRONT_STRIPE_SECRET_KEY"); key != "" {
		cfg.Payment.StripeSecretKey = key
	}
	if secret := os.Getenv("STOREFRONT_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Payment.StripeWebhookSecret = secret
	}
	if password := os.Getenv("STOREFRONT_SMTP_PASSWORD"); password != "" {
		cfg.Notification.SMTPPassword = password
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "storefront")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.slow_query", 200*time.Millisecond)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.issuer", "storefront")

	// Payment defaults
	v.SetDefault("payment.refund_timeout", 15*time.Second)
	v.SetDefault("payment.breaker_failures", 5)
	v.SetDefault("payment.breaker_timeout", 30*time.Second)

	// Notification defaults
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.from_name", "Storefront")
	v.SetDefault("notification.send_timeout", 10*time.Second)

	// Cancellation defaults
	v.SetDefault("cancellation.policy_cache_ttl", 5*time.Minute)
	setPolicyDefaults(v)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func setPolicyDefaults(v *viper.Viper) {
	v.SetDefault("cancellation.policy.version", "default")
	v.SetDefault("cancellation.policy.tiers", []map[string]any{
		{"name": "EARLY", "max_days": 2, "percentage": 90},
		{"name": "STANDARD", "max_days": 7, "percentage": 75},
		{"name": "LATE", "max_days": -1, "percentage": 50},
	})
	v.SetDefault("cancellation.policy.loyalty_bonuses", map[string]float64{
		"VIP":  5,
		"GOLD": 2,
	})
	v.SetDefault("cancellation.policy.after_delivery_penalty", 25)
	v.SetDefault("cancellation.policy.past_estimated_delivery_penalty", 10)
	v.SetDefault("cancellation.policy.legacy_percentage", 75)
	v.SetDefault("cancellation.policy.blocked_order_statuses", []string{
		"OUT_FOR_DELIVERY", "DELIVERED", "CANCELLED",
	})
	v.SetDefault("cancellation.policy.allowed_reasons", []string{
		"CHANGED_MIND", "FOUND_BETTER_PRICE", "ORDERED_BY_MISTAKE",
		"DELIVERY_TOO_SLOW", "WRONG_ITEM", "DAMAGED_ITEM", "OTHER",
	})
}
