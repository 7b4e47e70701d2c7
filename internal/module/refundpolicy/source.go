package refundpolicy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/storefront/server/internal/shared/database"
	"github.com/storefront/server/internal/utils/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Source yields the policy that applies right now.
type Source interface {
	Active(ctx context.Context) (*Policy, error)
}

// StaticSource serves a fixed policy, normally the configured default.
type StaticSource struct {
	policy *Policy
}

// NewStaticSource creates a source that always returns policy.
func NewStaticSource(policy *Policy) *StaticSource {
	return &StaticSource{policy: policy}
}

// Active returns a copy of the static policy.
func (s *StaticSource) Active(context.Context) (*Policy, error) {
	if s.policy == nil {
		return nil, ErrNoActivePolicy
	}
	return s.policy.Clone(), nil
}

// --- Postgres store ---

// Record is a published policy document.
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Active    bool      `gorm:"not null;default:false;index"`
	Document  Policy    `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt time.Time
}

// TableName returns the database table name.
func (Record) TableName() string {
	return "cancellation_policies"
}

// Store keeps policy documents in postgres.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new policy store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Active returns the newest active policy.
func (s *Store) Active(ctx context.Context) (*Policy, error) {
	var rec Record
	err := database.Conn(ctx, s.db).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActivePolicy
		}
		return nil, fmt.Errorf("load active policy: %w", err)
	}

	policy := rec.Document
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s: %w", rec.Version, err)
	}
	return &policy, nil
}

// Publish stores policy as the only active document.
func (s *Store) Publish(ctx context.Context, policy *Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	return database.NewTxRunner(s.db).RunInTransaction(ctx, func(ctx context.Context) error {
		tx := database.Conn(ctx, s.db)
		if err := tx.Model(&Record{}).Where("active = ?", true).Update("active", false).Error; err != nil {
			return fmt.Errorf("deactivate policies: %w", err)
		}
		rec := &Record{Version: policy.Version, Active: true, Document: *policy.Clone()}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("create policy: %w", err)
		}
		return nil
	})
}

// EnsureDefault publishes policy when the store holds no active document.
func (s *Store) EnsureDefault(ctx context.Context, policy *Policy) error {
	_, err := s.Active(ctx)
	if err == nil || !errors.Is(err, ErrNoActivePolicy) {
		return err
	}
	return s.Publish(ctx, policy)
}

// --- Redis cache ---

const activePolicyCacheKey = "cancellation:policy:active"

// CachedSource caches the active policy in redis.
type CachedSource struct {
	next    Source
	redis   goredis.UniversalClient
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCachedSource wraps next with a redis cache.
func NewCachedSource(next Source, redis goredis.UniversalClient, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{next: next, redis: redis, ttl: ttl, metrics: m, logger: logger}
}

// Active returns the cached policy, loading it from next on a miss.
// Cache failures fall through to next.
func (s *CachedSource) Active(ctx context.Context) (*Policy, error) {
	data, err := s.redis.Get(ctx, activePolicyCacheKey).Bytes()
	switch {
	case err == nil:
		var policy Policy
		if err := json.Unmarshal(data, &policy); err == nil {
			s.metrics.RecordPolicyCache("hit")
			return &policy, nil
		}
		s.metrics.RecordPolicyCache("error")
	case errors.Is(err, goredis.Nil):
		s.metrics.RecordPolicyCache("miss")
	default:
		s.metrics.RecordPolicyCache("error")
		s.logger.Warn("policy cache read failed", zap.Error(err))
	}

	policy, err := s.next.Active(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(policy); err == nil {
		if err := s.redis.Set(ctx, activePolicyCacheKey, data, s.ttl).Err(); err != nil {
			s.logger.Warn("policy cache write failed", zap.Error(err))
		}
	}
	return policy, nil
}

// Invalidate drops the cached policy.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.redis.Del(ctx, activePolicyCacheKey).Err()
}

// --- Fallback ---

// FallbackSource serves the configured default whenever primary fails.
type FallbackSource struct {
	primary  Source
	fallback *Policy
	logger   *zap.Logger
}

// NewFallbackSource creates a source that never fails while fallback is set.
func NewFallbackSource(primary Source, fallback *Policy, logger *zap.Logger) *FallbackSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackSource{primary: primary, fallback: fallback, logger: logger}
}

// Active returns the primary policy or the fallback.
func (s *FallbackSource) Active(ctx context.Context) (*Policy, error) {
	policy, err := s.primary.Active(ctx)
	if err == nil {
		return policy, nil
	}
	if s.fallback == nil {
		return nil, err
	}
	s.logger.Warn("using default cancellation policy",
		zap.String("version", s.fallback.Version),
		zap.Error(err),
	)
	return s.fallback.Clone(), nil
}
