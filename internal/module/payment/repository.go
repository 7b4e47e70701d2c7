package payment

import (
	"context"
	"time"

	"github.com/storefront/server/internal/shared/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookRepository stores webhook deliveries.
type WebhookRepository interface {
	// Record inserts the event if it is new and returns the stored row.
	Record(ctx context.Context, event *WebhookEvent) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string, handleErr error) error
}

type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook event repository.
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) Record(ctx context.Context, event *WebhookEvent) (*WebhookEvent, error) {
	conn := database.Conn(ctx, r.db)
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event).Error
	if err != nil {
		return nil, err
	}

	var stored WebhookEvent
	if err := conn.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *webhookRepository) MarkProcessed(ctx context.Context, eventID string, handleErr error) error {
	updates := map[string]any{"processed_at": time.Now(), "error": ""}
	if handleErr != nil {
		updates["error"] = handleErr.Error()
	}
	return database.Conn(ctx, r.db).
		Model(&WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(updates).Error
}
