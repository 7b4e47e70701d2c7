package payment

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records a gateway webhook delivery for deduplication.
type WebhookEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID     string     `gorm:"uniqueIndex;not null"`
	Type        string     `gorm:"not null"`
	Payload     string     `gorm:"type:jsonb"`
	ProcessedAt *time.Time `gorm:"index"`
	Error       string
	CreatedAt   time.Time
}

func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}

// Processed reports whether the event was handled successfully before.
func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil && e.Error == ""
}
