package app

import (
	"github.com/storefront/server/internal/module/cancellation"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/refundpolicy"
	"github.com/storefront/server/internal/shared/database"
	"gorm.io/gorm"
)

// models lists every table owned by the service, parents first.
func models() []any {
	return []any{
		&order.Order{},
		&order.OrderItem{},
		&order.RefundEntry{},
		&refundpolicy.Record{},
		&cancellation.Request{},
		&cancellation.RequestItem{},
		&payment.WebhookEvent{},
	}
}

func migrate(db *gorm.DB) error {
	return database.Migrate(db, models()...)
}
