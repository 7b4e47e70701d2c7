package ordertest

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
)

// Item builds an active line item with the given line total.
func Item(name string, lineTotal int64) order.OrderItem {
	return order.OrderItem{
		ID:        uuid.New(),
		Kind:      order.ItemKindProduct,
		CatalogID: "sku-" + name,
		Name:      name,
		Quantity:  1,
		UnitPrice: lineTotal,
		LineTotal: lineTotal,
		Status:    order.ItemActive,
	}
}

// PaidOrder builds a paid online order placed at createdAt.
func PaidOrder(userID uuid.UUID, createdAt time.Time, delivery int64, items ...order.OrderItem) *order.Order {
	o := &order.Order{
		ID:             uuid.New(),
		OrderNo:        "ORD-" + createdAt.Format("20060102") + "-" + uuid.NewString()[:5],
		UserID:         userID,
		CustomerEmail:  "buyer@example.com",
		CustomerName:   "Test Buyer",
		DeliveryCharge: delivery,
		Currency:       "INR",
		Status:         order.StatusOrderPlaced,
		PaymentStatus:  order.PaymentPaid,
		PaymentMethod:  order.PaymentMethodOnline,
		CreatedAt:      createdAt,
		Items:          items,
	}
	for i := range o.Items {
		o.Items[i].Position = i
		o.Items[i].OrderID = o.ID
	}
	o.RecomputeTotals()
	o.OriginalTotal = o.TotalAmt
	return o
}
