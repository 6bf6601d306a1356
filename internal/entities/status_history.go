package entities

import "time"

// OrderStatusHistory rows are append-only: one row per accepted transition,
// including the initial creation row. Never updated or deleted.
type OrderStatusHistory struct {
	ID        uint64      `json:"id"`
	OrderID   uint64      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	ChangedBy uint64      `json:"changed_by"`
	CreatedAt time.Time   `json:"created_at"`
}
