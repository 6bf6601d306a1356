package entities

import "time"

type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartConverted CartStatus = "converted"
	CartAbandoned CartStatus = "abandoned"
)

// Cart is read once at order creation and flipped to converted; a converted
// cart is read-only forever.
type Cart struct {
	ID           uint64     `json:"id"`
	SessionToken string     `json:"session_token"`
	CustomerID   uint64     `json:"customer_id"`
	HubID        uint64     `json:"hub_id"`
	Status       CartStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID          uint64  `json:"id"`
	CartID      uint64  `json:"cart_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}
