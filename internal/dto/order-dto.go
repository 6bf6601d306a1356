package dto

import "time"

// DeliverySnapshot is the delivery sub-section of the pricing snapshot. The
// fee here must agree byte-for-byte (within tolerance) with the top-level
// delivery fee of the snapshot; a mismatch fails closed.
type DeliverySnapshot struct {
	Address   string  `json:"address" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"required"`
	Longitude float64 `json:"longitude" validate:"required"`
	Fee       float64 `json:"fee"`
}

// PricingSnapshot is the previously computed, versioned price breakdown.
// The core treats it as opaque except for internal-consistency validation;
// it is frozen onto the order as a structured blob.
type PricingSnapshot struct {
	Version     string            `json:"version"`
	Subtotal    float64           `json:"subtotal" validate:"required"`
	TaxRate     float64           `json:"tax_rate"`
	TaxAmount   float64           `json:"tax_amount"`
	DeliveryFee float64           `json:"delivery_fee"`
	SoftwareFee float64           `json:"software_fee"`
	Tip         float64           `json:"tip"`
	Discount    float64           `json:"discount"`
	Total       float64           `json:"total" validate:"required"`
	Currency    string            `json:"currency" validate:"required"`
	Delivery    *DeliverySnapshot `json:"delivery,omitempty"`
}

type CreateOrderDTO struct {
	SessionToken    string          `json:"session_token" validate:"required"`
	HubID           uint64          `json:"hub_id" validate:"required"`
	FulfillmentType string          `json:"fulfillment_type" validate:"required"`
	PaymentMethod   string          `json:"payment_method"`
	Snapshot        PricingSnapshot `json:"pricing_snapshot" validate:"required"`
}

type CreateOrderResultDTO struct {
	ID            uint64 `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	AlreadyExists bool   `json:"already_exists"`
}

type OrderItemDTO struct {
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

type OrderDTO struct {
	ID              uint64         `json:"id"`
	OrderNumber     string         `json:"order_number"`
	HubID           uint64         `json:"hub_id"`
	CityID          uint64         `json:"city_id"`
	CustomerID      uint64         `json:"customer_id"`
	FulfillmentType string         `json:"fulfillment_type"`
	Subtotal        float64        `json:"subtotal"`
	TaxAmount       float64        `json:"tax_amount"`
	DeliveryFee     float64        `json:"delivery_fee"`
	SoftwareFee     float64        `json:"software_fee"`
	Tip             float64        `json:"tip"`
	Discount        float64        `json:"discount"`
	Total           float64        `json:"total"`
	Currency        string         `json:"currency"`
	PaymentMethod   string         `json:"payment_method"`
	PaymentStatus   string         `json:"payment_status"`
	Status          string         `json:"status"`
	DriverID        *uint64        `json:"driver_id,omitempty"`
	Items           []OrderItemDTO `json:"items,omitempty"`
	CreatedAt       string         `json:"created_at"`
}

type ChangeOrderStatusDTO struct {
	Status string `json:"status" validate:"required"`
}

type ConfirmPaymentDTO struct {
	// Outcome is the payment processor verdict: "paid" or "failed".
	Outcome string `json:"outcome" validate:"required,oneof=paid failed"`
}

type StatusHistoryDTO struct {
	Status    string    `json:"status"`
	ChangedBy uint64    `json:"changed_by"`
	CreatedAt time.Time `json:"created_at"`
}
