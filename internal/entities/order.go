package entities

import "time"

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaymentFailed  OrderStatus = "payment_failed"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

// orderTransitions is the complete legal transition table. A payment_failed
// order is a dead end: retrying payment means creating a new order.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPendingPayment: {StatusConfirmed, StatusPaymentFailed},
	StatusPaymentFailed:  {},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusCompleted},
	StatusOutForDelivery: {StatusCompleted},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// LiveStatuses are the states an order can be in while a checkout attempt is
// still "in flight"; they bound the creation idempotency lookup.
var LiveStatuses = []OrderStatus{
	StatusPendingPayment,
	StatusPaymentFailed,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusOutForDelivery,
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func AllowedNextStatuses(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type FulfillmentType string

const (
	FulfillmentDelivery FulfillmentType = "delivery"
	FulfillmentPickup   FulfillmentType = "pickup"
)

func (f FulfillmentType) IsValid() bool {
	return f == FulfillmentDelivery || f == FulfillmentPickup
}

// PaymentMethodCardpay is the single supported payment processor. No other
// method is ever persisted, regardless of client input.
const PaymentMethodCardpay = "cardpay"

type Order struct {
	ID              uint64          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	HubID           uint64          `json:"hub_id"`
	CityID          uint64          `json:"city_id"`
	CustomerID      uint64          `json:"customer_id"`
	SessionToken    string          `json:"session_token"`
	FulfillmentType FulfillmentType `json:"fulfillment_type"`

	// Economics are frozen at creation and never recomputed.
	Subtotal    float64 `json:"subtotal"`
	TaxRate     float64 `json:"tax_rate"`
	TaxAmount   float64 `json:"tax_amount"`
	DeliveryFee float64 `json:"delivery_fee"`
	SoftwareFee float64 `json:"software_fee"`
	Tip         float64 `json:"tip"`
	Discount    float64 `json:"discount"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`

	PricingSnapshot []byte `json:"-"`
	CartSnapshot    []byte `json:"-"`

	PaymentMethod string        `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        OrderStatus   `json:"status"`
	DriverID      *uint64       `json:"driver_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID          uint64  `json:"id"`
	OrderID     uint64  `json:"order_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}
