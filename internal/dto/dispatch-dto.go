package dto

import "time"

type ClaimOrderDTO struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

type ReleaseOrderDTO struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

type UpdateOpsStatusDTO struct {
	OrderID uint64 `json:"order_id" validate:"required"`
	// Status is the target pipeline state the caller believes is next.
	Status string `json:"status" validate:"required"`
}

type CompleteOrderDTO struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

type ReportDelayDTO struct {
	OrderID   uint64 `json:"order_id" validate:"required"`
	DelayCode string `json:"delay_code" validate:"required"`
	Note      string `json:"note"`
}

type AssignDriverDTO struct {
	OrderID  uint64 `json:"order_id" validate:"required"`
	DriverID uint64 `json:"driver_id" validate:"required"`
}

type UnassignDriverDTO struct {
	OrderID uint64 `json:"order_id" validate:"required"`
}

// ClaimResultDTO reports the outcome of a claim/assign attempt. Exactly one
// of Assigned/AlreadyAssigned is true; AlreadyAssigned with HeldBy equal to
// the caller means an idempotent retry.
type ClaimResultDTO struct {
	OrderID         uint64  `json:"order_id"`
	Assigned        bool    `json:"assigned"`
	AlreadyAssigned bool    `json:"already_assigned"`
	HeldBy          *uint64 `json:"held_by,omitempty"`
	OpsStatus       string  `json:"ops_status"`
}

type CompleteResultDTO struct {
	OrderID          uint64 `json:"order_id"`
	Completed        bool   `json:"completed"`
	AlreadyCompleted bool   `json:"already_completed"`
}

type DispatchOrderDTO struct {
	OrderID         uint64     `json:"order_id"`
	OrderNumber     string     `json:"order_number"`
	HubID           uint64     `json:"hub_id"`
	CityID          uint64     `json:"city_id"`
	Status          string     `json:"status"`
	OpsStatus       string     `json:"ops_status"`
	Delayed         bool       `json:"delayed"`
	DriverID        *uint64    `json:"driver_id,omitempty"`
	FulfillmentType string     `json:"fulfillment_type"`
	Total           float64    `json:"total"`
	CreatedAt       time.Time  `json:"created_at"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`
}
