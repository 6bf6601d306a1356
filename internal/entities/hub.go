package entities

import "time"

type Hub struct {
	ID              uint64    `json:"id"`
	Name            string    `json:"name"`
	CityID          uint64    `json:"city_id"`
	IsActive        bool      `json:"is_active"`
	AcceptingOrders bool      `json:"accepting_orders"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
