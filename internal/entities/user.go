package entities

import "time"

type User struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	HubID     *uint64   `json:"hub_id,omitempty"`
	CityID    *uint64   `json:"city_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileComplete reports whether the profile satisfies the minimum
// completeness required to place an order.
func (u *User) ProfileComplete() bool {
	return u.Name != "" && u.Phone != ""
}
