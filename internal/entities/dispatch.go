package entities

import "time"

// OpsStatus is the dispatch pipeline state, independent of Order.Status.
// "Who is physically carrying the order" changes on a different schedule
// and is owned by different actors than the restaurant-side status.
type OpsStatus string

const (
	OpsUnassigned OpsStatus = "unassigned"
	OpsAssigned   OpsStatus = "assigned"
	OpsPickedUp   OpsStatus = "picked_up"
	OpsCompleted  OpsStatus = "completed"
)

var opsTransitions = map[OpsStatus]OpsStatus{
	OpsUnassigned: OpsAssigned,
	OpsAssigned:   OpsPickedUp,
	OpsPickedUp:   OpsCompleted,
}

func (s OpsStatus) IsTerminal() bool { return s == OpsCompleted }

func (s OpsStatus) IsValid() bool {
	switch s {
	case OpsUnassigned, OpsAssigned, OpsPickedUp, OpsCompleted:
		return true
	}
	return false
}

// NextOpsStatus returns the only legal forward step from the given state,
// or "" when the pipeline cannot advance further.
func NextOpsStatus(from OpsStatus) OpsStatus {
	return opsTransitions[from]
}

// DispatchAssignment is the single point of truth for who owns a delivery.
// At most one non-null driver per row at any instant; an unassigned row must
// carry a null driver.
type DispatchAssignment struct {
	ID         uint64     `json:"id"`
	OrderID    uint64     `json:"order_id"`
	DriverID   *uint64    `json:"driver_id,omitempty"`
	OpsStatus  OpsStatus  `json:"ops_status"`
	Delayed    bool       `json:"delayed"`
	AssignedBy *uint64    `json:"assigned_by,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DeliveryArchive is written once at completion; archived orders are
// permanently excluded from assignment queries.
type DeliveryArchive struct {
	ID          uint64    `json:"id"`
	OrderID     uint64    `json:"order_id"`
	DriverID    uint64    `json:"driver_id"`
	HubID       uint64    `json:"hub_id"`
	CityID      uint64    `json:"city_id"`
	Total       float64   `json:"total"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// DelayReport is an append-only annotation; it never changes the pipeline
// state.
type DelayReport struct {
	ID        uint64    `json:"id"`
	OrderID   uint64    `json:"order_id"`
	DriverID  uint64    `json:"driver_id"`
	DelayCode string    `json:"delay_code"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
