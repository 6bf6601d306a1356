package authz

import "context"

// ScopeSet is the set of hubs and cities an actor may act on. All=true is
// reserved for platform operators and bypasses filtering entirely.
type ScopeSet struct {
	All     bool
	HubIDs  map[uint64]struct{}
	CityIDs map[uint64]struct{}
}

func NewScopeSet(hubIDs, cityIDs []uint64) ScopeSet {
	s := ScopeSet{
		HubIDs:  make(map[uint64]struct{}, len(hubIDs)),
		CityIDs: make(map[uint64]struct{}, len(cityIDs)),
	}
	for _, id := range hubIDs {
		s.HubIDs[id] = struct{}{}
	}
	for _, id := range cityIDs {
		s.CityIDs[id] = struct{}{}
	}
	return s
}

func OperatorScope() ScopeSet { return ScopeSet{All: true} }

// IsEmpty reports whether the scope grants nothing. An empty scope always
// fails closed: there is no permissive "allow all" fallback for managers
// without a hub mapping.
func (s ScopeSet) IsEmpty() bool {
	return !s.All && len(s.HubIDs) == 0 && len(s.CityIDs) == 0
}

// AllowsOrder reports whether an order placed at the given hub/city is
// inside the scope. Membership of either dimension is sufficient.
func (s ScopeSet) AllowsOrder(hubID, cityID uint64) bool {
	if s.All {
		return true
	}
	if _, ok := s.HubIDs[hubID]; ok {
		return true
	}
	_, ok := s.CityIDs[cityID]
	return ok
}

// HubList returns the hub ids as a slice for SQL IN filters.
func (s ScopeSet) HubList() []uint64 {
	out := make([]uint64, 0, len(s.HubIDs))
	for id := range s.HubIDs {
		out = append(out, id)
	}
	return out
}

// CityList returns the city ids as a slice for SQL IN filters.
func (s ScopeSet) CityList() []uint64 {
	out := make([]uint64, 0, len(s.CityIDs))
	for id := range s.CityIDs {
		out = append(out, id)
	}
	return out
}

// ScopeSource loads the raw hub/city memberships for an actor.
type ScopeSource interface {
	ManagerHubIDs(ctx context.Context, userID uint64) ([]uint64, error)
	DriverHubIDs(ctx context.Context, userID uint64) ([]uint64, error)
	DriverCityIDs(ctx context.Context, userID uint64) ([]uint64, error)
}

// Resolver computes the effective ScopeSet for an identity.
type Resolver struct {
	source ScopeSource
}

func NewResolver(source ScopeSource) *Resolver {
	return &Resolver{source: source}
}

func (r *Resolver) Resolve(ctx context.Context, identity Identity) (ScopeSet, error) {
	switch identity.Role {
	case RoleOperator:
		return OperatorScope(), nil
	case RoleManager:
		hubs, err := r.source.ManagerHubIDs(ctx, identity.UserID)
		if err != nil {
			return ScopeSet{}, err
		}
		return NewScopeSet(hubs, nil), nil
	case RoleDriver:
		hubs, err := r.source.DriverHubIDs(ctx, identity.UserID)
		if err != nil {
			return ScopeSet{}, err
		}
		cities, err := r.source.DriverCityIDs(ctx, identity.UserID)
		if err != nil {
			return ScopeSet{}, err
		}
		return NewScopeSet(hubs, cities), nil
	default:
		// Customers have no dispatch scope at all.
		return ScopeSet{}, nil
	}
}
