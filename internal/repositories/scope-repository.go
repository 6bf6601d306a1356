package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ScopeRepository loads hub/city memberships for managers and drivers. It
// satisfies authz.ScopeSource.
type ScopeRepository struct {
	storage *pgxpool.Pool
}

func NewScopeRepository(storage *pgxpool.Pool) *ScopeRepository {
	return &ScopeRepository{storage: storage}
}

func (r *ScopeRepository) queryIDs(ctx context.Context, query string, userID uint64) ([]uint64, error) {
	rows, err := r.storage.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scope: %w", err)
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan scope id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ScopeRepository) ManagerHubIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	return r.queryIDs(ctx, `SELECT hub_id FROM manager_hub_scopes WHERE user_id = $1`, userID)
}

func (r *ScopeRepository) DriverHubIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	return r.queryIDs(ctx, `SELECT hub_id FROM driver_hub_scopes WHERE user_id = $1`, userID)
}

func (r *ScopeRepository) DriverCityIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	return r.queryIDs(ctx, `SELECT city_id FROM driver_city_scopes WHERE user_id = $1`, userID)
}
