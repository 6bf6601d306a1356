package repositories

import (
	"context"
	"errors"
	"fmt"

	"delivery-system/internal/entities"
	apperrors "delivery-system/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HubRepositoryInterface interface {
	FindHub(ctx context.Context, id uint64) (*entities.Hub, error)
}

type HubRepository struct {
	storage *pgxpool.Pool
}

func NewHubRepository(storage *pgxpool.Pool) HubRepositoryInterface {
	return &HubRepository{storage: storage}
}

func (r *HubRepository) FindHub(ctx context.Context, id uint64) (*entities.Hub, error) {
	var h entities.Hub
	err := r.storage.QueryRow(ctx, `
		SELECT id, name, city_id, is_active, accepting_orders, created_at, updated_at
		FROM hubs WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.CityID, &h.IsActive, &h.AcceptingOrders, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan hub: %w", err)
	}
	return &h, nil
}
