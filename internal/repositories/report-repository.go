package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-system/internal/authz"
	"delivery-system/internal/entities"
)

type ReportRepositoryInterface interface {
	ListArchives(ctx context.Context, scope authz.ScopeSet, from, to time.Time) ([]entities.DeliveryArchive, error)
}

type ReportRepository struct {
	storage *pgxpool.Pool
}

func NewReportRepository(storage *pgxpool.Pool) ReportRepositoryInterface {
	return &ReportRepository{storage: storage}
}

func (r *ReportRepository) ListArchives(ctx context.Context, scope authz.ScopeSet, from, to time.Time) ([]entities.DeliveryArchive, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	builder := psql.Select(
		"id", "order_id", "driver_id", "hub_id", "city_id", "total", "delivered_at",
	).From("delivery_archives").
		Where(sq.GtOrEq{"delivered_at": from}).
		Where(sq.LtOrEq{"delivered_at": to}).
		OrderBy("delivered_at DESC")

	if !scope.All {
		or := sq.Or{}
		if len(scope.HubIDs) > 0 {
			or = append(or, sq.Eq{"hub_id": scope.HubList()})
		}
		if len(scope.CityIDs) > 0 {
			or = append(or, sq.Eq{"city_id": scope.CityList()})
		}
		if len(or) == 0 {
			return []entities.DeliveryArchive{}, nil
		}
		builder = builder.Where(or)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery archives: %w", err)
	}
	defer rows.Close()

	archives := make([]entities.DeliveryArchive, 0)
	for rows.Next() {
		var a entities.DeliveryArchive
		if err := rows.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.HubID, &a.CityID, &a.Total, &a.DeliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery archive: %w", err)
		}
		archives = append(archives, a)
	}
	return archives, rows.Err()
}
