package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	infdb "delivery-system/internal/infrastructure/db"
	"delivery-system/pkg/types"
)

var listingFilterMap = map[string]string{
	"status":           "o.status",
	"ops_status":       "da.ops_status",
	"hub_id":           "o.hub_id",
	"city_id":          "o.city_id",
	"fulfillment_type": "o.fulfillment_type",
	"created_at":       "o.created_at",
}

type ListingRepositoryInterface interface {
	ListDispatchOrders(ctx context.Context, params DispatchListParams) ([]dto.DispatchOrderDTO, uint64, error)
}

// DispatchListParams is the §4.4 query surface: a pure filter over
// orders ⋈ dispatch_assignments applying the same scope and terminal-state
// exclusions as the mutating operations.
type DispatchListParams struct {
	Scope authz.ScopeSet
	// Statuses restricts the underlying order statuses (configurable set).
	Statuses []entities.OrderStatus
	// Since bounds the listing to a trailing window.
	Since time.Time
	// UnclaimedOnly keeps rows with no current driver (claimable work).
	UnclaimedOnly bool
	Filter        types.Filter
}

type ListingRepository struct {
	storage *pgxpool.Pool
}

func NewListingRepository(storage *pgxpool.Pool) ListingRepositoryInterface {
	return &ListingRepository{storage: storage}
}

func (r *ListingRepository) ListDispatchOrders(ctx context.Context, params DispatchListParams) ([]dto.DispatchOrderDTO, uint64, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	applyBase := func(b sq.SelectBuilder) sq.SelectBuilder {
		b = b.LeftJoin("dispatch_assignments da ON da.order_id = o.id").
			LeftJoin("delivery_archives ar ON ar.order_id = o.id").
			Where("ar.id IS NULL").
			Where(sq.NotEq{"o.status": []string{string(entities.StatusCompleted), string(entities.StatusCancelled)}})

		if len(params.Statuses) > 0 {
			statuses := make([]string, 0, len(params.Statuses))
			for _, s := range params.Statuses {
				statuses = append(statuses, string(s))
			}
			b = b.Where(sq.Eq{"o.status": statuses})
		}
		if !params.Since.IsZero() {
			b = b.Where(sq.GtOrEq{"o.created_at": params.Since})
		}
		if params.UnclaimedOnly {
			b = b.Where("(da.id IS NULL OR da.driver_id IS NULL)")
		}

		if !params.Scope.All {
			or := sq.Or{}
			if len(params.Scope.HubIDs) > 0 {
				or = append(or, sq.Eq{"o.hub_id": params.Scope.HubList()})
			}
			if len(params.Scope.CityIDs) > 0 {
				or = append(or, sq.Eq{"o.city_id": params.Scope.CityList()})
			}
			if len(or) == 0 {
				b = b.Where(sq.Expr("FALSE"))
			} else {
				b = b.Where(or)
			}
		}
		return b
	}

	countBuilder := applyBase(psql.Select("COUNT(o.id)").From("orders AS o"))
	countFilter := params.Filter
	countFilter.WithPagination = false
	countFilter.Sort = nil
	countBuilder = infdb.ApplyListParams(countBuilder, countFilter, listingFilterMap)

	sqlCount, argsCount, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	if err := r.storage.QueryRow(ctx, sqlCount, argsCount...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dispatch orders: %w", err)
	}
	if total == 0 {
		return []dto.DispatchOrderDTO{}, 0, nil
	}

	baseBuilder := applyBase(psql.Select(
		"o.id", "o.order_number", "o.hub_id", "o.city_id", "o.status",
		"COALESCE(da.ops_status, 'unassigned')", "COALESCE(da.delayed, FALSE)",
		"da.driver_id", "o.fulfillment_type", "o.total", "o.created_at", "da.assigned_at",
	).From("orders AS o"))

	if len(params.Filter.Sort) == 0 {
		baseBuilder = baseBuilder.OrderBy("o.created_at DESC")
	}
	baseBuilder = infdb.ApplyListParams(baseBuilder, params.Filter, listingFilterMap)

	query, args, err := baseBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query dispatch orders: %w", err)
	}
	defer rows.Close()

	out := make([]dto.DispatchOrderDTO, 0, params.Filter.Limit)
	for rows.Next() {
		var d dto.DispatchOrderDTO
		if err := rows.Scan(
			&d.OrderID, &d.OrderNumber, &d.HubID, &d.CityID, &d.Status,
			&d.OpsStatus, &d.Delayed, &d.DriverID, &d.FulfillmentType,
			&d.Total, &d.CreatedAt, &d.AssignedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan dispatch order: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}
