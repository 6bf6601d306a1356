package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/entities"
	infdb "delivery-system/internal/infrastructure/db"
	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/types"
)

const ordersTable = "orders"

// orderFilterMap whitelists the JSON filter/sort fields of list queries.
var orderFilterMap = map[string]string{
	"id":               "o.id",
	"status":           "o.status",
	"hub_id":           "o.hub_id",
	"city_id":          "o.city_id",
	"payment_status":   "o.payment_status",
	"fulfillment_type": "o.fulfillment_type",
	"created_at":       "o.created_at",
	"total":            "o.total",
}

type OrderRepositoryInterface interface {
	FindLiveBySession(ctx context.Context, q Querier, sessionToken string, hubID, customerID uint64, since time.Time) (*entities.Order, error)
	CreateOrderInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) (uint64, error)
	InsertItemsInTx(ctx context.Context, tx pgx.Tx, orderID uint64, items []entities.OrderItem) error
	FindOrder(ctx context.Context, q Querier, id uint64) (*entities.Order, error)
	FindOrderForUpdate(ctx context.Context, tx pgx.Tx, id uint64) (*entities.Order, error)
	GetItems(ctx context.Context, q Querier, orderID uint64) ([]entities.OrderItem, error)
	UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uint64, status entities.OrderStatus) error
	SetPaymentStatusInTx(ctx context.Context, tx pgx.Tx, id uint64, ps entities.PaymentStatus) error
	SetDriverInTx(ctx context.Context, tx pgx.Tx, id uint64, driverID *uint64) error
	GetOrders(ctx context.Context, filter types.Filter, scope authz.ScopeSet, customerID *uint64) ([]entities.Order, uint64, error)
}

type OrderRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewOrderRepository(storage *pgxpool.Pool, logger *zap.Logger) OrderRepositoryInterface {
	return &OrderRepository{storage: storage, logger: logger}
}

const orderColumns = `
	o.id, o.order_number, o.hub_id, o.city_id, o.customer_id, o.session_token,
	o.fulfillment_type, o.subtotal, o.tax_rate, o.tax_amount, o.delivery_fee,
	o.software_fee, o.tip, o.discount, o.total, o.currency,
	o.pricing_snapshot, o.cart_snapshot, o.payment_method, o.payment_status,
	o.status, o.driver_id, o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (*entities.Order, error) {
	var o entities.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.HubID, &o.CityID, &o.CustomerID, &o.SessionToken,
		&o.FulfillmentType, &o.Subtotal, &o.TaxRate, &o.TaxAmount, &o.DeliveryFee,
		&o.SoftwareFee, &o.Tip, &o.Discount, &o.Total, &o.Currency,
		&o.PricingSnapshot, &o.CartSnapshot, &o.PaymentMethod, &o.PaymentStatus,
		&o.Status, &o.DriverID, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

// FindLiveBySession is the idempotency lookup: the newest order for the same
// session/hub/customer in a live status within the trailing window.
func (r *OrderRepository) FindLiveBySession(ctx context.Context, q Querier, sessionToken string, hubID, customerID uint64, since time.Time) (*entities.Order, error) {
	if q == nil {
		q = r.storage
	}
	statuses := make([]string, 0, len(entities.LiveStatuses))
	for _, s := range entities.LiveStatuses {
		statuses = append(statuses, string(s))
	}
	row := q.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.session_token = $1 AND o.hub_id = $2 AND o.customer_id = $3
		  AND o.status = ANY($4)
		  AND o.created_at >= $5
		ORDER BY o.created_at DESC
		LIMIT 1`,
		sessionToken, hubID, customerID, statuses, since)
	return scanOrder(row)
}

func (r *OrderRepository) CreateOrderInTx(ctx context.Context, tx pgx.Tx, order *entities.Order) (uint64, error) {
	var id uint64
	err := tx.QueryRow(ctx, `
		INSERT INTO orders (
			order_number, hub_id, city_id, customer_id, session_token,
			fulfillment_type, subtotal, tax_rate, tax_amount, delivery_fee,
			software_fee, tip, discount, total, currency,
			pricing_snapshot, cart_snapshot, payment_method, payment_status,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, NOW(), NOW()
		) RETURNING id`,
		order.OrderNumber, order.HubID, order.CityID, order.CustomerID, order.SessionToken,
		order.FulfillmentType, order.Subtotal, order.TaxRate, order.TaxAmount, order.DeliveryFee,
		order.SoftwareFee, order.Tip, order.Discount, order.Total, order.Currency,
		order.PricingSnapshot, order.CartSnapshot, order.PaymentMethod, order.PaymentStatus,
		order.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}

func (r *OrderRepository) InsertItemsInTx(ctx context.Context, tx pgx.Tx, orderID uint64, items []entities.OrderItem) error {
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_name, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductName, it.UnitPrice, it.Quantity, it.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) FindOrder(ctx context.Context, q Querier, id uint64) (*entities.Order, error) {
	if q == nil {
		q = r.storage
	}
	row := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	return scanOrder(row)
}

// FindOrderForUpdate locks the order row; transition decisions are made on
// the post-lock state, never on a pre-lock read.
func (r *OrderRepository) FindOrderForUpdate(ctx context.Context, tx pgx.Tx, id uint64) (*entities.Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (r *OrderRepository) GetItems(ctx context.Context, q Querier, orderID uint64) ([]entities.OrderItem, error) {
	if q == nil {
		q = r.storage
	}
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_name, unit_price, quantity, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make([]entities.OrderItem, 0)
	for rows.Next() {
		var it entities.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *OrderRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, id uint64, status entities.OrderStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) SetPaymentStatusInTx(ctx context.Context, tx pgx.Tx, id uint64, ps entities.PaymentStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`, ps, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetDriverInTx keeps the order's driver-linkage column in step with the
// dispatch assignment row; it is only ever called by the dispatch engine
// inside the same transaction that mutates the assignment.
func (r *OrderRepository) SetDriverInTx(ctx context.Context, tx pgx.Tx, id uint64, driverID *uint64) error {
	tag, err := tx.Exec(ctx, `UPDATE orders SET driver_id = $1, updated_at = NOW() WHERE id = $2`, driverID, id)
	if err != nil {
		return fmt.Errorf("failed to update order driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) GetOrders(ctx context.Context, filter types.Filter, scope authz.ScopeSet, customerID *uint64) ([]entities.Order, uint64, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	applyScope := func(b sq.SelectBuilder) sq.SelectBuilder {
		if customerID != nil {
			return b.Where(sq.Eq{"o.customer_id": *customerID})
		}
		if scope.All {
			return b
		}
		or := sq.Or{}
		if len(scope.HubIDs) > 0 {
			or = append(or, sq.Eq{"o.hub_id": scope.HubList()})
		}
		if len(scope.CityIDs) > 0 {
			or = append(or, sq.Eq{"o.city_id": scope.CityList()})
		}
		if len(or) == 0 {
			// Empty scope matches nothing; fail closed.
			return b.Where(sq.Expr("FALSE"))
		}
		return b.Where(or)
	}

	countBuilder := applyScope(psql.Select("COUNT(o.id)").From(ordersTable + " AS o"))
	countFilter := filter
	countFilter.WithPagination = false
	countFilter.Sort = nil
	countBuilder = infdb.ApplyListParams(countBuilder, countFilter, orderFilterMap)

	var total uint64
	sqlCount, argsCount, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}
	if err := r.storage.QueryRow(ctx, sqlCount, argsCount...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if total == 0 {
		return []entities.Order{}, 0, nil
	}

	baseBuilder := applyScope(psql.Select(
		"o.id", "o.order_number", "o.hub_id", "o.city_id", "o.customer_id", "o.session_token",
		"o.fulfillment_type", "o.subtotal", "o.tax_rate", "o.tax_amount", "o.delivery_fee",
		"o.software_fee", "o.tip", "o.discount", "o.total", "o.currency",
		"o.pricing_snapshot", "o.cart_snapshot", "o.payment_method", "o.payment_status",
		"o.status", "o.driver_id", "o.created_at", "o.updated_at",
	).From(ordersTable + " AS o"))

	if len(filter.Sort) == 0 {
		baseBuilder = baseBuilder.OrderBy("o.created_at DESC")
	}
	baseBuilder = infdb.ApplyListParams(baseBuilder, filter, orderFilterMap)

	query, args, err := baseBuilder.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.storage.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]entities.Order, 0, filter.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *order)
	}
	return orders, total, rows.Err()
}
