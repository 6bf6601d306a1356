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

type CartRepositoryInterface interface {
	FindBySessionToken(ctx context.Context, q Querier, token string) (*entities.Cart, error)
	FindBySessionTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (*entities.Cart, error)
	GetItems(ctx context.Context, q Querier, cartID uint64) ([]entities.CartItem, error)
	MarkConverted(ctx context.Context, tx pgx.Tx, cartID uint64) error
}

type CartRepository struct {
	storage *pgxpool.Pool
}

func NewCartRepository(storage *pgxpool.Pool) CartRepositoryInterface {
	return &CartRepository{storage: storage}
}

const cartColumns = `id, session_token, customer_id, hub_id, status, created_at, updated_at`

func scanCart(row pgx.Row) (*entities.Cart, error) {
	var c entities.Cart
	err := row.Scan(&c.ID, &c.SessionToken, &c.CustomerID, &c.HubID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan cart: %w", err)
	}
	return &c, nil
}

func (r *CartRepository) FindBySessionToken(ctx context.Context, q Querier, token string) (*entities.Cart, error) {
	if q == nil {
		q = r.storage
	}
	row := q.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE session_token = $1`, token)
	return scanCart(row)
}

// FindBySessionTokenForUpdate locks the cart row for the duration of the
// creation transaction, so concurrent checkouts against the same cart
// serialize.
func (r *CartRepository) FindBySessionTokenForUpdate(ctx context.Context, tx pgx.Tx, token string) (*entities.Cart, error) {
	row := tx.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE session_token = $1 FOR UPDATE`, token)
	return scanCart(row)
}

func (r *CartRepository) GetItems(ctx context.Context, q Querier, cartID uint64) ([]entities.CartItem, error) {
	if q == nil {
		q = r.storage
	}
	rows, err := q.Query(ctx, `
		SELECT id, cart_id, product_name, unit_price, quantity, line_total
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	items := make([]entities.CartItem, 0)
	for rows.Next() {
		var it entities.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *CartRepository) MarkConverted(ctx context.Context, tx pgx.Tx, cartID uint64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE carts SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		entities.CartConverted, cartID, entities.CartActive)
	if err != nil {
		return fmt.Errorf("failed to convert cart: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
