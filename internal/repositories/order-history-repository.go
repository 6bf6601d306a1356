package repositories

import (
	"context"
	"fmt"

	"delivery-system/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type OrderHistoryRepositoryInterface interface {
	InsertInTx(ctx context.Context, tx pgx.Tx, orderID uint64, status entities.OrderStatus, changedBy uint64) error
	ListByOrder(ctx context.Context, orderID uint64) ([]entities.OrderStatusHistory, error)
}

// OrderHistoryRepository is append-only: rows are never updated or deleted.
type OrderHistoryRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewOrderHistoryRepository(storage *pgxpool.Pool, logger *zap.Logger) OrderHistoryRepositoryInterface {
	return &OrderHistoryRepository{storage: storage, logger: logger}
}

func (r *OrderHistoryRepository) InsertInTx(ctx context.Context, tx pgx.Tx, orderID uint64, status entities.OrderStatus, changedBy uint64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, changed_by, created_at)
		VALUES ($1, $2, $3, NOW())`,
		orderID, status, changedBy)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}
	return nil
}

func (r *OrderHistoryRepository) ListByOrder(ctx context.Context, orderID uint64) ([]entities.OrderStatusHistory, error) {
	rows, err := r.storage.Query(ctx, `
		SELECT id, order_id, status, changed_by, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	history := make([]entities.OrderStatusHistory, 0)
	for rows.Next() {
		var h entities.OrderStatusHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
