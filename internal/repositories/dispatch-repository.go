package repositories

import (
	"context"
	"errors"
	"fmt"

	"delivery-system/internal/entities"
	apperrors "delivery-system/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DispatchRepositoryInterface interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uint64) (*entities.DispatchAssignment, error)
	EnsureForUpdate(ctx context.Context, tx pgx.Tx, orderID uint64) (*entities.DispatchAssignment, error)
	AssignInTx(ctx context.Context, tx pgx.Tx, orderID, driverID, assignedBy uint64) error
	ReleaseInTx(ctx context.Context, tx pgx.Tx, orderID, driverID uint64) (bool, error)
	AdvanceInTx(ctx context.Context, tx pgx.Tx, orderID, driverID uint64, from, to entities.OpsStatus) (bool, error)
	SetDelayedInTx(ctx context.Context, tx pgx.Tx, orderID uint64, delayed bool) error
	InsertDelayReport(ctx context.Context, q Querier, report entities.DelayReport) error
	ArchiveInTx(ctx context.Context, tx pgx.Tx, archive entities.DeliveryArchive) error
	IsArchived(ctx context.Context, q Querier, orderID uint64) (bool, error)
	FindByOrder(ctx context.Context, q Querier, orderID uint64) (*entities.DispatchAssignment, error)
}

type DispatchRepository struct {
	storage *pgxpool.Pool
	logger  *zap.Logger
}

func NewDispatchRepository(storage *pgxpool.Pool, logger *zap.Logger) DispatchRepositoryInterface {
	return &DispatchRepository{storage: storage, logger: logger}
}

const dispatchColumns = `id, order_id, driver_id, ops_status, delayed, assigned_by, assigned_at, updated_at`

func scanAssignment(row pgx.Row) (*entities.DispatchAssignment, error) {
	var a entities.DispatchAssignment
	err := row.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.OpsStatus, &a.Delayed, &a.AssignedBy, &a.AssignedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan dispatch assignment: %w", err)
	}
	return &a, nil
}

func (r *DispatchRepository) FindByOrder(ctx context.Context, q Querier, orderID uint64) (*entities.DispatchAssignment, error) {
	if q == nil {
		q = r.storage
	}
	row := q.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatch_assignments WHERE order_id = $1`, orderID)
	return scanAssignment(row)
}

// GetForUpdate locks the assignment row. Two concurrent claims against the
// same order serialize here.
func (r *DispatchRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, orderID uint64) (*entities.DispatchAssignment, error) {
	row := tx.QueryRow(ctx, `SELECT `+dispatchColumns+` FROM dispatch_assignments WHERE order_id = $1 FOR UPDATE`, orderID)
	return scanAssignment(row)
}

// EnsureForUpdate lazily creates the assignment row on first touch, then
// returns it locked. ON CONFLICT DO NOTHING keeps a concurrent first touch
// from erroring; both racers end up locking the same row.
func (r *DispatchRepository) EnsureForUpdate(ctx context.Context, tx pgx.Tx, orderID uint64) (*entities.DispatchAssignment, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO dispatch_assignments (order_id, ops_status, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, entities.OpsUnassigned)
	if err != nil {
		return nil, fmt.Errorf("failed to seed dispatch assignment: %w", err)
	}
	return r.GetForUpdate(ctx, tx, orderID)
}

func (r *DispatchRepository) AssignInTx(ctx context.Context, tx pgx.Tx, orderID, driverID, assignedBy uint64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE dispatch_assignments
		SET driver_id = $1, ops_status = $2, assigned_by = $3, assigned_at = NOW(), updated_at = NOW()
		WHERE order_id = $4`,
		driverID, entities.OpsAssigned, assignedBy, orderID)
	if err != nil {
		return fmt.Errorf("failed to assign driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ReleaseInTx is driver-scoped: the WHERE clause matches both the order and
// the current driver, so a stale release cannot evict a different driver who
// has since re-claimed the order.
func (r *DispatchRepository) ReleaseInTx(ctx context.Context, tx pgx.Tx, orderID, driverID uint64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE dispatch_assignments
		SET driver_id = NULL, ops_status = $1, delayed = FALSE, assigned_by = NULL, assigned_at = NULL, updated_at = NOW()
		WHERE order_id = $2 AND driver_id = $3 AND ops_status <> $4`,
		entities.OpsUnassigned, orderID, driverID, entities.OpsCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to release driver: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceInTx moves the pipeline one step with a compare-and-set on both the
// owning driver and the expected current state.
func (r *DispatchRepository) AdvanceInTx(ctx context.Context, tx pgx.Tx, orderID, driverID uint64, from, to entities.OpsStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE dispatch_assignments
		SET ops_status = $1, updated_at = NOW()
		WHERE order_id = $2 AND driver_id = $3 AND ops_status = $4`,
		to, orderID, driverID, from)
	if err != nil {
		return false, fmt.Errorf("failed to advance dispatch status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DispatchRepository) SetDelayedInTx(ctx context.Context, tx pgx.Tx, orderID uint64, delayed bool) error {
	tag, err := tx.Exec(ctx, `
		UPDATE dispatch_assignments SET delayed = $1, updated_at = NOW() WHERE order_id = $2`,
		delayed, orderID)
	if err != nil {
		return fmt.Errorf("failed to set delayed flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *DispatchRepository) InsertDelayReport(ctx context.Context, q Querier, report entities.DelayReport) error {
	if q == nil {
		q = r.storage
	}
	_, err := q.Exec(ctx, `
		INSERT INTO delay_reports (order_id, driver_id, delay_code, note, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		report.OrderID, report.DriverID, report.DelayCode, report.Note)
	if err != nil {
		return fmt.Errorf("failed to insert delay report: %w", err)
	}
	return nil
}

func (r *DispatchRepository) ArchiveInTx(ctx context.Context, tx pgx.Tx, archive entities.DeliveryArchive) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO delivery_archives (order_id, driver_id, hub_id, city_id, total, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		archive.OrderID, archive.DriverID, archive.HubID, archive.CityID, archive.Total, archive.DeliveredAt)
	if err != nil {
		return fmt.Errorf("failed to insert delivery archive: %w", err)
	}
	return nil
}

func (r *DispatchRepository) IsArchived(ctx context.Context, q Querier, orderID uint64) (bool, error) {
	if q == nil {
		q = r.storage
	}
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_archives WHERE order_id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery archive: %w", err)
	}
	return exists, nil
}
