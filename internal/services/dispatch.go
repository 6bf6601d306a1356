package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/repositories"
	apperrors "delivery-system/pkg/errors"
)

type DispatchServiceInterface interface {
	Claim(ctx context.Context, identity authz.Identity, orderID uint64) (*dto.ClaimResultDTO, error)
	Assign(ctx context.Context, identity authz.Identity, orderID, driverID uint64) (*dto.ClaimResultDTO, error)
	Release(ctx context.Context, identity authz.Identity, orderID uint64) error
	Unassign(ctx context.Context, identity authz.Identity, orderID uint64) error
	UpdateStatus(ctx context.Context, identity authz.Identity, orderID uint64, target entities.OpsStatus) (*dto.ClaimResultDTO, error)
	Complete(ctx context.Context, identity authz.Identity, orderID uint64) (*dto.CompleteResultDTO, error)
	ReportDelay(ctx context.Context, identity authz.Identity, data dto.ReportDelayDTO) error
}

// DispatchService owns the driver-ops pipeline. The dispatch assignment row
// is the single point of truth for who holds a delivery; the order's own
// driver column is only ever written here, in the same transaction.
type DispatchService struct {
	pool         *pgxpool.Pool
	dispatchRepo repositories.DispatchRepositoryInterface
	orderRepo    repositories.OrderRepositoryInterface
	historyRepo  repositories.OrderHistoryRepositoryInterface
	userRepo     repositories.UserRepositoryInterface
	resolver     *authz.Resolver
	availability AvailabilityServiceInterface
	logger       *zap.Logger
}

func NewDispatchService(
	pool *pgxpool.Pool,
	dispatchRepo repositories.DispatchRepositoryInterface,
	orderRepo repositories.OrderRepositoryInterface,
	historyRepo repositories.OrderHistoryRepositoryInterface,
	userRepo repositories.UserRepositoryInterface,
	resolver *authz.Resolver,
	availability AvailabilityServiceInterface,
	logger *zap.Logger,
) DispatchServiceInterface {
	return &DispatchService{
		pool:         pool,
		dispatchRepo: dispatchRepo,
		orderRepo:    orderRepo,
		historyRepo:  historyRepo,
		userRepo:     userRepo,
		resolver:     resolver,
		availability: availability,
		logger:       logger,
	}
}

func (s *DispatchService) actingScope(ctx context.Context, identity authz.Identity) (authz.ScopeSet, error) {
	scope, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return authz.ScopeSet{}, apperrors.Internal("failed to resolve scope", err)
	}
	return scope, nil
}

func (s *DispatchService) requireOnDuty(ctx context.Context, driverID uint64) error {
	on, err := s.availability.IsOnDuty(ctx, driverID)
	if err != nil {
		// The availability signal is required; when it cannot be read the
		// operation is rejected rather than silently waved through.
		return apperrors.NewHttpError(http.StatusServiceUnavailable, apperrors.CodeCollaboratorDown,
			"driver availability signal is unavailable", err, nil)
	}
	if !on {
		return apperrors.Conflict(apperrors.CodeDriverUnavailable, "driver is not on duty", nil)
	}
	return nil
}

// claimInTx is the shared race-safe core of Claim and Assign. It runs with
// the order row already locked; it locks (and lazily seeds) the assignment
// row, so two concurrent claims serialize and exactly one wins.
func (s *DispatchService) claimInTx(ctx context.Context, tx pgx.Tx, order *entities.Order, driverID, assignedBy uint64) (*dto.ClaimResultDTO, error) {
	archived, err := s.dispatchRepo.IsArchived(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if archived {
		return nil, apperrors.Conflict(apperrors.CodeOrderArchived, "order has been archived", nil)
	}

	assignment, err := s.dispatchRepo.EnsureForUpdate(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if assignment.OpsStatus.IsTerminal() {
		return nil, apperrors.Conflict(apperrors.CodeAlreadyCompleted, "delivery is already completed", nil)
	}

	if assignment.DriverID != nil {
		if *assignment.DriverID == driverID {
			// Idempotent retry by the owning driver.
			return &dto.ClaimResultDTO{
				OrderID:   order.ID,
				Assigned:  true,
				OpsStatus: string(assignment.OpsStatus),
			}, nil
		}
		return &dto.ClaimResultDTO{
			OrderID:         order.ID,
			AlreadyAssigned: true,
			HeldBy:          assignment.DriverID,
			OpsStatus:       string(assignment.OpsStatus),
		}, nil
	}

	if err := s.dispatchRepo.AssignInTx(ctx, tx, order.ID, driverID, assignedBy); err != nil {
		return nil, err
	}
	if err := s.orderRepo.SetDriverInTx(ctx, tx, order.ID, &driverID); err != nil {
		return nil, err
	}
	return &dto.ClaimResultDTO{
		OrderID:   order.ID,
		Assigned:  true,
		OpsStatus: string(entities.OpsAssigned),
	}, nil
}

func (s *DispatchService) Claim(ctx context.Context, identity authz.Identity, orderID uint64) (*dto.ClaimResultDTO, error) {
	scope, err := s.actingScope(ctx, identity)
	if err != nil {
		return nil, err
	}
	if scope.IsEmpty() {
		return nil, apperrors.ErrNotFound
	}
	if err := s.requireOnDuty(ctx, identity.UserID); err != nil {
		return nil, err
	}

	var result *dto.ClaimResultDTO
	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !scope.AllowsOrder(order.HubID, order.CityID) {
			// Same response a nonexistent order would produce.
			return apperrors.ErrNotFound
		}
		if order.Status.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeTerminalStatus,
				fmt.Sprintf("order is in terminal status %s", order.Status), nil)
		}
		result, err = s.claimInTx(ctx, tx, order, identity.UserID, identity.UserID)
		return err
	})
	if err != nil {
		return nil, s.wrapDispatchErr(err, "claim", orderID)
	}
	return result, nil
}

func (s *DispatchService) Assign(ctx context.Context, identity authz.Identity, orderID, driverID uint64) (*dto.ClaimResultDTO, error) {
	scope, err := s.actingScope(ctx, identity)
	if err != nil {
		return nil, err
	}
	if scope.IsEmpty() {
		return nil, apperrors.ErrForbidden
	}

	driver, err := s.userRepo.FindUser(ctx, driverID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validation(apperrors.CodeValidationFailed, "driver does not exist")
		}
		return nil, apperrors.Internal("failed to load driver", err)
	}
	if driver.Role != string(authz.RoleDriver) {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "target user is not a driver")
	}

	driverScope, err := s.resolver.Resolve(ctx, authz.Identity{UserID: driverID, Role: authz.RoleDriver})
	if err != nil {
		return nil, apperrors.Internal("failed to resolve driver scope", err)
	}
	if err := s.requireOnDuty(ctx, driverID); err != nil {
		return nil, err
	}

	var result *dto.ClaimResultDTO
	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !scope.AllowsOrder(order.HubID, order.CityID) {
			return apperrors.ErrForbidden
		}
		if driverScope.IsEmpty() || !driverScope.AllowsOrder(order.HubID, order.CityID) {
			return apperrors.Conflict(apperrors.CodeOutOfScope,
				"driver is not authorized for the order's hub or city", nil)
		}
		if order.Status.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeTerminalStatus,
				fmt.Sprintf("order is in terminal status %s", order.Status), nil)
		}
		result, err = s.claimInTx(ctx, tx, order, driverID, identity.UserID)
		return err
	})
	if err != nil {
		return nil, s.wrapDispatchErr(err, "assign", orderID)
	}
	return result, nil
}

func (s *DispatchService) Release(ctx context.Context, identity authz.Identity, orderID uint64) error {
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		assignment, err := s.dispatchRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if assignment.OpsStatus.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeAlreadyCompleted, "delivery is already completed", nil)
		}
		archived, err := s.dispatchRepo.IsArchived(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if archived {
			return apperrors.Conflict(apperrors.CodeOrderArchived, "order has been archived", nil)
		}

		// The driver-scoped update makes a stale release harmless: it only
		// matches while this driver still holds the row.
		released, err := s.dispatchRepo.ReleaseInTx(ctx, tx, orderID, identity.UserID)
		if err != nil {
			return err
		}
		if !released {
			return apperrors.Conflict(apperrors.CodeNotAssignedToYou,
				"order is not currently assigned to this driver", nil)
		}
		return s.orderRepo.SetDriverInTx(ctx, tx, orderID, nil)
	})
	return s.wrapDispatchErr(err, "release", orderID)
}

func (s *DispatchService) Unassign(ctx context.Context, identity authz.Identity, orderID uint64) error {
	scope, err := s.actingScope(ctx, identity)
	if err != nil {
		return err
	}
	if scope.IsEmpty() {
		return apperrors.ErrForbidden
	}

	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !scope.AllowsOrder(order.HubID, order.CityID) {
			return apperrors.ErrForbidden
		}

		assignment, err := s.dispatchRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				// Nothing to unassign; treat as a no-op.
				return nil
			}
			return err
		}
		if assignment.OpsStatus.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeAlreadyCompleted, "delivery is already completed", nil)
		}
		if assignment.DriverID == nil {
			return nil
		}
		released, err := s.dispatchRepo.ReleaseInTx(ctx, tx, orderID, *assignment.DriverID)
		if err != nil {
			return err
		}
		if !released {
			return apperrors.Conflict(apperrors.CodeNotAssignedToYou, "assignment changed concurrently", nil)
		}
		return s.orderRepo.SetDriverInTx(ctx, tx, orderID, nil)
	})
	return s.wrapDispatchErr(err, "unassign", orderID)
}

// UpdateStatus advances the pipeline one step. The caller must be the owning
// driver (driver surface) or a scoped operator/manager (ops surface), and
// the requested step must be the single legal successor of the current
// state; a mismatch fails closed instead of overwriting.
func (s *DispatchService) UpdateStatus(ctx context.Context, identity authz.Identity, orderID uint64, target entities.OpsStatus) (*dto.ClaimResultDTO, error) {
	if !target.IsValid() || target == entities.OpsUnassigned {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			fmt.Sprintf("unknown dispatch status %q", target))
	}
	if target == entities.OpsCompleted {
		// Completion has its own archival semantics.
		res, err := s.Complete(ctx, identity, orderID)
		if err != nil {
			return nil, err
		}
		if res.AlreadyCompleted {
			return nil, apperrors.Conflict(apperrors.CodeAlreadyCompleted, "delivery is already completed", nil)
		}
		return &dto.ClaimResultDTO{OrderID: orderID, Assigned: true, OpsStatus: string(entities.OpsCompleted)}, nil
	}

	var opsScope authz.ScopeSet
	if identity.IsManager() || identity.IsOperator() {
		var err error
		opsScope, err = s.actingScope(ctx, identity)
		if err != nil {
			return nil, err
		}
		if opsScope.IsEmpty() {
			return nil, apperrors.ErrForbidden
		}
	}

	var result *dto.ClaimResultDTO
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		assignment, err := s.dispatchRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if assignment.OpsStatus.IsTerminal() {
			return apperrors.Conflict(apperrors.CodeAlreadyCompleted, "delivery is already completed", nil)
		}
		if assignment.DriverID == nil {
			return apperrors.Conflict(apperrors.CodeInvalidOrderTransient, "order has no assigned driver", nil)
		}

		switch {
		case identity.IsDriver():
			if *assignment.DriverID != identity.UserID {
				return apperrors.Conflict(apperrors.CodeNotAssignedToYou,
					"order is not currently assigned to this driver", nil)
			}
		case identity.IsManager() || identity.IsOperator():
			if !opsScope.AllowsOrder(order.HubID, order.CityID) {
				return apperrors.ErrForbidden
			}
		default:
			return apperrors.ErrNotFound
		}

		if entities.NextOpsStatus(assignment.OpsStatus) != target {
			return apperrors.NewHttpError(http.StatusBadRequest, apperrors.CodeInvalidTransition,
				fmt.Sprintf("cannot move delivery from %s to %s", assignment.OpsStatus, target), nil,
				map[string]interface{}{"allowed": []string{string(entities.NextOpsStatus(assignment.OpsStatus))}})
		}

		ok, err := s.dispatchRepo.AdvanceInTx(ctx, tx, orderID, *assignment.DriverID, assignment.OpsStatus, target)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict(apperrors.CodeInvalidTransition, "assignment changed concurrently", nil)
		}
		result = &dto.ClaimResultDTO{OrderID: orderID, Assigned: true, OpsStatus: string(target)}
		return nil
	})
	if err != nil {
		return nil, s.wrapDispatchErr(err, "update-status", orderID)
	}
	return result, nil
}

// Complete reconciles both state machines: the pipeline reaches its terminal
// state, the order reaches its own, and the immutable archive row removes
// the order from every future availability query. Re-running completion on
// an archived order reports already_completed rather than failing.
func (s *DispatchService) Complete(ctx context.Context, identity authz.Identity, orderID uint64) (*dto.CompleteResultDTO, error) {
	var opsScope authz.ScopeSet
	if identity.IsManager() || identity.IsOperator() {
		var err error
		opsScope, err = s.actingScope(ctx, identity)
		if err != nil {
			return nil, err
		}
		if opsScope.IsEmpty() {
			return nil, apperrors.ErrForbidden
		}
	}

	result := &dto.CompleteResultDTO{OrderID: orderID}
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		archived, err := s.dispatchRepo.IsArchived(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if archived {
			result.AlreadyCompleted = true
			return nil
		}

		assignment, err := s.dispatchRepo.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if assignment.OpsStatus.IsTerminal() {
			result.AlreadyCompleted = true
			return nil
		}
		if assignment.DriverID == nil {
			return apperrors.Conflict(apperrors.CodeInvalidOrderTransient, "order has no assigned driver", nil)
		}

		switch {
		case identity.IsDriver():
			if *assignment.DriverID != identity.UserID {
				return apperrors.Conflict(apperrors.CodeNotAssignedToYou,
					"order is not currently assigned to this driver", nil)
			}
		case identity.IsManager() || identity.IsOperator():
			if !opsScope.AllowsOrder(order.HubID, order.CityID) {
				return apperrors.ErrForbidden
			}
		default:
			return apperrors.ErrNotFound
		}

		if assignment.OpsStatus != entities.OpsPickedUp {
			return apperrors.NewHttpError(http.StatusBadRequest, apperrors.CodeInvalidTransition,
				fmt.Sprintf("cannot complete delivery from %s", assignment.OpsStatus), nil,
				map[string]interface{}{"allowed": []string{string(entities.NextOpsStatus(assignment.OpsStatus))}})
		}

		ok, err := s.dispatchRepo.AdvanceInTx(ctx, tx, orderID, *assignment.DriverID, entities.OpsPickedUp, entities.OpsCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict(apperrors.CodeInvalidTransition, "assignment changed concurrently", nil)
		}

		if !order.Status.IsTerminal() {
			if err := s.orderRepo.UpdateStatusInTx(ctx, tx, orderID, entities.StatusCompleted); err != nil {
				return err
			}
			if err := s.historyRepo.InsertInTx(ctx, tx, orderID, entities.StatusCompleted, identity.UserID); err != nil {
				return err
			}
		}

		if err := s.dispatchRepo.ArchiveInTx(ctx, tx, entities.DeliveryArchive{
			OrderID:     orderID,
			DriverID:    *assignment.DriverID,
			HubID:       order.HubID,
			CityID:      order.CityID,
			Total:       order.Total,
			DeliveredAt: time.Now(),
		}); err != nil {
			return err
		}

		result.Completed = true
		return nil
	})
	if err != nil {
		return nil, s.wrapDispatchErr(err, "complete", orderID)
	}
	return result, nil
}

// ReportDelay appends a delay annotation and flips the informational delayed
// flag; the pipeline state itself never changes.
func (s *DispatchService) ReportDelay(ctx context.Context, identity authz.Identity, data dto.ReportDelayDTO) error {
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		assignment, err := s.dispatchRepo.GetForUpdate(ctx, tx, data.OrderID)
		if err != nil {
			return err
		}
		if assignment.DriverID == nil || *assignment.DriverID != identity.UserID {
			return apperrors.Conflict(apperrors.CodeNotAssignedToYou,
				"order is not currently assigned to this driver", nil)
		}
		if assignment.OpsStatus != entities.OpsAssigned && assignment.OpsStatus != entities.OpsPickedUp {
			return apperrors.Conflict(apperrors.CodeInvalidOrderTransient,
				fmt.Sprintf("cannot report a delay while the delivery is %s", assignment.OpsStatus), nil)
		}
		if err := s.dispatchRepo.SetDelayedInTx(ctx, tx, data.OrderID, true); err != nil {
			return err
		}
		return s.dispatchRepo.InsertDelayReport(ctx, tx, entities.DelayReport{
			OrderID:   data.OrderID,
			DriverID:  identity.UserID,
			DelayCode: data.DelayCode,
			Note:      data.Note,
		})
	})
	return s.wrapDispatchErr(err, "delay", data.OrderID)
}

func (s *DispatchService) wrapDispatchErr(err error, op string, orderID uint64) error {
	if err == nil {
		return nil
	}
	var httpErr *apperrors.HttpError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrForbidden) {
		return err
	}
	s.logger.Error("dispatch operation failed",
		zap.String("op", op), zap.Uint64("orderId", orderID), zap.Error(err))
	return apperrors.Internal("dispatch operation failed", err)
}
