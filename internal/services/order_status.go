package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/repositories"
	apperrors "delivery-system/pkg/errors"
)

// ChangeStatus applies one validated order-status transition. Only operators
// and hub-scoped managers may drive this set; customers and drivers receive
// the same not-found a nonexistent order would produce.
func (s *OrderService) ChangeStatus(ctx context.Context, identity authz.Identity, orderID uint64, target entities.OrderStatus) (*dto.OrderDTO, error) {
	if !identity.IsOperator() && !identity.IsManager() {
		return nil, apperrors.ErrNotFound
	}
	if !target.IsValid() {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			fmt.Sprintf("unknown order status %q", target))
	}

	var scope authz.ScopeSet
	if identity.IsOperator() {
		scope = authz.OperatorScope()
	} else {
		var err error
		scope, err = s.resolver.Resolve(ctx, identity)
		if err != nil {
			return nil, apperrors.Internal("failed to resolve manager scope", err)
		}
	}

	var updated *entities.Order
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// All transition decisions are made on the locked row.
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if scope.IsEmpty() || !scope.AllowsOrder(order.HubID, order.CityID) {
			return apperrors.ErrForbidden
		}
		if err := checkTransition(order.Status, target); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatusInTx(ctx, tx, orderID, target); err != nil {
			return err
		}
		if err := s.historyRepo.InsertInTx(ctx, tx, orderID, target, identity.UserID); err != nil {
			return err
		}
		order.Status = target
		updated = order
		return nil
	})
	if err != nil {
		var httpErr *apperrors.HttpError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrForbidden) {
			return nil, err
		}
		s.logger.Error("status transition failed", zap.Error(err), zap.Uint64("orderId", orderID))
		return nil, apperrors.Internal("status transition failed", err)
	}

	return toOrderDTO(updated, nil), nil
}

// checkTransition enforces the §4.2 rules: same-status requests are an
// explicit conflict, terminal states reject everything, and an out-of-order
// jump names the allowed next states.
func checkTransition(current, target entities.OrderStatus) error {
	if current == target {
		return apperrors.Conflict(apperrors.CodeSameStatus,
			fmt.Sprintf("order is already %s", current), nil)
	}
	if current.IsTerminal() {
		return apperrors.Conflict(apperrors.CodeTerminalStatus,
			fmt.Sprintf("order is in terminal status %s", current), nil)
	}
	if !entities.CanTransition(current, target) {
		allowed := entities.AllowedNextStatuses(current)
		names := make([]string, 0, len(allowed))
		for _, s := range allowed {
			names = append(names, string(s))
		}
		return apperrors.NewHttpError(400, apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", current, target), nil,
			map[string]interface{}{"allowed": names})
	}
	return nil
}

// ConfirmPayment models the payment-processor callback: it flips the payment
// status and drives the matching pending_payment transition through the same
// state machine as every other change.
func (s *OrderService) ConfirmPayment(ctx context.Context, identity authz.Identity, orderID uint64, outcome string) (*dto.OrderDTO, error) {
	if !identity.IsOperator() {
		return nil, apperrors.ErrNotFound
	}

	var paymentStatus entities.PaymentStatus
	var target entities.OrderStatus
	switch outcome {
	case "paid":
		paymentStatus, target = entities.PaymentPaid, entities.StatusConfirmed
	case "failed":
		paymentStatus, target = entities.PaymentFailed, entities.StatusPaymentFailed
	default:
		return nil, apperrors.Validation(apperrors.CodeValidationFailed,
			"payment outcome must be paid or failed")
	}

	var updated *entities.Order
	err := repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		order, err := s.orderRepo.FindOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, target); err != nil {
			return err
		}
		if err := s.orderRepo.SetPaymentStatusInTx(ctx, tx, orderID, paymentStatus); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatusInTx(ctx, tx, orderID, target); err != nil {
			return err
		}
		if err := s.historyRepo.InsertInTx(ctx, tx, orderID, target, identity.UserID); err != nil {
			return err
		}
		order.Status = target
		order.PaymentStatus = paymentStatus
		updated = order
		return nil
	})
	if err != nil {
		var httpErr *apperrors.HttpError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("payment confirmation failed", zap.Error(err), zap.Uint64("orderId", orderID))
		return nil, apperrors.Internal("payment confirmation failed", err)
	}

	return toOrderDTO(updated, nil), nil
}
