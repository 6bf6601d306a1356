package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/repositories"
	"delivery-system/pkg/config"
	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/types"
)

// liveStatuses is what the ops board shows; claimableStatuses is the subset a
// driver can pick up (payment settled, not yet handed over).
var (
	liveStatuses = []entities.OrderStatus{
		entities.StatusConfirmed,
		entities.StatusPreparing,
		entities.StatusReady,
		entities.StatusOutForDelivery,
	}
	claimableStatuses = []entities.OrderStatus{
		entities.StatusConfirmed,
		entities.StatusPreparing,
		entities.StatusReady,
	}
)

type ListingServiceInterface interface {
	LiveOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.DispatchOrderDTO, uint64, error)
	AvailableOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.DispatchOrderDTO, uint64, error)
}

type ListingService struct {
	listingRepo repositories.ListingRepositoryInterface
	resolver    *authz.Resolver
	cfg         config.OrderConfig
	logger      *zap.Logger
}

func NewListingService(
	listingRepo repositories.ListingRepositoryInterface,
	resolver *authz.Resolver,
	cfg config.OrderConfig,
	logger *zap.Logger,
) ListingServiceInterface {
	return &ListingService{listingRepo: listingRepo, resolver: resolver, cfg: cfg, logger: logger}
}

// LiveOrders is the ops board: every non-archived order in an active status
// inside the caller's scope and the trailing listing window, regardless of
// driver.
func (s *ListingService) LiveOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.DispatchOrderDTO, uint64, error) {
	if !identity.IsOperator() && !identity.IsManager() {
		return nil, 0, apperrors.ErrForbidden
	}
	scope, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to resolve scope", err)
	}
	if scope.IsEmpty() {
		return nil, 0, apperrors.ErrForbidden
	}

	orders, total, err := s.listingRepo.ListDispatchOrders(ctx, repositories.DispatchListParams{
		Scope:    scope,
		Statuses: liveStatuses,
		Since:    time.Now().Add(-s.cfg.ListingWindow),
		Filter:   filter,
	})
	if err != nil {
		s.logger.Error("live orders listing failed", zap.Error(err), zap.Uint64("userId", identity.UserID))
		return nil, 0, apperrors.Internal("failed to list live orders", err)
	}
	return orders, total, nil
}

// AvailableOrders is the driver pickup feed: unclaimed recent orders inside
// the driver's hub/city scope. A driver with no scope rows sees an empty
// world, never everyone's orders.
func (s *ListingService) AvailableOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.DispatchOrderDTO, uint64, error) {
	if !identity.IsDriver() {
		return nil, 0, apperrors.ErrForbidden
	}
	scope, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to resolve driver scope", err)
	}
	if scope.IsEmpty() {
		return []dto.DispatchOrderDTO{}, 0, nil
	}

	orders, total, err := s.listingRepo.ListDispatchOrders(ctx, repositories.DispatchListParams{
		Scope:         scope,
		Statuses:      claimableStatuses,
		Since:         time.Now().Add(-s.cfg.ListingWindow),
		UnclaimedOnly: true,
		Filter:        filter,
	})
	if err != nil {
		s.logger.Error("available orders listing failed", zap.Error(err), zap.Uint64("driverId", identity.UserID))
		return nil, 0, apperrors.Internal("failed to list available orders", err)
	}
	return orders, total, nil
}
