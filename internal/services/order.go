package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/repositories"
	"delivery-system/pkg/config"
	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/types"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, identity authz.Identity, data dto.CreateOrderDTO) (*dto.CreateOrderResultDTO, error)
	FindOrder(ctx context.Context, identity authz.Identity, id uint64) (*dto.OrderDTO, error)
	GetOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.OrderDTO, uint64, error)
	GetStatusHistory(ctx context.Context, identity authz.Identity, orderID uint64) ([]dto.StatusHistoryDTO, error)
	ChangeStatus(ctx context.Context, identity authz.Identity, orderID uint64, target entities.OrderStatus) (*dto.OrderDTO, error)
	ConfirmPayment(ctx context.Context, identity authz.Identity, orderID uint64, outcome string) (*dto.OrderDTO, error)
}

type OrderService struct {
	pool        *pgxpool.Pool
	orderRepo   repositories.OrderRepositoryInterface
	cartRepo    repositories.CartRepositoryInterface
	hubRepo     repositories.HubRepositoryInterface
	userRepo    repositories.UserRepositoryInterface
	historyRepo repositories.OrderHistoryRepositoryInterface
	resolver    *authz.Resolver
	cfg         config.OrderConfig
	logger      *zap.Logger
}

func NewOrderService(
	pool *pgxpool.Pool,
	orderRepo repositories.OrderRepositoryInterface,
	cartRepo repositories.CartRepositoryInterface,
	hubRepo repositories.HubRepositoryInterface,
	userRepo repositories.UserRepositoryInterface,
	historyRepo repositories.OrderHistoryRepositoryInterface,
	resolver *authz.Resolver,
	cfg config.OrderConfig,
	logger *zap.Logger,
) OrderServiceInterface {
	return &OrderService{
		pool:        pool,
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		hubRepo:     hubRepo,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		resolver:    resolver,
		cfg:         cfg,
		logger:      logger,
	}
}

// moneyEqual compares two money figures within the configured tolerance.
func moneyEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func cartSubtotal(items []entities.CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.LineTotal
	}
	return sum
}

// validateSnapshot checks the pricing snapshot for internal consistency
// against the independently recomputed cart subtotal. Any divergence fails
// closed: a stale quote is rejected, never averaged or auto-corrected.
func validateSnapshot(snap dto.PricingSnapshot, items []entities.CartItem, fulfillment entities.FulfillmentType, tolerance float64) error {
	if !moneyEqual(cartSubtotal(items), snap.Subtotal, tolerance) {
		return apperrors.Conflict(apperrors.CodeSubtotalMismatch,
			"cart subtotal does not match the price quote; request a fresh quote and retry", nil)
	}
	if snap.Total <= 0 {
		return apperrors.Validation(apperrors.CodeInvalidTotal, "order total must be positive")
	}

	expectedTotal := snap.Subtotal + snap.TaxAmount + snap.DeliveryFee + snap.SoftwareFee + snap.Tip - snap.Discount
	if !moneyEqual(expectedTotal, snap.Total, tolerance) {
		return apperrors.Conflict(apperrors.CodeSnapshotInconsistent,
			"price quote components do not add up; request a fresh quote and retry", nil)
	}

	if fulfillment == entities.FulfillmentDelivery {
		if snap.Delivery == nil || snap.Delivery.Address == "" {
			return apperrors.Validation(apperrors.CodeDeliverySnapMissing,
				"delivery orders require a delivery section with address and coordinates")
		}
		if snap.Delivery.Latitude == 0 && snap.Delivery.Longitude == 0 {
			return apperrors.Validation(apperrors.CodeDeliverySnapMissing,
				"delivery orders require delivery coordinates")
		}
		// The fee must agree at every location it appears in the payload.
		if !moneyEqual(snap.Delivery.Fee, snap.DeliveryFee, tolerance) {
			return apperrors.Conflict(apperrors.CodeDeliveryFeeMismatch,
				"delivery fee differs between snapshot sections; request a fresh quote and retry", nil)
		}
	}
	return nil
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func (s *OrderService) CreateOrder(ctx context.Context, identity authz.Identity, data dto.CreateOrderDTO) (*dto.CreateOrderResultDTO, error) {
	// Idempotency is evaluated first and independently of the cart state: a
	// retried checkout whose first attempt already converted the cart must
	// still find its order.
	windowStart := time.Now().Add(-s.cfg.IdempotencyWindow)
	existing, err := s.orderRepo.FindLiveBySession(ctx, nil, data.SessionToken, data.HubID, identity.UserID, windowStart)
	if err == nil {
		return &dto.CreateOrderResultDTO{
			ID:            existing.ID,
			OrderNumber:   existing.OrderNumber,
			Status:        string(existing.Status),
			AlreadyExists: true,
		}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Internal("failed to check for duplicate order", err)
	}

	fulfillment := entities.FulfillmentType(data.FulfillmentType)
	if !fulfillment.IsValid() {
		return nil, apperrors.Validation(apperrors.CodeInvalidFulfillment,
			"fulfillment_type must be either delivery or pickup")
	}

	customer, err := s.userRepo.FindUser(ctx, identity.UserID)
	if err != nil {
		return nil, apperrors.Internal("failed to load customer profile", err)
	}
	if !customer.ProfileComplete() {
		return nil, apperrors.NewHttpError(http.StatusConflict, apperrors.CodeProfileIncomplete,
			"customer profile is missing required fields", nil, nil)
	}

	hub, err := s.hubRepo.FindHub(ctx, data.HubID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Conflict(apperrors.CodeHubNotFound, "hub does not exist", nil)
		}
		return nil, apperrors.Internal("failed to load hub", err)
	}
	if !hub.IsActive {
		return nil, apperrors.Conflict(apperrors.CodeHubInactive, "hub is not operationally active", nil)
	}
	if !hub.AcceptingOrders {
		return nil, apperrors.Conflict(apperrors.CodeHubNotAccepting, "hub is not accepting orders right now", nil)
	}

	cart, err := s.cartRepo.FindBySessionToken(ctx, nil, data.SessionToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Conflict(apperrors.CodeCartNotFound, "no cart found for this session", nil)
		}
		return nil, apperrors.Internal("failed to load cart", err)
	}
	if cart.CustomerID != identity.UserID {
		return nil, apperrors.NewHttpError(http.StatusForbidden, apperrors.CodeCartNotOwned,
			"cart does not belong to the caller", nil, nil)
	}
	if cart.Status != entities.CartActive {
		return nil, apperrors.Conflict(apperrors.CodeCartAlreadyConverted, "cart has already been converted", nil)
	}

	items, err := s.cartRepo.GetItems(ctx, nil, cart.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to load cart items", err)
	}
	if len(items) == 0 {
		return nil, apperrors.Conflict(apperrors.CodeCartEmpty, "cart has no items", nil)
	}

	if err := validateSnapshot(data.Snapshot, items, fulfillment, s.cfg.MoneyTolerance); err != nil {
		return nil, err
	}

	snapshotBlob, err := json.Marshal(data.Snapshot)
	if err != nil {
		return nil, apperrors.Internal("failed to freeze pricing snapshot", err)
	}
	cartBlob, err := json.Marshal(struct {
		Cart  *entities.Cart      `json:"cart"`
		Items []entities.CartItem `json:"items"`
	}{cart, items})
	if err != nil {
		return nil, apperrors.Internal("failed to freeze cart snapshot", err)
	}

	order := &entities.Order{
		OrderNumber:     newOrderNumber(),
		HubID:           hub.ID,
		CityID:          hub.CityID,
		CustomerID:      identity.UserID,
		SessionToken:    data.SessionToken,
		FulfillmentType: fulfillment,
		Subtotal:        data.Snapshot.Subtotal,
		TaxRate:         data.Snapshot.TaxRate,
		TaxAmount:       data.Snapshot.TaxAmount,
		DeliveryFee:     data.Snapshot.DeliveryFee,
		SoftwareFee:     data.Snapshot.SoftwareFee,
		Tip:             data.Snapshot.Tip,
		Discount:        data.Snapshot.Discount,
		Total:           data.Snapshot.Total,
		Currency:        data.Snapshot.Currency,
		PricingSnapshot: snapshotBlob,
		CartSnapshot:    cartBlob,
		// The platform supports exactly one processor; client input is
		// never persisted here.
		PaymentMethod: entities.PaymentMethodCardpay,
		PaymentStatus: entities.PaymentPending,
		Status:        entities.StatusPendingPayment,
	}

	result := &dto.CreateOrderResultDTO{}
	err = repositories.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the cart row, then re-run the checks that guard the writes.
		// Concurrent checkouts for the same cart serialize here and the
		// loser sees either the converted cart or the winner's live order.
		lockedCart, err := s.cartRepo.FindBySessionTokenForUpdate(ctx, tx, data.SessionToken)
		if err != nil {
			return fmt.Errorf("failed to lock cart: %w", err)
		}

		dup, err := s.orderRepo.FindLiveBySession(ctx, tx, data.SessionToken, data.HubID, identity.UserID, windowStart)
		if err == nil {
			result.ID = dup.ID
			result.OrderNumber = dup.OrderNumber
			result.Status = string(dup.Status)
			result.AlreadyExists = true
			return nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		if lockedCart.Status != entities.CartActive {
			return apperrors.Conflict(apperrors.CodeCartAlreadyConverted, "cart has already been converted", nil)
		}

		orderID, err := s.orderRepo.CreateOrderInTx(ctx, tx, order)
		if err != nil {
			return err
		}

		orderItems := make([]entities.OrderItem, 0, len(items))
		for _, it := range items {
			orderItems = append(orderItems, entities.OrderItem{
				ProductName: it.ProductName,
				UnitPrice:   it.UnitPrice,
				Quantity:    it.Quantity,
				LineTotal:   it.LineTotal,
			})
		}
		if err := s.orderRepo.InsertItemsInTx(ctx, tx, orderID, orderItems); err != nil {
			return err
		}
		if err := s.historyRepo.InsertInTx(ctx, tx, orderID, entities.StatusPendingPayment, identity.UserID); err != nil {
			return err
		}
		if err := s.cartRepo.MarkConverted(ctx, tx, lockedCart.ID); err != nil {
			return err
		}

		result.ID = orderID
		result.OrderNumber = order.OrderNumber
		result.Status = string(entities.StatusPendingPayment)
		return nil
	})
	if err != nil {
		var httpErr *apperrors.HttpError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		s.logger.Error("order creation transaction failed", zap.Error(err),
			zap.Uint64("customerId", identity.UserID), zap.Uint64("hubId", data.HubID))
		return nil, apperrors.Internal("order could not be created", err)
	}

	return result, nil
}

func toOrderDTO(o *entities.Order, items []entities.OrderItem) *dto.OrderDTO {
	out := &dto.OrderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		HubID:           o.HubID,
		CityID:          o.CityID,
		CustomerID:      o.CustomerID,
		FulfillmentType: string(o.FulfillmentType),
		Subtotal:        o.Subtotal,
		TaxAmount:       o.TaxAmount,
		DeliveryFee:     o.DeliveryFee,
		SoftwareFee:     o.SoftwareFee,
		Tip:             o.Tip,
		Discount:        o.Discount,
		Total:           o.Total,
		Currency:        o.Currency,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   string(o.PaymentStatus),
		Status:          string(o.Status),
		DriverID:        o.DriverID,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range items {
		out.Items = append(out.Items, dto.OrderItemDTO{
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal,
		})
	}
	return out
}

// authorizeOrderRead applies the existence-hiding rules: customers and
// drivers outside the order get the same not-found a nonexistent order would
// produce; managers scoped out get forbidden.
func (s *OrderService) authorizeOrderRead(ctx context.Context, identity authz.Identity, order *entities.Order) error {
	switch identity.Role {
	case authz.RoleOperator:
		return nil
	case authz.RoleCustomer:
		if order.CustomerID != identity.UserID {
			return apperrors.ErrNotFound
		}
		return nil
	case authz.RoleDriver:
		if order.DriverID == nil || *order.DriverID != identity.UserID {
			return apperrors.ErrNotFound
		}
		return nil
	case authz.RoleManager:
		scope, err := s.resolver.Resolve(ctx, identity)
		if err != nil {
			return apperrors.Internal("failed to resolve manager scope", err)
		}
		if scope.IsEmpty() || !scope.AllowsOrder(order.HubID, order.CityID) {
			return apperrors.ErrForbidden
		}
		return nil
	default:
		return apperrors.ErrNotFound
	}
}

func (s *OrderService) FindOrder(ctx context.Context, identity authz.Identity, id uint64) (*dto.OrderDTO, error) {
	order, err := s.orderRepo.FindOrder(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrderRead(ctx, identity, order); err != nil {
		return nil, err
	}
	items, err := s.orderRepo.GetItems(ctx, nil, id)
	if err != nil {
		return nil, apperrors.Internal("failed to load order items", err)
	}
	return toOrderDTO(order, items), nil
}

func (s *OrderService) GetOrders(ctx context.Context, identity authz.Identity, filter types.Filter) ([]dto.OrderDTO, uint64, error) {
	var scope authz.ScopeSet
	var customerID *uint64

	switch identity.Role {
	case authz.RoleCustomer:
		id := identity.UserID
		customerID = &id
	case authz.RoleOperator:
		scope = authz.OperatorScope()
	case authz.RoleManager:
		var err error
		scope, err = s.resolver.Resolve(ctx, identity)
		if err != nil {
			return nil, 0, apperrors.Internal("failed to resolve manager scope", err)
		}
		if scope.IsEmpty() {
			return nil, 0, apperrors.ErrForbidden
		}
	default:
		return nil, 0, apperrors.ErrForbidden
	}

	orders, total, err := s.orderRepo.GetOrders(ctx, filter, scope, customerID)
	if err != nil {
		return nil, 0, apperrors.Internal("failed to list orders", err)
	}

	out := make([]dto.OrderDTO, 0, len(orders))
	for i := range orders {
		out = append(out, *toOrderDTO(&orders[i], nil))
	}
	return out, total, nil
}

func (s *OrderService) GetStatusHistory(ctx context.Context, identity authz.Identity, orderID uint64) ([]dto.StatusHistoryDTO, error) {
	order, err := s.orderRepo.FindOrder(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrderRead(ctx, identity, order); err != nil {
		return nil, err
	}
	history, err := s.historyRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperrors.Internal("failed to load status history", err)
	}
	out := make([]dto.StatusHistoryDTO, 0, len(history))
	for _, h := range history {
		out = append(out, dto.StatusHistoryDTO{
			Status:    string(h.Status),
			ChangedBy: h.ChangedBy,
			CreatedAt: h.CreatedAt,
		})
	}
	return out, nil
}
