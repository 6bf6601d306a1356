package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/services"
	apperrors "delivery-system/pkg/errors"
	"delivery-system/pkg/utils"
)

// DriverController is the courier-facing surface: the pickup feed, the
// claim/release pair, pipeline advancement and delay reporting.
type DriverController struct {
	dispatchService services.DispatchServiceInterface
	listingService  services.ListingServiceInterface
	availability    services.AvailabilityServiceInterface
	logger          *zap.Logger
}

func NewDriverController(
	dispatchService services.DispatchServiceInterface,
	listingService services.ListingServiceInterface,
	availability services.AvailabilityServiceInterface,
	logger *zap.Logger,
) *DriverController {
	return &DriverController{
		dispatchService: dispatchService,
		listingService:  listingService,
		availability:    availability,
		logger:          logger,
	}
}

func (c *DriverController) AvailableOrders(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	filter := utils.ParseFilterFromQuery(ctx.Request().URL.Query())

	res, total, err := c.listingService.AvailableOrders(reqCtx, identity, filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "available orders fetched", http.StatusOK, buildPagination(total, filter))
}

func conflictAlreadyAssigned(res *dto.ClaimResultDTO) *apperrors.HttpError {
	return apperrors.Conflict(apperrors.CodeAlreadyAssigned,
		"order is already assigned to another driver", res)
}

// ClaimOrder answers 200 for a win (or an idempotent retry by the holder)
// and 409 ALREADY_ASSIGNED when another driver holds the order.
func (c *DriverController) ClaimOrder(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.dispatchService.Claim(reqCtx, identity, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if res.AlreadyAssigned {
		return utils.ErrorResponse(ctx, conflictAlreadyAssigned(res), c.logger)
	}
	return utils.SuccessResponse(ctx, res, "order claimed", http.StatusOK)
}

func (c *DriverController) ReleaseOrder(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.dispatchService.Release(reqCtx, identity, id); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, nil, "order released", http.StatusOK)
}

func (c *DriverController) UpdateOpsStatus(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.UpdateOpsStatusDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"), c.logger)
	}
	payload.OrderID = id
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.dispatchService.UpdateStatus(reqCtx, identity, id, entities.OpsStatus(payload.Status))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "delivery status updated", http.StatusOK)
}

func (c *DriverController) CompleteOrder(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	res, err := c.dispatchService.Complete(reqCtx, identity, id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if res.AlreadyCompleted {
		return utils.SuccessResponse(ctx, res, "delivery was already completed", http.StatusOK)
	}
	return utils.SuccessResponse(ctx, res, "delivery completed", http.StatusOK)
}

func (c *DriverController) ReportDelay(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.ReportDelayDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"), c.logger)
	}
	payload.OrderID = id
	if err := ctx.Validate(&payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.dispatchService.ReportDelay(reqCtx, identity, payload); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, nil, "delay reported", http.StatusOK)
}

// SetDuty flips the caller's own availability flag.
func (c *DriverController) SetDuty(ctx echo.Context) error {
	var payload struct {
		OnDuty bool `json:"on_duty"`
	}
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"), c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.availability.SetOnDuty(reqCtx, identity.UserID, payload.OnDuty); err != nil {
		c.logger.Error("failed to set duty flag", zap.Error(err), zap.Uint64("driverId", identity.UserID))
		return utils.ErrorResponse(ctx, apperrors.Internal("failed to update duty flag", err), c.logger)
	}
	return utils.SuccessResponse(ctx, map[string]bool{"on_duty": payload.OnDuty}, "duty flag updated", http.StatusOK)
}
