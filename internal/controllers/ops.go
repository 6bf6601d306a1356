package controllers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"delivery-system/internal/dto"
	"delivery-system/internal/entities"
	"delivery-system/internal/services"
	"delivery-system/pkg/utils"
)

// OpsController is the manager/operator surface: the live board, manual
// driver assignment and the delivery report export.
type OpsController struct {
	dispatchService services.DispatchServiceInterface
	listingService  services.ListingServiceInterface
	reportService   services.ReportServiceInterface
	logger          *zap.Logger
}

func NewOpsController(
	dispatchService services.DispatchServiceInterface,
	listingService services.ListingServiceInterface,
	reportService services.ReportServiceInterface,
	logger *zap.Logger,
) *OpsController {
	return &OpsController{
		dispatchService: dispatchService,
		listingService:  listingService,
		reportService:   reportService,
		logger:          logger,
	}
}

func (c *OpsController) LiveOrders(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	filter := utils.ParseFilterFromQuery(ctx.Request().URL.Query())

	res, total, err := c.listingService.LiveOrders(reqCtx, identity, filter)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, res, "live orders fetched", http.StatusOK, buildPagination(total, filter))
}

func (c *OpsController) AssignDriver(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	var payload dto.AssignDriverDTO
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

	res, err := c.dispatchService.Assign(reqCtx, identity, id, payload.DriverID)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if res.AlreadyAssigned {
		return utils.ErrorResponse(ctx, conflictAlreadyAssigned(res), c.logger)
	}
	return utils.SuccessResponse(ctx, res, "driver assigned", http.StatusOK)
}

func (c *OpsController) UnassignDriver(ctx echo.Context) error {
	id, err := parseIDParam(ctx, "id")
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	if err := c.dispatchService.Unassign(reqCtx, identity, id); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, nil, "driver unassigned", http.StatusOK)
}

func (c *OpsController) UpdateOpsStatus(ctx echo.Context) error {
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

// DeliveryReport streams the completed-deliveries sheet for the requested
// period (?from=2026-08-01&to=2026-08-31, default: the last 30 days).
func (c *OpsController) DeliveryReport(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	identity, err := utils.GetIdentityFromCtx(reqCtx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := ctx.QueryParam("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "invalid 'from' date, expected YYYY-MM-DD"), c.logger)
		}
		from = parsed
	}
	if v := ctx.QueryParam("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return utils.ErrorResponse(ctx, echo.NewHTTPError(http.StatusBadRequest, "invalid 'to' date, expected YYYY-MM-DD"), c.logger)
		}
		// Include the whole last day.
		to = parsed.AddDate(0, 0, 1)
	}

	file, err := c.reportService.ExportDeliveries(reqCtx, identity, from, to)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}

	filename := "deliveries_" + time.Now().Format("2006-01-02") + ".xlsx"
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	ctx.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Response().WriteHeader(http.StatusOK)
	if err := file.Write(ctx.Response().Writer); err != nil {
		c.logger.Error("failed to stream delivery report", zap.Error(err))
		return err
	}
	return nil
}
