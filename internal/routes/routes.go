package routes

import (
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/controllers"
	"delivery-system/internal/repositories"
	"delivery-system/internal/services"
	"delivery-system/pkg/config"
	"delivery-system/pkg/middleware"
	"delivery-system/pkg/service"
)

// InitRouter wires repositories, services and controllers onto the /api
// group. Every route past the auth middleware reads its actor from the
// request context.
func InitRouter(e *echo.Echo, dbConn *pgxpool.Pool, redisClient *redis.Client, jwtSvc service.JWTService, logger *zap.Logger, cfg *config.Config) {
	api := e.Group("/api")
	authMW := middleware.NewAuthMiddleware(jwtSvc, logger)

	// Repositories.
	userRepo := repositories.NewUserRepository(dbConn)
	hubRepo := repositories.NewHubRepository(dbConn)
	cartRepo := repositories.NewCartRepository(dbConn)
	orderRepo := repositories.NewOrderRepository(dbConn, logger)
	historyRepo := repositories.NewOrderHistoryRepository(dbConn, logger)
	dispatchRepo := repositories.NewDispatchRepository(dbConn, logger)
	listingRepo := repositories.NewListingRepository(dbConn)
	reportRepo := repositories.NewReportRepository(dbConn)
	scopeRepo := repositories.NewScopeRepository(dbConn)
	cacheRepo := repositories.NewRedisCacheRepository(redisClient)

	resolver := authz.NewResolver(scopeRepo)

	// Services.
	availabilityService := services.NewAvailabilityService(cacheRepo)
	orderService := services.NewOrderService(dbConn, orderRepo, cartRepo, hubRepo, userRepo, historyRepo, resolver, cfg.Order, logger)
	dispatchService := services.NewDispatchService(dbConn, dispatchRepo, orderRepo, historyRepo, userRepo, resolver, availabilityService, logger)
	listingService := services.NewListingService(listingRepo, resolver, cfg.Order, logger)
	reportService := services.NewReportService(reportRepo, resolver, logger)

	// Controllers.
	orderCtrl := controllers.NewOrderController(orderService, logger)
	driverCtrl := controllers.NewDriverController(dispatchService, listingService, availabilityService, logger)
	opsCtrl := controllers.NewOpsController(dispatchService, listingService, reportService, logger)

	secureGroup := api.Group("", authMW.Auth)

	runOrderRouter(secureGroup, orderCtrl, authMW)
	runDriverRouter(secureGroup, driverCtrl, authMW)
	runOpsRouter(secureGroup, opsCtrl, authMW)
}
