package routes

import (
	"github.com/labstack/echo/v4"

	"delivery-system/internal/authz"
	"delivery-system/internal/controllers"
	"delivery-system/pkg/middleware"
)

func runDriverRouter(secureGroup *echo.Group, driverCtrl *controllers.DriverController, authMW *middleware.AuthMiddleware) {
	g := secureGroup.Group("/driver", authMW.RequireRoles(authz.RoleDriver))
	{
		g.GET("/orders/available", driverCtrl.AvailableOrders)
		g.POST("/orders/:id/claim", driverCtrl.ClaimOrder)
		g.POST("/orders/:id/release", driverCtrl.ReleaseOrder)
		g.PATCH("/orders/:id/status", driverCtrl.UpdateOpsStatus)
		g.POST("/orders/:id/complete", driverCtrl.CompleteOrder)
		g.POST("/orders/:id/delay", driverCtrl.ReportDelay)
		g.PUT("/duty", driverCtrl.SetDuty)
	}
}
