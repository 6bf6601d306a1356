package routes

import (
	"github.com/labstack/echo/v4"

	"delivery-system/internal/authz"
	"delivery-system/internal/controllers"
	"delivery-system/pkg/middleware"
)

func runOpsRouter(secureGroup *echo.Group, opsCtrl *controllers.OpsController, authMW *middleware.AuthMiddleware) {
	g := secureGroup.Group("/ops", authMW.RequireRoles(authz.RoleManager, authz.RoleOperator))
	{
		g.GET("/orders/live", opsCtrl.LiveOrders)
		g.POST("/orders/:id/assign", opsCtrl.AssignDriver)
		g.POST("/orders/:id/unassign", opsCtrl.UnassignDriver)
		g.PATCH("/orders/:id/dispatch-status", opsCtrl.UpdateOpsStatus)
		g.GET("/reports/deliveries", opsCtrl.DeliveryReport)
	}
}
