package routes

import (
	"github.com/labstack/echo/v4"

	"delivery-system/internal/authz"
	"delivery-system/internal/controllers"
	"delivery-system/pkg/middleware"
)

func runOrderRouter(secureGroup *echo.Group, orderCtrl *controllers.OrderController, authMW *middleware.AuthMiddleware) {
	// Read access is role-filtered inside the service. The status and
	// payment paths carry no role middleware on purpose: the service answers
	// disallowed roles with the same not-found a nonexistent order produces,
	// and a 403 here would reveal that the order exists.
	secureGroup.POST("/orders", orderCtrl.CreateOrder,
		authMW.RequireRoles(authz.RoleCustomer))
	secureGroup.GET("/orders", orderCtrl.GetOrders)
	secureGroup.GET("/orders/:id", orderCtrl.FindOrder)
	secureGroup.GET("/orders/:id/history", orderCtrl.GetStatusHistory)
	secureGroup.PATCH("/orders/:id/status", orderCtrl.ChangeStatus)
	secureGroup.POST("/orders/:id/payment", orderCtrl.ConfirmPayment)
}
