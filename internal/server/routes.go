package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Order      *handler.OrderHandler
	Checkout   *handler.CheckoutHandler
	Webhook    *handler.WebhookHandler
	Cart       *handler.CartHandler
	AdminOrder *handler.AdminOrderHandler
	// NOTIFY_HOOK_SECRETが空なら登録しない
	Notify *handler.NotifyHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Order.RegisterRoutes(e, cfg)
	h.Checkout.RegisterRoutes(e, cfg)
	h.Webhook.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg)
	h.AdminOrder.RegisterRoutes(e, cfg)
	if h.Notify != nil {
		h.Notify.RegisterRoutes(e)
	}
}
