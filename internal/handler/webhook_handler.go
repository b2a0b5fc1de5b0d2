package handler

import (
	"io"
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// webhookボディの上限
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	uc *usecase.WebhookUsecase
}

func NewWebhookHandler(uc *usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{uc: uc}
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

// 認証はHMAC署名だけ（JWTは付けない）
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payment", h.receive)
}

func (h *WebhookHandler) receive(c echo.Context) error {
	//署名は生のボディに対して計算するのでBindしない
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "body too large"})
	}

	if err := h.uc.HandleWebhook(c.Request().Context(), body, c.Request().Header.Get("signature")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, WebhookResponse{Received: true})
}
