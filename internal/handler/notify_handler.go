package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// データ基盤のUPDATEトリガーから呼ばれる
type NotifyHandler struct {
	notifier *usecase.Notifier
	secret   string
	log      *slog.Logger
}

func NewNotifyHandler(n *usecase.Notifier, secret string, log *slog.Logger) *NotifyHandler {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyHandler{notifier: n, secret: secret, log: log}
}

// ordersテーブルの行
type orderRecord struct {
	ID              string          `json:"id"`
	UserID          *string         `json:"user_id"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Email           *string         `json:"email"`
	ShippingAddress *string         `json:"shipping_address"`
	ShippingCity    *string         `json:"shipping_city"`
	ShippingCountry *string         `json:"shipping_country"`
	ShippingZip     *string         `json:"shipping_zip"`
}

func (r orderRecord) toModel() model.Order {
	return model.Order{
		ID:              r.ID,
		UserID:          r.UserID,
		Status:          model.OrderStatus(r.Status),
		PaymentStatus:   model.PaymentStatus(r.PaymentStatus),
		TotalAmount:     r.TotalAmount,
		Email:           r.Email,
		ShippingAddress: r.ShippingAddress,
		ShippingCity:    r.ShippingCity,
		ShippingCountry: r.ShippingCountry,
		ShippingZip:     r.ShippingZip,
	}
}

type StatusChangeRequest struct {
	Record    *orderRecord `json:"record"`
	OldRecord *orderRecord `json:"old_record"`
}

type NotifyResponse struct {
	Sent bool `json:"sent"`
}

func (h *NotifyHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/hooks/order-status", h.statusChanged)
}

func (h *NotifyHandler) statusChanged(c echo.Context) error {
	got := c.Request().Header.Get("X-Hook-Secret")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req StatusChangeRequest
	if err := c.Bind(&req); err != nil || req.Record == nil || req.OldRecord == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 送信失敗でもトリガー側の更新には影響させない（ログだけ）
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	sent, err := h.notifier.NotifyStatusChange(ctx, req.OldRecord.toModel(), req.Record.toModel())
	if err != nil {
		h.log.ErrorContext(ctx, "status email failed", "order_id", req.Record.ID, "error", err)
		return c.JSON(http.StatusOK, NotifyResponse{Sent: false})
	}
	return c.JSON(http.StatusOK, NotifyResponse{Sent: sent})
}
