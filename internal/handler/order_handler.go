package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

type ShippingInfoRequest struct {
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Zip     string `json:"zip"`
	Email   string `json:"email"`
}

// 価格はbodyに入っていても読まない
type OrderCreateRequest struct {
	Items        []validator.RawCartLine `json:"items"`
	ShippingInfo ShippingInfoRequest     `json:"shippingInfo"`
	Email        string                  `json:"email"`
	Notes        string                  `json:"notes"`
}

type OrderSummary struct {
	ID          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
}

// 注文作成のレスポンスは {success, order} / {success, error}
type OrderCreateResponse struct {
	Success bool          `json:"success"`
	Order   *OrderSummary `json:"order,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/orders")

	//ゲスト注文も受け付ける
	g.POST("", h.create, middleware.OptionalAuthJWT(cfg.JWTSecret))
	g.GET("", h.list, middleware.AuthJWT(cfg.JWTSecret))
	g.GET("/:id", h.detail, middleware.AuthJWT(cfg.JWTSecret))
}

func (h *OrderHandler) create(c echo.Context) error {
	var userID *string
	if id, ok := getUserIDFromContext(c); ok {
		userID = &id
	}

	var req OrderCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, OrderCreateResponse{Error: "invalid body"})
	}

	lines, err := validator.ParseCartLines(req.Items)
	if err != nil {
		return c.JSON(http.StatusBadRequest, OrderCreateResponse{Error: err.Error()})
	}

	email := req.ShippingInfo.Email
	if email == "" {
		email = req.Email
	}

	out, err := h.uc.CreateOrder(c.Request().Context(), userID, usecase.CreateOrderInput{
		Lines: lines,
		Shipping: usecase.ShippingInfo{
			Address: req.ShippingInfo.Address,
			City:    req.ShippingInfo.City,
			Country: req.ShippingInfo.Country,
			Zip:     req.ShippingInfo.Zip,
		},
		Email: email,
		Notes: req.Notes,
	})
	if err != nil {
		if he, ok := usecase.AsHTTPError(err); ok {
			return c.JSON(he.Status, OrderCreateResponse{Error: he.Message})
		}
		return c.JSON(http.StatusInternalServerError, OrderCreateResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusCreated, OrderCreateResponse{
		Success: true,
		Order: &OrderSummary{
			ID:          out.ID,
			TotalAmount: out.TotalAmount,
			Status:      out.Status,
		},
	})
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	page, limit, err := pageParams(c, 20)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), userID, page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.GetMyOrderDetail(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// page/limitのクエリ。未指定なら1/defLimit
func pageParams(c echo.Context, defLimit int) (int, int, error) {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid page")
		}
		page = p
	}

	limit := defLimit
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, usecase.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = l
	}
	return page, limit, nil
}
