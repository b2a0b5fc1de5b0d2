package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/usecase"
	"storefront/internal/validator"

	"github.com/labstack/echo/v4"
)

// ゲストカートのトークン
const CartTokenHeader = "X-Cart-Token"

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

// DI
func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

// /cart を登録。ログインしていなければX-Cart-Tokenのゲストカート
func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/cart")
	g.Use(middleware.OptionalAuthJWT(cfg.JWTSecret))

	g.GET("", h.getCart)
	g.DELETE("", h.clear)
	g.POST("/items", h.addItem)
	g.PUT("/items", h.updateItem)
	g.DELETE("/items", h.deleteItem)
	g.GET("/quote", h.quote)
}

func cartOwner(c echo.Context) usecase.CartOwner {
	if id, ok := getUserIDFromContext(c); ok {
		return usecase.CartOwner{UserID: id}
	}
	return usecase.CartOwner{GuestToken: c.Request().Header.Get(CartTokenHeader)}
}

func (h *CartHandler) getCart(c echo.Context) error {
	out, err := h.uc.GetCart(c.Request().Context(), cartOwner(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) addItem(c echo.Context) error {
	var req validator.RawCartLine
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	line, err := validator.ParseCartLine(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.AddLine(c.Request().Context(), cartOwner(c), line)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) updateItem(c echo.Context) error {
	var req validator.RawCartLine
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	line, err := validator.ParseCartLine(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.UpdateQuantity(c.Request().Context(), cartOwner(c), usecase.UpdateCartItemInput{
		Kind:        line.Kind,
		ReferenceID: line.ReferenceID,
		Quantity:    line.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// DELETE /cart/items?product_id=... または ?pack_id=...
func (h *CartHandler) deleteItem(c echo.Context) error {
	var req validator.RawCartLine
	if v := c.QueryParam("product_id"); v != "" {
		req.ProductID = &v
	}
	if v := c.QueryParam("pack_id"); v != "" {
		req.PackID = &v
	}
	line, err := validator.ParseCartLine(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}

	out, err := h.uc.RemoveLine(c.Request().Context(), cartOwner(c), line.Kind, line.ReferenceID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) clear(c echo.Context) error {
	if err := h.uc.Clear(c.Request().Context(), cartOwner(c)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "cleared"})
}

func (h *CartHandler) quote(c echo.Context) error {
	out, err := h.uc.Quote(c.Request().Context(), cartOwner(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
