package handler

import (
	"errors"
	"net/http"

	"order-payment-core/internal/client"
	"order-payment-core/internal/dto"
	"order-payment-core/internal/middleware"
	"order-payment-core/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

func (h *CheckoutHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	buyerID, err := middleware.BuyerIDFromContext(c)
	if err != nil {
		return err
	}

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.checkoutService.Checkout(ctx, buyerID, &req)
	if err != nil {
		return checkoutErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (h *CheckoutHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("id")
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order id")
	}

	order, err := h.checkoutService.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, order)
}

// checkoutErrorResponse maps the error taxonomy onto actionable responses:
// which SKU is out of stock, whether the card was declined, whether a retry
// may help.
func checkoutErrorResponse(c echo.Context, err error) error {
	var oos *service.OutOfStockError
	if errors.As(err, &oos) {
		return c.JSON(http.StatusConflict, &dto.ErrorResponse{
			Error:     "out_of_stock",
			ProductID: oos.ProductID,
		})
	}

	var lockTimeout *service.LockTimeoutError
	if errors.As(err, &lockTimeout) {
		return c.JSON(http.StatusServiceUnavailable, &dto.ErrorResponse{Error: "lock_timeout"})
	}

	if client.IsGatewayDeclined(err) {
		return c.JSON(http.StatusPaymentRequired, &dto.ErrorResponse{Error: "payment_declined"})
	}
	if client.IsGatewayTransient(err) {
		return c.JSON(http.StatusServiceUnavailable, &dto.ErrorResponse{Error: "gateway_unavailable"})
	}

	return err
}
