package handler

import (
	"errors"
	"net/http"

	"order-payment-core/internal/dto"
	"order-payment-core/internal/service"

	"github.com/labstack/echo/v4"
)

type RefundHandler struct {
	refundService service.RefundService
}

func NewRefundHandler(refundService service.RefundService) *RefundHandler {
	return &RefundHandler{
		refundService: refundService,
	}
}

func (h *RefundHandler) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	orderID := c.Param("id")
	if orderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order id")
	}

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.Amount < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "refund amount must not be negative")
	}

	result, err := h.refundService.Refund(ctx, orderID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoRefundablePayment):
			return echo.NewHTTPError(http.StatusNotFound, "order has no refundable payment")
		case errors.Is(err, service.ErrRefundExceedsCaptured):
			return echo.NewHTTPError(http.StatusBadRequest, "refund exceeds remaining captured amount")
		}
		return err
	}

	return c.JSON(http.StatusOK, result)
}
