package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/muhammadshahms/shoe-shop/internal/checkout"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/middleware/auth"
)

type CheckoutHTTP struct {
	Coordinator *checkout.Coordinator
}

func checkoutStatus(err error) int {
	switch {
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrOutOfStock):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *CheckoutHTTP) PlaceOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "checkout.place_order")

	userID, ok := auth.UserID(c)
	if !ok {
		l.Warn("place_order_error", "status", 401, "reason", "no user in context")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req checkout.Submission
	if err := c.Bind(&req); err != nil {
		l.Warn("place_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	placement, err := h.Coordinator.PlaceOrder(ctx, userID, req)
	if err != nil {
		// the coordinator already logged the cause
		return echo.NewHTTPError(checkoutStatus(err), err.Error())
	}

	l.Info("place_order_success", "order_number", placement.OrderNumber)
	return c.JSON(http.StatusCreated, placement)
}
