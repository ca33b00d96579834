package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/middleware"
)

// requestTimeout bounds the store work of one request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// caller returns the identity JWTAuth stored on the context.
func caller(c echo.Context) (booking.Identity, bool) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		return booking.Identity{}, false
	}
	return booking.Identity{UserID: id, Role: middleware.CurrentRole(c)}, true
}
