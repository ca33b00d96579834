package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/kart-rental/internal/handler"
)

// RegisterBooking registers the reservation endpoints.  Every mutation goes
// through idem so a retried request with the same Idempotency-Key is
// answered from Redis instead of charging again.
func RegisterBooking(g *echo.Group, h *handler.BookingHandler, idem echo.MiddlewareFunc) {
	g.GET("/booking", h.List)
	g.POST("/booking", h.Create, idem)
	g.PUT("/booking", h.Update, idem)
	g.DELETE("/booking", h.Delete, idem)
	g.DELETE("/booking/:id", h.DeleteByID, idem)
	g.POST("/multiple_booking", h.CreateMany, idem)
}
