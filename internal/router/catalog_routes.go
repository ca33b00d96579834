package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/kart-rental/internal/handler"
	"github.com/iliyamo/kart-rental/internal/middleware"
	"github.com/iliyamo/kart-rental/internal/model"
)

// RegisterCatalog registers the kart catalog, the availability queries and
// the balance endpoints on the authenticated group.  Catalog writes and
// balance overrides additionally require the ADMIN role.
func RegisterCatalog(g *echo.Group, k *handler.KartHandler, b *handler.BalanceHandler, cache echo.MiddlewareFunc) {
	admin := middleware.RequireRole(model.RoleAdmin)

	// ---- Karts ----
	g.GET("/karts", k.List, cache)
	g.POST("/karts", k.Create, admin)
	g.DELETE("/karts/:id", k.Delete, admin)
	g.POST("/available_karts", k.Available)
	g.POST("/near_karts", k.Near)

	// ---- Balance ----
	g.GET("/balance", b.Get)
	g.PUT("/balance", b.Set, admin)
}
