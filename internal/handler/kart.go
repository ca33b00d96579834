package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/middleware"
	"github.com/iliyamo/kart-rental/internal/model"
)

// KartHandler serves the catalog and the availability queries.
type KartHandler struct {
	Engine   *booking.Engine
	Location *time.Location
	Cache    config.CacheConfig
	Redis    *redis.Client // nil disables cache purging
	Log      *zap.Logger
}

func NewKartHandler(e *booking.Engine, loc *time.Location, cache config.CacheConfig, rdb *redis.Client, log *zap.Logger) *KartHandler {
	return &KartHandler{Engine: e, Location: loc, Cache: cache, Redis: rdb, Log: log}
}

// List handles GET /v1/karts.
func (h *KartHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	karts, err := h.Engine.Catalog().List(ctx)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, kartsResp{Karts: nonNilKarts(karts)})
}

// Create handles POST /v1/karts (admin).
func (h *KartHandler) Create(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req addKartReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	k, err := h.Engine.Catalog().Add(ctx, who, model.Kart{
		Type:       req.Type,
		HourlyCost: req.HourlyCost,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, k)
}

// Delete handles DELETE /v1/karts/:id (admin).
func (h *KartHandler) Delete(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return badRequest(c, "invalid kart id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Engine.Catalog().Remove(ctx, who, id); err != nil {
		return writeError(c, h.Log, err)
	}
	h.purge(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "kart deleted", "id": id})
}

// Available handles POST /v1/available_karts.
func (h *KartHandler) Available(c echo.Context) error {
	var req windowReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	start, end, err := parseWindow(h.Location, req.Start, req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	karts, err := h.Engine.AvailableKarts(ctx, start, end)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, kartsResp{Karts: nonNilKarts(karts)})
}

// Near handles POST /v1/near_karts: karts free for the next hour, nearest
// first.
func (h *KartHandler) Near(c echo.Context) error {
	var req nearReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Lat == nil || req.Lng == nil {
		return badRequest(c, "lat and lng required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	karts, err := h.Engine.NearKarts(ctx, booking.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, kartsResp{Karts: nonNilKarts(karts)})
}

// purge drops cached catalog pages; a failure only delays freshness.
func (h *KartHandler) purge(c echo.Context) {
	if err := middleware.PurgeCache(c.Request().Context(), h.Cache, h.Redis); err != nil {
		h.Log.Warn("purge catalog cache", zap.Error(err))
	}
}
