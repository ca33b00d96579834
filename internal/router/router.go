// Package router assembles the echo instance: global middleware, health
// and metrics endpoints, and the /v1 API groups.
package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/handler"
	"github.com/iliyamo/kart-rental/internal/metrics"
	"github.com/iliyamo/kart-rental/internal/middleware"
	"github.com/iliyamo/kart-rental/internal/model"
)

// Deps is everything the routes need.  Redis may be nil.
type Deps struct {
	Cfg      config.Config
	Log      *zap.Logger
	Redis    *redis.Client
	Store    handler.Pinger
	Auth     *handler.AuthHandler
	Balance  *handler.BalanceHandler
	Karts    *handler.KartHandler
	Bookings *handler.BookingHandler
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(d.Log))
	e.Use(echomw.Recover())
	e.Use(middleware.Metrics())

	RegisterRoutes(e, d.Store, d.Redis)
	limiter := middleware.NewTokenBucket(d.Cfg.RateLimit, d.Redis)
	RegisterAuth(e, d.Auth, limiter)

	g := e.Group("/v1",
		middleware.JWTAuth(d.Cfg.JWTSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleAdmin),
		limiter,
	)
	RegisterCatalog(g, d.Karts, d.Balance, middleware.NewRedisCache(d.Cfg.Cache, d.Redis))
	RegisterBooking(g, d.Bookings, middleware.Idempotency(d.Cfg.Idempotency, d.Redis))
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, store handler.Pinger, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(store, rdb))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers register/login/refresh/logout under /v1/auth.
// None of them needs an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				log.Error("request", fields...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

// shutdownGrace bounds how long in-flight requests may finish on stop.
const shutdownGrace = 10 * time.Second

// Serve runs e on addr until ctx is cancelled, then shuts it down
// gracefully.
func Serve(ctx context.Context, e *echo.Echo, addr string, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return e.Shutdown(sctx)
}
