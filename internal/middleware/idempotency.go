package middleware

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/kart-rental/internal/config"
)

// HeaderIdempotencyKey is the request header naming a client retry group.
const HeaderIdempotencyKey = "Idempotency-Key"

const idemProcessing = "PROCESSING"

// Idempotency replays the stored response of a booking mutation when the
// same user repeats it with the same Idempotency-Key, so a retried request
// never charges twice.  Requests without the header, and all reads, pass
// through.  A duplicate arriving while the first is still running gets 409.
// Responses with status 5xx are not stored.
func Idempotency(cfg config.IdempotencyConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return next(c)
			}
			raw := r.Header.Get(HeaderIdempotencyKey)
			if raw == "" {
				return next(c)
			}
			if len(raw) > 255 {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation_error", "message": "Idempotency-Key too long"})
			}

			ctx := r.Context()
			sum := sha1.Sum([]byte(r.Method + " " + r.URL.Path + " " + raw))
			key := fmt.Sprintf("%s:%s:%x", cfg.Prefix, userKey(c), sum[:])

			acquired, err := rdb.SetNX(ctx, key, idemProcessing, cfg.LockTTL).Result()
			if err != nil {
				c.Logger().Warnf("[idempotency] redis error for key=%s: %v", key, err)
				return next(c)
			}
			if !acquired {
				bs, err := rdb.Get(ctx, key).Bytes()
				if err == nil && string(bs) != idemProcessing {
					if status, hdr, body, ok := decodePayload(bs); ok {
						return replay(c, status, hdr, body, "Idempotent-Replayed", "true")
					}
				}
				return c.JSON(http.StatusConflict, echo.Map{"error": "request_in_progress", "message": "a request with this Idempotency-Key is still being processed"})
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			bg := context.WithoutCancel(ctx)

			if err := next(c); err != nil {
				_ = rdb.Del(bg, key).Err()
				return err
			}
			if cw.status >= http.StatusInternalServerError {
				_ = rdb.Del(bg, key).Err()
				return nil
			}
			payload, err := encodePayload(cw.status, snapshotHeader(c.Response().Header()), cw.buf.Bytes())
			if err != nil {
				_ = rdb.Del(bg, key).Err()
				return nil
			}
			_ = rdb.Set(bg, key, payload, cfg.TTL).Err()
			return nil
		}
	}
}
