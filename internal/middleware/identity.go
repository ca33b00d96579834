package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// CurrentUserID returns the authenticated user id, or false when the
// request passed no JWT check.
func CurrentUserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// CurrentRole returns the role claim of the authenticated user, or "".
func CurrentRole(c echo.Context) string {
	role, _ := c.Get(ctxRole).(string)
	return role
}

// userKey identifies the caller inside Redis keys.
func userKey(c echo.Context) string {
	if id, ok := CurrentUserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
