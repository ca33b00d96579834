package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error             string   `json:"error"`
	Message           string   `json:"message"`
	NotAvailableKarts []uint64 `json:"not_available_karts,omitempty"`
}

// writeError maps an engine error onto a status code.  Anything the engine
// did not classify is a 500 and gets logged; its text is not sent back.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	status, code := classify(err)
	body := errorBody{Error: code, Message: err.Error()}

	var ce *booking.ConflictError
	if errors.As(err, &ce) {
		body.NotAvailableKarts = ce.KartIDs
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err))
		body.Message = "internal error"
	}
	return c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, booking.ErrInvalidInterval):
		return http.StatusUnprocessableEntity, "invalid_interval"
	case errors.Is(err, booking.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, booking.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, booking.ErrInvalidState):
		return http.StatusPreconditionFailed, "invalid_state"
	case errors.Is(err, booking.ErrInvalidValue):
		return http.StatusUnauthorized, "invalid_value"
	}
	return http.StatusInternalServerError, "internal_error"
}

// badRequest answers 400 for malformed bodies and datetimes.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: "validation_error", Message: msg})
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: msg})
}
