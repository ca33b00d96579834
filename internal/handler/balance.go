package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
)

// BalanceHandler serves the caller's balance and the admin override.
type BalanceHandler struct {
	Ledger *booking.Ledger
	Log    *zap.Logger
}

func NewBalanceHandler(l *booking.Ledger, log *zap.Logger) *BalanceHandler {
	return &BalanceHandler{Ledger: l, Log: log}
}

// Get handles GET /v1/balance.
func (h *BalanceHandler) Get(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	bal, err := h.Ledger.Balance(ctx, who.UserID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, balanceResp{Balance: bal})
}

// Set handles PUT /v1/balance.  A negative value answers 401 invalid_value.
func (h *BalanceHandler) Set(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	var req setBalanceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.NewBalance == nil {
		return badRequest(c, "new_balance required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	bal, err := h.Ledger.SetBalance(ctx, who, req.Email, *req.NewBalance)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, balanceResp{Email: req.Email, Balance: bal})
}
