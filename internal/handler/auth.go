package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/booking"
	"github.com/iliyamo/kart-rental/internal/config"
	"github.com/iliyamo/kart-rental/internal/model"
	"github.com/iliyamo/kart-rental/internal/repository"
	"github.com/iliyamo/kart-rental/internal/utils"
)

// UserStore persists accounts.  Both the MySQL and the in-memory store
// satisfy it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, role string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore keeps hashed refresh tokens.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Tx     repository.Transactor
	Users  UserStore
	Tokens TokenStore
	Ledger *booking.Ledger
	Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, tx repository.Transactor, u UserStore, t TokenStore, l *booking.Ledger, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Tx: tx, Users: u, Tokens: t, Ledger: l, Log: log}
}

// Register creates the account together with its opening balance and
// returns a token pair.  Malformed and taken emails are both 401.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email, ok := normalizeEmail(req.Email)
	if !ok {
		return unauthorized(c, "invalid email")
	}
	if err := utils.CheckPassword(req.Password); err != nil {
		return badRequest(c, err.Error())
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	role := model.RoleCustomer
	if h.Cfg.IsAdmin(email) {
		role = model.RoleAdmin
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	var uid uint64
	err = h.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
		id, err := h.Users.Create(ctx, email, hash, role)
		if err != nil {
			return err
		}
		uid = id
		return h.Ledger.Open(ctx, id, h.Cfg.StartingBalance)
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return unauthorized(c, "email already registered")
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}

	resp, err := h.issue(ctx, model.User{ID: uid, Email: email, Role: role})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	opening := h.Cfg.StartingBalance
	resp.Balance = &opening
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return unauthorized(c, "invalid credentials")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return unauthorized(c, "invalid credentials")
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return unauthorized(c, "invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new
// pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return unauthorized(c, "invalid refresh")
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return writeError(c, h.Log, err)
	}
	u, err := h.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return unauthorized(c, "invalid refresh")
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the given refresh token, or every token of its owner
// when all is set.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return unauthorized(c, "invalid refresh")
	}
	if req.All {
		err = h.Tokens.RevokeAllForUser(ctx, userID)
	} else {
		err = h.Tokens.RevokeByHash(ctx, hash)
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		Token:   access.Token,
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// normalizeEmail accepts a bare address (no display name) and lower-cases
// it.
func normalizeEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@"):], ".") {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}
