package http

import (
	"context"
	"net/http"

	"erp-approval-middleware/internal/adapter/middleware"
	"erp-approval-middleware/internal/usecase/auth"

	"github.com/labstack/echo/v4"
)

type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.TokenDTO, error)
	Login(ctx context.Context, username, password string) (*auth.TokenDTO, error)
	Logout(ctx context.Context, p *auth.Principal) error
	Me(p *auth.Principal) auth.UserDTO
}

type AuthHandler struct {
	svc AuthService
}

func NewAuthHandler(svc AuthService) *AuthHandler { return &AuthHandler{svc: svc} }

type loginReq struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,pwbytes"`
}

type registerReq struct {
	Username string `json:"username" validate:"required,min=3,max=64,username"`
	Password string `json:"password" validate:"required,min=8,pwbytes"`
	FullName string `json:"full_name" validate:"max=255"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationError(c, err)
	}
	tok, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationError(c, err)
	}
	tok, err := h.svc.Register(c.Request().Context(), auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, tok)
}

func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return writeError(c, auth.ErrUnauthorized)
	}
	return c.JSON(http.StatusOK, h.svc.Me(p))
}

func (h *AuthHandler) Logout(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return writeError(c, auth.ErrUnauthorized)
	}
	if err := h.svc.Logout(c.Request().Context(), p); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
