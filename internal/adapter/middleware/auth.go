package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"erp-approval-middleware/internal/domain/user"
	"erp-approval-middleware/internal/usecase/auth"

	"github.com/labstack/echo/v4"
)

const principalKey = "principal"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Authenticate requires "Authorization: Bearer <token>" and stores the
// caller in the echo context.
func Authenticate(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			}
			p, err := a.Authenticate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
				}
				slog.Error("auth: token check failed", "err", err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "token store unavailable"})
			}
			c.Set(principalKey, p)
			return next(c)
		}
	}
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if p == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": auth.ErrUnauthorized.Error()})
			}
			if !p.HasRole(roles...) {
				return c.JSON(http.StatusForbidden, map[string]string{"error": auth.ErrForbidden.Error()})
			}
			return next(c)
		}
	}
}

func PrincipalFrom(c echo.Context) *auth.Principal {
	p, _ := c.Get(principalKey).(*auth.Principal)
	return p
}

// WithPrincipal is used by handler tests that skip the middleware chain.
func WithPrincipal(c echo.Context, p *auth.Principal) { c.Set(principalKey, p) }

func bearerToken(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
