package http

import (
	"strings"

	"erp-approval-middleware/internal/adapter/middleware"

	"github.com/labstack/echo/v4"
)

// actor names the caller in comments and logs.
func actor(c echo.Context) string {
	if p := middleware.PrincipalFrom(c); p != nil {
		return p.Username
	}
	return ""
}

// ---- helpers ----

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
