package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"erp-approval-middleware/internal/adapter/erp"

	"github.com/labstack/echo/v4"
)

type AdapterSwitcher interface {
	Switch(mode string) error
	Mode() string
	Modes() []string
	Health(ctx context.Context) erp.Health
}

type AdminHandler struct {
	erp AdapterSwitcher
}

func NewAdminHandler(s AdapterSwitcher) *AdminHandler { return &AdminHandler{erp: s} }

type adapterResp struct {
	Mode    string     `json:"mode"`
	Modes   []string   `json:"modes"`
	Adapter erp.Health `json:"adapter"`
}

// SwitchAdapter changes the active ERP adapter: POST /admin/adapter?mode=sap
func (h *AdminHandler) SwitchAdapter(c echo.Context) error {
	mode := strings.ToLower(strings.TrimSpace(c.QueryParam("mode")))
	if mode == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing mode query param"})
	}
	prev := h.erp.Mode()
	if err := h.erp.Switch(mode); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Details: []FieldError{{Field: "mode", Message: "must be one of: " + strings.Join(h.erp.Modes(), " ")}},
		})
	}
	slog.Info("erp adapter switched", "from", prev, "to", mode, "by", actor(c))
	return c.JSON(http.StatusOK, adapterResp{
		Mode:    h.erp.Mode(),
		Modes:   h.erp.Modes(),
		Adapter: h.erp.Health(c.Request().Context()),
	})
}

func (h *AdminHandler) Adapter(c echo.Context) error {
	return c.JSON(http.StatusOK, adapterResp{
		Mode:    h.erp.Mode(),
		Modes:   h.erp.Modes(),
		Adapter: h.erp.Health(c.Request().Context()),
	})
}
