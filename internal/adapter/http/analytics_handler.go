package http

import (
	"context"
	"fmt"
	"net/http"

	"erp-approval-middleware/internal/usecase/analytics"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

type AnalyticsService interface {
	Summary(ctx context.Context) (*analytics.Summary, error)
	Export(ctx context.Context) (*excelize.File, string, error)
}

type AnalyticsHandler struct {
	uc AnalyticsService
}

func NewAnalyticsHandler(uc AnalyticsService) *AnalyticsHandler { return &AnalyticsHandler{uc: uc} }

func (h *AnalyticsHandler) Summary(c echo.Context) error {
	s, err := h.uc.Summary(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *AnalyticsHandler) Export(c echo.Context) error {
	f, name, err := h.uc.Export(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return writeError(c, fmt.Errorf("render workbook: %w", err))
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}
