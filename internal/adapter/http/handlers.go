package http

import (
	"context"
	"net/http"
	"time"

	"erp-approval-middleware/internal/adapter/erp"

	"github.com/labstack/echo/v4"
)

const serviceName = "erp-approval-middleware"

// ERPStatus reports on the active ERP adapter.
type ERPStatus interface {
	Mode() string
	Health(ctx context.Context) erp.Health
}

type SchedulerStatus interface {
	Running() bool
}

type Handler struct {
	erp       ERPStatus
	scheduler SchedulerStatus
}

func NewHandler(erpStatus ERPStatus, sched SchedulerStatus) *Handler {
	return &Handler{erp: erpStatus, scheduler: sched}
}

// Health always answers 200; status is "degraded" when the ERP adapter is
// unhealthy so probes can tell the two apart without failing the pod.
func (h *Handler) Health(c echo.Context) error {
	body := map[string]any{
		"status":            "ok",
		"service":           serviceName,
		"time":              time.Now().UTC().Format(time.RFC3339Nano),
		"scheduler_running": h.scheduler != nil && h.scheduler.Running(),
	}
	if h.erp != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		health := h.erp.Health(ctx)
		body["erp_mode"] = h.erp.Mode()
		body["adapter"] = health
		if !health.Healthy() {
			body["status"] = "degraded"
		}
	}
	return c.JSON(http.StatusOK, body)
}
