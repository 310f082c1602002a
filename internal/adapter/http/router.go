package http

import (
	"time"

	"erp-approval-middleware/internal/adapter/middleware"
	"erp-approval-middleware/internal/domain/user"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Routes bundles everything the router mounts. Redis and Gatherer are optional.
type Routes struct {
	Health        *Handler
	Auth          *AuthHandler
	Approvals     *ApprovalHandler
	Notifications *NotificationHandler
	Analytics     *AnalyticsHandler
	Admin         *AdminHandler

	Authenticator  middleware.Authenticator
	Redis          *redis.Client
	IdempotencyTTL time.Duration
	Gatherer       prometheus.Gatherer
}

func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	e.Use(echomw.Logger(), echomw.Recover())
	return e
}

func Register(e *echo.Echo, r Routes) {
	e.GET("/health", r.Health.Health)
	if r.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{})))
	}
	e.GET("/ws/notifications", r.Notifications.Stream)

	idem := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if r.Redis != nil {
		idem = middleware.Idempotency(r.Redis, r.IdempotencyTTL)
	}

	public := e.Group("/auth", idem)
	public.POST("/login", r.Auth.Login)
	public.POST("/register", r.Auth.Register)

	// authenticate first so idempotency keys are scoped per user
	api := e.Group("", middleware.Authenticate(r.Authenticator), idem)
	api.GET("/auth/me", r.Auth.Me)
	api.POST("/auth/logout", r.Auth.Logout)

	api.POST("/detect", r.Approvals.Detect)
	api.GET("/decisions", r.Approvals.List)
	api.GET("/decisions/:erp_requisition_id", r.Approvals.Get)
	api.POST("/approve/:erp_requisition_id", r.Approvals.Approve)
	api.POST("/reject/:erp_requisition_id", r.Approvals.Reject)
	api.POST("/undo/:erp_requisition_id", r.Approvals.Undo)
	api.POST("/batch/approve", r.Approvals.BatchApprove)
	api.POST("/batch/reject", r.Approvals.BatchReject)

	api.GET("/notifications", r.Notifications.List)
	api.GET("/analytics/summary", r.Analytics.Summary)
	api.GET("/analytics/export", r.Analytics.Export)

	admin := api.Group("/admin", middleware.RequireRole(user.RoleAdmin))
	admin.GET("/adapter", r.Admin.Adapter)
	admin.POST("/adapter", r.Admin.SwitchAdapter)
}
