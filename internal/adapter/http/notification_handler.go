package http

import (
	"context"
	"log/slog"
	"net/http"

	"erp-approval-middleware/internal/domain/notification"
	"erp-approval-middleware/internal/usecase/auth"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

type NotificationService interface {
	List(ctx context.Context, f notification.Filter) ([]notification.Entry, error)
}

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Subscriber serves one upgraded connection until it closes.
type Subscriber interface {
	Serve(conn *websocket.Conn, user string)
}

type NotificationHandler struct {
	svc      NotificationService
	auth     TokenAuthenticator
	hub      Subscriber
	upgrader websocket.Upgrader
}

func NewNotificationHandler(svc NotificationService, authn TokenAuthenticator, hub Subscriber) *NotificationHandler {
	return &NotificationHandler{
		svc:  svc,
		auth: authn,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the mobile client connects from arbitrary origins; the token is the gate
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type notificationListReq struct {
	Channel          string `query:"channel" validate:"omitempty,oneof=detect approve reject undo scheduler email slack"`
	ErpRequisitionID string `query:"erp_requisition_id" validate:"omitempty,reqid"`
	Limit            int    `query:"limit" validate:"gte=0,lte=500"`
}

type notificationList struct {
	Notifications []notification.Entry `json:"notifications"`
	Total         int                  `json:"total"`
}

func (h *NotificationHandler) List(c echo.Context) error {
	var req notificationListReq
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	entries, err := h.svc.List(c.Request().Context(), notification.Filter{
		Channel:          notification.Channel(req.Channel),
		ErpRequisitionID: req.ErpRequisitionID,
		Limit:            req.Limit,
	})
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []notification.Entry{}
	}
	return c.JSON(http.StatusOK, notificationList{Notifications: entries, Total: len(entries)})
}

// Stream upgrades to a websocket. Browsers cannot set headers on the
// handshake, so the token comes in the "token" query parameter.
func (h *NotificationHandler) Stream(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "token is required"})
	}
	p, err := h.auth.Authenticate(c.Request().Context(), token)
	if err != nil {
		return writeError(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		slog.Warn("websocket upgrade failed", "user", p.Username, "err", err)
		return nil
	}
	h.hub.Serve(conn, p.Username)
	return nil
}
