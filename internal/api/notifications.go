package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/middleware"
	"github.com/khidmahub/khidmahub/internal/notify"
)

// NotificationHandlers exposes the per-user notification feed.
type NotificationHandlers struct {
	dispatcher *notify.Dispatcher
	log        *zap.Logger
}

func NewNotificationHandlers(dispatcher *notify.Dispatcher, log *zap.Logger) *NotificationHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandlers{dispatcher: dispatcher, log: log}
}

func (h *NotificationHandlers) List(c echo.Context) error {
	limit, offset := pagination(c)
	f := notify.ListFilter{
		UnreadOnly: c.QueryParam("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	}
	list, err := h.dispatcher.List(c.Request().Context(), middleware.Actor(c), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if list == nil {
		list = []notify.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": list})
}

func (h *NotificationHandlers) UnreadCount(c echo.Context) error {
	n, err := h.dispatcher.CountUnread(c.Request().Context(), middleware.Actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": n})
}

func (h *NotificationHandlers) MarkRead(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification id"})
	}
	if err := h.dispatcher.MarkRead(c.Request().Context(), middleware.Actor(c), id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}

func (h *NotificationHandlers) MarkAllRead(c echo.Context) error {
	n, err := h.dispatcher.MarkAllRead(c.Request().Context(), middleware.Actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"marked": n})
}

func (h *NotificationHandlers) RecordAction(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid notification id"})
	}
	var body struct {
		Action notify.ActionTaken `json:"action"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := h.dispatcher.RecordAction(c.Request().Context(), middleware.Actor(c), id, body.Action); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "ok"})
}
