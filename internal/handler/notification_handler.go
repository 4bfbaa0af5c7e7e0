package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infrachain/server/internal/logic"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	notificationLogic *logic.NotificationLogic
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{
		notificationLogic: logic.NewNotificationLogic(db),
	}
}

// List 获取自己的通知，unread=true 时只返回未读
func (h *NotificationHandler) List(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	notifications, total, err := h.notificationLogic.ListNotifications(principal.UserId, c.Query("unread") == "true", page)
	if err != nil {
		HandleError(c, err)
		return
	}
	pagedResponse(c, notifications, total, page)
}

// MarkRead 标记通知已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}
	notification, err := h.notificationLogic.MarkRead(principal.UserId, c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", notification)
}
