package logic

import (
	"fmt"

	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

// NotificationLogic 通知业务逻辑
type NotificationLogic struct {
	db *gorm.DB
}

// NewNotificationLogic 创建通知业务逻辑
func NewNotificationLogic(db *gorm.DB) *NotificationLogic {
	return &NotificationLogic{db: db}
}

// notify 在调用方事务中写入通知
func notify(tx *gorm.DB, userId string, typ model.NotificationType, title, message, relatedId string) error {
	n := &model.NotificationModel{
		UserId:    userId,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedId: relatedId,
	}
	if err := tx.Create(n).Error; err != nil {
		return fmt.Errorf("创建通知失败: %w", err)
	}
	return nil
}

// ListNotifications 获取用户通知
func (n *NotificationLogic) ListNotifications(userId string, unreadOnly bool, page Page) ([]model.NotificationModel, int64, error) {
	page = page.Normalize()
	var notifications []model.NotificationModel
	var total int64

	query := n.db.Model(&model.NotificationModel{}).Where("user_id = ?", userId)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取通知总数失败: %w", err)
	}
	if err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.PageSize).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("获取通知列表失败: %w", err)
	}
	return notifications, total, nil
}

// MarkRead 标记已读，只能操作自己的通知
func (n *NotificationLogic) MarkRead(userId, id string) (*model.NotificationModel, error) {
	var notification model.NotificationModel
	if err := findOne(n.db, &notification, "notification", "id = ? AND user_id = ?", id, userId); err != nil {
		return nil, err
	}
	if !notification.IsRead {
		if err := n.db.Model(&notification).Update("is_read", true).Error; err != nil {
			return nil, fmt.Errorf("更新通知失败: %w", err)
		}
		notification.IsRead = true
	}
	return &notification, nil
}
