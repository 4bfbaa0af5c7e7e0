package model

// NotificationModel 站内通知
type NotificationModel struct {
	BaseModel

	UserId    string           `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Type      NotificationType `json:"type" gorm:"type:varchar(32);not null"`
	Title     string           `json:"title" gorm:"not null"`
	Message   string           `json:"message" gorm:"type:text"`
	IsRead    bool             `json:"is_read" gorm:"not null;default:false"`
	RelatedId string           `json:"related_id" gorm:"type:varchar(36)"`
}

// TableName 自定义表名
func (NotificationModel) TableName() string {
	return "notification"
}
