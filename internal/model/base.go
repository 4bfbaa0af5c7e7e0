package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 公共字段，主键为 UUID 字符串
type BaseModel struct {
	Id        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate 未指定主键时生成 UUID
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.Id == "" {
		b.Id = uuid.NewString()
	}
	return nil
}

// AllModels 需要迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&UserModel{},
		&ProjectModel{},
		&InvestmentModel{},
		&MilestoneModel{},
		&InterestModel{},
		&TransactionModel{},
		&NotificationModel{},
		&ChainEventModel{},
	}
}
