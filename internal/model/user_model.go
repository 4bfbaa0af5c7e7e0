package model

import (
	"github.com/shopspring/decimal"
)

// UserModel 平台用户
type UserModel struct {
	BaseModel

	WalletAddress *string   `json:"wallet_address" gorm:"uniqueIndex;type:varchar(42)"` // 小写 0x 地址
	Email         *string   `json:"email" gorm:"uniqueIndex;type:varchar(255)"`
	Name          string    `json:"name"`
	Role          UserRole  `json:"role" gorm:"type:varchar(32);not null;index"`
	KycStatus     KycStatus `json:"kyc_status" gorm:"type:varchar(16);not null"`

	// 仅由已确认的投资累加
	TotalInvested decimal.Decimal `json:"total_invested" gorm:"type:numeric(38,18);not null"`
	TotalTokens   decimal.Decimal `json:"total_tokens" gorm:"type:numeric(38,18);not null"`

	IsActive bool `json:"is_active" gorm:"not null;default:true"`
}

// TableName 自定义表名
func (UserModel) TableName() string {
	return "user_account"
}
