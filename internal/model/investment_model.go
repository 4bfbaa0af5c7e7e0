package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentModel 投资记录
type InvestmentModel struct {
	BaseModel

	InvestorId      string           `json:"investor_id" gorm:"type:varchar(36);not null;index:idx_investment_investor_project"`
	ProjectId       string           `json:"project_id" gorm:"type:varchar(36);not null;index:idx_investment_investor_project;index"`
	Amount          decimal.Decimal  `json:"amount" gorm:"type:numeric(38,18);not null"`
	TokensMinted    decimal.Decimal  `json:"tokens_minted" gorm:"type:numeric(38,18);not null"`
	TransactionHash string           `json:"transaction_hash" gorm:"type:varchar(66);not null;uniqueIndex"`
	Status          InvestmentStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	BlockNumber     *uint64          `json:"block_number"`
	ConfirmedAt     *time.Time       `json:"confirmed_at"`
	FailureReason   string           `json:"failure_reason,omitempty"`
}

// TableName 自定义表名
func (InvestmentModel) TableName() string {
	return "investment"
}
