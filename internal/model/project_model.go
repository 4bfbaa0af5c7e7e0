package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectModel 基础设施债券项目
type ProjectModel struct {
	BaseModel

	// 链上 projectId，未上链时为空
	ChainProjectId *int64 `json:"chain_project_id" gorm:"uniqueIndex"`

	// 基本信息
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	Location    string `json:"location"`
	Category    string `json:"category"`
	ManagerId   string `json:"manager_id" gorm:"type:varchar(36);not null;index"`

	// 募资信息，FundsRaised 与 InvestorCount 只在投资确认时变化
	FundingGoal        decimal.Decimal `json:"funding_goal" gorm:"type:numeric(38,18);not null"`
	FundsRaised        decimal.Decimal `json:"funds_raised" gorm:"type:numeric(38,18);not null"`
	FundsReleased      decimal.Decimal `json:"funds_released" gorm:"type:numeric(38,18);not null"`
	InterestRateAnnual decimal.Decimal `json:"interest_rate_annual" gorm:"type:numeric(10,4);not null"` // 年化利率（百分比）
	DurationMonths     int             `json:"duration_months" gorm:"not null"`
	InvestorCount      int64           `json:"investor_count" gorm:"not null;default:0"`

	Status       ProjectStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	TokenAddress string        `json:"token_address" gorm:"type:varchar(42)"`

	// 时间信息
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// TableName 自定义表名
func (ProjectModel) TableName() string {
	return "project"
}
