package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MilestoneModel 项目里程碑，MilestoneIndex 与链上里程碑数组下标一致
type MilestoneModel struct {
	BaseModel

	ProjectId      string          `json:"project_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_milestone_project_index"`
	MilestoneIndex int             `json:"milestone_index" gorm:"not null;uniqueIndex:idx_milestone_project_index"`
	Title          string          `json:"title" gorm:"not null"`
	Description    string          `json:"description" gorm:"type:text"`
	FundsToRelease decimal.Decimal `json:"funds_to_release" gorm:"type:numeric(38,18);not null"`
	TargetDate     *time.Time      `json:"target_date"`
	CompletedAt    *time.Time      `json:"completed_at"`
	Status         MilestoneStatus `json:"status" gorm:"type:varchar(16);not null"`

	// 完成时两者必须同时存在
	EvidenceHash string `json:"evidence_hash"`
	VerifiedBy   string `json:"verified_by" gorm:"type:varchar(42)"`
}

// TableName 自定义表名
func (MilestoneModel) TableName() string {
	return "milestone"
}
