package handler

import (
	"time"

	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
)

// RegisterRequest 注册请求
type RegisterRequest struct {
	WalletAddress string         `json:"wallet_address"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Role          model.UserRole `json:"role"`
}

// KycRequest 设置 KYC 状态请求
type KycRequest struct {
	KycStatus model.KycStatus `json:"kyc_status" binding:"required"`
}

// CreateProjectRequest 创建项目请求
type CreateProjectRequest struct {
	ChainProjectId     *int64          `json:"chain_project_id"`
	Name               string          `json:"name" binding:"required"`
	Description        string          `json:"description"`
	Location           string          `json:"location"`
	Category           string          `json:"category"`
	ManagerId          string          `json:"manager_id"`
	FundingGoal        decimal.Decimal `json:"funding_goal"`
	InterestRateAnnual decimal.Decimal `json:"interest_rate_annual"`
	DurationMonths     int             `json:"duration_months"`
	TokenAddress       string          `json:"token_address"`
	StartDate          *time.Time      `json:"start_date"`
	EndDate            *time.Time      `json:"end_date"`
}

// UpdateProjectStatusRequest 项目状态流转请求
type UpdateProjectStatusRequest struct {
	Status model.ProjectStatus `json:"status" binding:"required"`
}

// SubmitInvestmentRequest 提交投资请求
type SubmitInvestmentRequest struct {
	ProjectId       string          `json:"project_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transaction_hash" binding:"required"`
}

// CreateMilestoneRequest 创建里程碑请求
type CreateMilestoneRequest struct {
	ProjectId      string          `json:"project_id" binding:"required"`
	MilestoneIndex *int            `json:"milestone_index"`
	Title          string          `json:"title" binding:"required"`
	Description    string          `json:"description"`
	FundsToRelease decimal.Decimal `json:"funds_to_release"`
	TargetDate     *time.Time      `json:"target_date"`
}

// UpdateMilestoneRequest 更新里程碑请求，未提供的字段不修改
type UpdateMilestoneRequest struct {
	Title        *string                `json:"title"`
	Description  *string                `json:"description"`
	TargetDate   *time.Time             `json:"target_date"`
	Status       *model.MilestoneStatus `json:"status"`
	EvidenceHash *string                `json:"evidence_hash"`
	VerifiedBy   *string                `json:"verified_by"`
}
