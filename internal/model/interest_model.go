package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestModel 投资者在某项目上的利息台账
type InterestModel struct {
	BaseModel

	InvestorId     string          `json:"investor_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_interest_investor_project"`
	ProjectId      string          `json:"project_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_interest_investor_project"`
	Principal      decimal.Decimal `json:"principal" gorm:"type:numeric(38,18);not null"`
	AccruedAmount  decimal.Decimal `json:"accrued_amount" gorm:"type:numeric(38,18);not null"`
	ClaimedAmount  decimal.Decimal `json:"claimed_amount" gorm:"type:numeric(38,18);not null"`
	PendingAmount  decimal.Decimal `json:"pending_amount" gorm:"type:numeric(38,18);not null"`
	LastAccruedAt  *time.Time      `json:"last_accrued_at"`
	LastClaimedAt  *time.Time      `json:"last_claimed_at"`
	AccrualStartAt *time.Time      `json:"accrual_start_at"`

	OverclaimFlagged bool            `json:"overclaim_flagged" gorm:"not null;default:false"`
	OverclaimAmount  decimal.Decimal `json:"overclaim_amount" gorm:"type:numeric(38,18);not null"`
}

// TableName 自定义表名
func (InterestModel) TableName() string {
	return "interest"
}

// Accrue 推进应计利息，应计金额只增不减
func (m *InterestModel) Accrue(accrued decimal.Decimal, at time.Time) bool {
	if !accrued.GreaterThan(m.AccruedAmount) {
		return false
	}
	m.AccruedAmount = accrued
	m.PendingAmount = m.AccruedAmount.Sub(m.ClaimedAmount)
	if m.PendingAmount.IsNegative() {
		m.PendingAmount = decimal.Zero
	}
	m.LastAccruedAt = &at
	return true
}

// Claim 记录一次领取。领取金额超过待领取金额时按待领取金额截断，返回超出部分。
func (m *InterestModel) Claim(amount decimal.Decimal, at time.Time) decimal.Decimal {
	excess := decimal.Zero
	applied := amount
	if amount.GreaterThan(m.PendingAmount) {
		excess = amount.Sub(m.PendingAmount)
		applied = m.PendingAmount
		m.OverclaimFlagged = true
		m.OverclaimAmount = m.OverclaimAmount.Add(excess)
	}
	m.ClaimedAmount = m.ClaimedAmount.Add(applied)
	m.PendingAmount = m.PendingAmount.Sub(applied)
	m.LastClaimedAt = &at
	return excess
}
