package model

import (
	"database/sql/driver"
	"fmt"
)

// 状态字段均为封闭枚举：写入和读取时都会校验取值，未知状态无法进入或离开存储层。

func scanEnum(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported status type %T", src)
	}
}

// UserRole 用户角色
type UserRole string

const (
	RoleInvestor       UserRole = "investor"        // 投资者
	RoleProjectManager UserRole = "project_manager" // 项目经理
	RoleAdmin          UserRole = "admin"           // 管理员
	RoleAuditor        UserRole = "auditor"         // 审计员
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleInvestor, RoleProjectManager, RoleAdmin, RoleAuditor:
		return true
	}
	return false
}

func (r UserRole) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid user role %q", string(r))
	}
	return string(r), nil
}

func (r *UserRole) Scan(src interface{}) error {
	s, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := UserRole(s); v.Valid() {
		*r = v
		return nil
	}
	return fmt.Errorf("invalid user role %q", s)
}

// KycStatus KYC状态
type KycStatus string

const (
	KycPending  KycStatus = "pending"
	KycVerified KycStatus = "verified"
	KycRejected KycStatus = "rejected"
)

func (k KycStatus) Valid() bool {
	switch k {
	case KycPending, KycVerified, KycRejected:
		return true
	}
	return false
}

func (k KycStatus) Value() (driver.Value, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid kyc status %q", string(k))
	}
	return string(k), nil
}

func (k *KycStatus) Scan(src interface{}) error {
	s, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := KycStatus(s); v.Valid() {
		*k = v
		return nil
	}
	return fmt.Errorf("invalid kyc status %q", s)
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"       // 草稿
	ProjectStatusActive     ProjectStatus = "active"      // 募集中
	ProjectStatusFunded     ProjectStatus = "funded"      // 已募满
	ProjectStatusInProgress ProjectStatus = "in_progress" // 建设中
	ProjectStatusCompleted  ProjectStatus = "completed"   // 已完成
	ProjectStatusCancelled  ProjectStatus = "cancelled"   // 已取消
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusDraft:      {ProjectStatusActive, ProjectStatusCancelled},
	ProjectStatusActive:     {ProjectStatusFunded, ProjectStatusCancelled},
	ProjectStatusFunded:     {ProjectStatusInProgress, ProjectStatusCancelled},
	ProjectStatusInProgress: {ProjectStatusCompleted, ProjectStatusCancelled},
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusFunded,
		ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo 检查项目状态流转是否合法
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ProjectStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid project status %q", string(s))
	}
	return string(s), nil
}

func (s *ProjectStatus) Scan(src interface{}) error {
	str, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := ProjectStatus(str); v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid project status %q", str)
}

// InvestmentStatus 投资状态，pending 只能流转到 confirmed 或 failed
type InvestmentStatus string

const (
	InvestmentStatusPending   InvestmentStatus = "pending"   // 待链上确认
	InvestmentStatusConfirmed InvestmentStatus = "confirmed" // 已确认
	InvestmentStatusFailed    InvestmentStatus = "failed"    // 失败
)

func (s InvestmentStatus) Valid() bool {
	switch s {
	case InvestmentStatusPending, InvestmentStatusConfirmed, InvestmentStatusFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s InvestmentStatus) IsTerminal() bool {
	return s == InvestmentStatusConfirmed || s == InvestmentStatusFailed
}

// CanTransitionTo 检查投资状态流转是否合法
func (s InvestmentStatus) CanTransitionTo(next InvestmentStatus) bool {
	return s == InvestmentStatusPending && next.IsTerminal()
}

func (s InvestmentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid investment status %q", string(s))
	}
	return string(s), nil
}

func (s *InvestmentStatus) Scan(src interface{}) error {
	str, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := InvestmentStatus(str); v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid investment status %q", str)
}

// MilestoneStatus 里程碑状态
type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"     // 待开始
	MilestoneStatusInProgress MilestoneStatus = "in_progress" // 进行中
	MilestoneStatusCompleted  MilestoneStatus = "completed"   // 已完成
	MilestoneStatusDelayed    MilestoneStatus = "delayed"     // 延期
	MilestoneStatusFailed     MilestoneStatus = "failed"      // 失败
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:    {MilestoneStatusInProgress},
	MilestoneStatusInProgress: {MilestoneStatusCompleted, MilestoneStatusDelayed, MilestoneStatusFailed},
	MilestoneStatusDelayed:    {MilestoneStatusInProgress, MilestoneStatusCompleted, MilestoneStatusFailed},
}

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusCompleted,
		MilestoneStatusDelayed, MilestoneStatusFailed:
		return true
	}
	return false
}

// IsTerminal 是否为终态
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneStatusCompleted || s == MilestoneStatusFailed
}

// CanTransitionTo 检查里程碑状态流转是否合法
func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	for _, allowed := range milestoneTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s MilestoneStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid milestone status %q", string(s))
	}
	return string(s), nil
}

func (s *MilestoneStatus) Scan(src interface{}) error {
	str, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := MilestoneStatus(str); v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid milestone status %q", str)
}

// TransactionType 链上交易类型
type TransactionType string

const (
	TransactionTypeInvestment          TransactionType = "investment"
	TransactionTypeInterestClaim       TransactionType = "interest_claim"
	TransactionTypeMilestoneCompletion TransactionType = "milestone_completion"
	TransactionTypeFundRelease         TransactionType = "fund_release"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeInvestment, TransactionTypeInterestClaim,
		TransactionTypeMilestoneCompletion, TransactionTypeFundRelease:
		return true
	}
	return false
}

func (t TransactionType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid transaction type %q", string(t))
	}
	return string(t), nil
}

func (t *TransactionType) Scan(src interface{}) error {
	s, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := TransactionType(s); v.Valid() {
		*t = v
		return nil
	}
	return fmt.Errorf("invalid transaction type %q", s)
}

// TxStatus 链上交易记录状态，取值与投资状态一致
type TxStatus = InvestmentStatus

// NotificationType 通知类型
type NotificationType string

const (
	NotificationInvestmentConfirmed NotificationType = "investment_confirmed"
	NotificationInvestmentFailed    NotificationType = "investment_failed"
	NotificationMilestoneCompleted  NotificationType = "milestone_completed"
	NotificationInterestClaimed     NotificationType = "interest_claimed"
	NotificationOverclaimDetected   NotificationType = "overclaim_detected"
)

func (n NotificationType) Valid() bool {
	switch n {
	case NotificationInvestmentConfirmed, NotificationInvestmentFailed, NotificationMilestoneCompleted,
		NotificationInterestClaimed, NotificationOverclaimDetected:
		return true
	}
	return false
}

func (n NotificationType) Value() (driver.Value, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid notification type %q", string(n))
	}
	return string(n), nil
}

func (n *NotificationType) Scan(src interface{}) error {
	s, err := scanEnum(src)
	if err != nil {
		return err
	}
	if v := NotificationType(s); v.Valid() {
		*n = v
		return nil
	}
	return fmt.Errorf("invalid notification type %q", s)
}
