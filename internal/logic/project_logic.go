package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/metrics"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectLogic 项目业务逻辑
type ProjectLogic struct {
	db *gorm.DB
}

// NewProjectLogic 创建项目业务逻辑
func NewProjectLogic(db *gorm.DB) *ProjectLogic {
	return &ProjectLogic{db: db}
}

// CreateProjectInput 创建项目参数
type CreateProjectInput struct {
	ChainProjectId     *int64
	Name               string
	Description        string
	Location           string
	Category           string
	ManagerId          string // 管理员代建时指定，否则为调用方
	FundingGoal        decimal.Decimal
	InterestRateAnnual decimal.Decimal
	DurationMonths     int
	TokenAddress       string
	StartDate          *time.Time
	EndDate            *time.Time
}

// CreateProject 创建项目，初始状态为草稿
func (p *ProjectLogic) CreateProject(principal Principal, in CreateProjectInput) (*model.ProjectModel, error) {
	if !principal.HasRole(model.RoleProjectManager, model.RoleAdmin) {
		return nil, ErrForbidden
	}
	if err := validateProjectInput(in); err != nil {
		return nil, err
	}

	managerId := principal.UserId
	if principal.Role == model.RoleAdmin && in.ManagerId != "" {
		managerId = in.ManagerId
	}

	project := &model.ProjectModel{
		ChainProjectId:     in.ChainProjectId,
		Name:               strings.TrimSpace(in.Name),
		Description:        in.Description,
		Location:           in.Location,
		Category:           in.Category,
		ManagerId:          managerId,
		FundingGoal:        in.FundingGoal,
		FundsRaised:        decimal.Zero,
		FundsReleased:      decimal.Zero,
		InterestRateAnnual: in.InterestRateAnnual,
		DurationMonths:     in.DurationMonths,
		Status:             model.ProjectStatusDraft,
		TokenAddress:       strings.ToLower(in.TokenAddress),
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
	}

	if err := p.db.Create(project).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("chain project id: %w", ErrAlreadyExists)
		}
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}
	return project, nil
}

// validateProjectInput 验证项目数据
func validateProjectInput(in CreateProjectInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return newValidationError("name", "must not be empty")
	}
	if !in.FundingGoal.IsPositive() {
		return newValidationError("funding_goal", "must be positive")
	}
	if in.InterestRateAnnual.IsNegative() || in.InterestRateAnnual.GreaterThan(decimal.NewFromInt(100)) {
		return newValidationError("interest_rate_annual", "must be between 0 and 100")
	}
	if in.DurationMonths <= 0 {
		return newValidationError("duration_months", "must be positive")
	}
	if in.ChainProjectId != nil && *in.ChainProjectId < 0 {
		return newValidationError("chain_project_id", "must not be negative")
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return newValidationError("end_date", "must not be before start_date")
	}
	return nil
}

// GetProject 获取项目
func (p *ProjectLogic) GetProject(id string) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := findOne(p.db, &project, "project", "id = ?", id); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProjectByChainId 根据链上项目ID获取项目
func (p *ProjectLogic) GetProjectByChainId(chainProjectId int64) (*model.ProjectModel, error) {
	var project model.ProjectModel
	if err := findOne(p.db, &project, "project", "chain_project_id = ?", chainProjectId); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects 分页获取项目列表，可按状态过滤
func (p *ProjectLogic) ListProjects(status string, page Page) ([]model.ProjectModel, int64, error) {
	page = page.Normalize()
	var projects []model.ProjectModel
	var total int64

	query := p.db.Model(&model.ProjectModel{})
	if status != "" {
		s := model.ProjectStatus(status)
		if !s.Valid() {
			return nil, 0, newValidationError("status", "unknown project status")
		}
		query = query.Where("status = ?", s)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目总数失败: %w", err)
	}
	if err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.PageSize).Find(&projects).Error; err != nil {
		return nil, 0, fmt.Errorf("获取项目列表失败: %w", err)
	}
	return projects, total, nil
}

// ListAuditableProjects 获取需要资金审计的项目（非草稿）
func (p *ProjectLogic) ListAuditableProjects() ([]model.ProjectModel, error) {
	var projects []model.ProjectModel
	if err := p.db.Where("status <> ?", model.ProjectStatusDraft).Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("获取项目列表失败: %w", err)
	}
	return projects, nil
}

// UpdateStatus 项目状态流转，项目经理只能操作自己的项目
func (p *ProjectLogic) UpdateStatus(principal Principal, id string, next model.ProjectStatus) (*model.ProjectModel, error) {
	if !next.Valid() {
		return nil, newValidationError("status", "unknown project status")
	}

	var project model.ProjectModel
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := findOne(forUpdate(tx), &project, "project", "id = ?", id); err != nil {
			return err
		}
		if !canManageProject(principal, &project) {
			return ErrForbidden
		}
		if !project.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: project %s -> %s", ErrInvalidTransition, project.Status, next)
		}
		if err := tx.Model(&project).Update("status", next).Error; err != nil {
			return fmt.Errorf("更新项目状态失败: %w", err)
		}
		project.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Project %s moved to %s by %s", project.Id, next, principal.UserId)
	return &project, nil
}

// canManageProject 管理员可管理所有项目，项目经理只能管理自己的项目
func canManageProject(principal Principal, project *model.ProjectModel) bool {
	switch principal.Role {
	case model.RoleAdmin:
		return true
	case model.RoleProjectManager:
		return project.ManagerId == principal.UserId
	}
	return false
}

// FundsAudit 资金审计结果
type FundsAudit struct {
	ProjectId           string          `json:"project_id"`
	StoredFundsRaised   decimal.Decimal `json:"stored_funds_raised"`
	ConfirmedSum        decimal.Decimal `json:"confirmed_sum"`
	StoredInvestorCount int64           `json:"stored_investor_count"`
	ConfirmedInvestors  int64           `json:"confirmed_investors"`
	Consistent          bool            `json:"consistent"`
}

// AuditFunds 根据已确认投资重新计算募资额和投资人数，与存储的汇总值比对。
// 不一致时只记录日志和指标，不自动修正。
func (p *ProjectLogic) AuditFunds(projectId string) (*FundsAudit, error) {
	var project model.ProjectModel
	var sum decimal.Decimal
	var investors int64

	// 锁住项目行，与投资确认串行
	err := p.db.Transaction(func(tx *gorm.DB) error {
		if err := findOne(forUpdate(tx), &project, "project", "id = ?", projectId); err != nil {
			return err
		}

		var amounts []decimal.Decimal
		if err := tx.Model(&model.InvestmentModel{}).
			Where("project_id = ? AND status = ?", projectId, model.InvestmentStatusConfirmed).
			Pluck("amount", &amounts).Error; err != nil {
			return fmt.Errorf("获取已确认投资失败: %w", err)
		}
		sum = decimal.Zero
		for _, a := range amounts {
			sum = sum.Add(a)
		}

		if err := tx.Model(&model.InvestmentModel{}).
			Where("project_id = ? AND status = ?", projectId, model.InvestmentStatusConfirmed).
			Distinct("investor_id").
			Count(&investors).Error; err != nil {
			return fmt.Errorf("获取投资人数失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit := &FundsAudit{
		ProjectId:           projectId,
		StoredFundsRaised:   project.FundsRaised,
		ConfirmedSum:        sum,
		StoredInvestorCount: project.InvestorCount,
		ConfirmedInvestors:  investors,
	}
	audit.Consistent = audit.StoredFundsRaised.Equal(sum) && audit.StoredInvestorCount == investors
	if !audit.Consistent {
		metrics.FundsAuditDivergences.Inc()
		logger.Warn("Funds divergence on project %s: stored %s/%d, confirmed %s/%d",
			projectId, project.FundsRaised, project.InvestorCount, sum, investors)
	}
	return audit, nil
}

// ProjectStats 项目统计
type ProjectStats struct {
	Project             *model.ProjectModel `json:"project"`
	FundingProgress     decimal.Decimal     `json:"funding_progress"` // 百分比
	PendingInvestments  int64               `json:"pending_investments"`
	MilestonesTotal     int64               `json:"milestones_total"`
	MilestonesCompleted int64               `json:"milestones_completed"`
	Audit               *FundsAudit         `json:"audit"`
}

// GetProjectStats 获取项目统计信息
func (p *ProjectLogic) GetProjectStats(projectId string) (*ProjectStats, error) {
	audit, err := p.AuditFunds(projectId)
	if err != nil {
		return nil, err
	}
	project, err := p.GetProject(projectId)
	if err != nil {
		return nil, err
	}

	stats := &ProjectStats{Project: project, Audit: audit}
	if project.FundingGoal.IsPositive() {
		stats.FundingProgress = project.FundsRaised.Div(project.FundingGoal).Mul(decimal.NewFromInt(100)).Round(2)
	}

	if err := p.db.Model(&model.InvestmentModel{}).
		Where("project_id = ? AND status = ?", projectId, model.InvestmentStatusPending).
		Count(&stats.PendingInvestments).Error; err != nil {
		return nil, fmt.Errorf("获取待确认投资数失败: %w", err)
	}
	if err := p.db.Model(&model.MilestoneModel{}).
		Where("project_id = ?", projectId).
		Count(&stats.MilestonesTotal).Error; err != nil {
		return nil, fmt.Errorf("获取里程碑总数失败: %w", err)
	}
	if err := p.db.Model(&model.MilestoneModel{}).
		Where("project_id = ? AND status = ?", projectId, model.MilestoneStatusCompleted).
		Count(&stats.MilestonesCompleted).Error; err != nil {
		return nil, fmt.Errorf("获取已完成里程碑数失败: %w", err)
	}
	return stats, nil
}
