package task

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
)

// FundsAuditor 由 logic.ProjectLogic 实现
type FundsAuditor interface {
	ListAuditableProjects() ([]model.ProjectModel, error)
	AuditFunds(projectId string) (*logic.FundsAudit, error)
}

// FundsAuditJob 定期按已确认投资核对项目募资额，不一致时只告警
type FundsAuditJob struct {
	projects FundsAuditor
	interval time.Duration
}

// NewFundsAuditJob 创建资金审计任务
func NewFundsAuditJob(projects FundsAuditor, interval time.Duration) *FundsAuditJob {
	return &FundsAuditJob{projects: projects, interval: interval}
}

// GetName 获取任务名称
func (j *FundsAuditJob) GetName() string {
	return "funds_audit"
}

// GetSchedule 获取调度配置
func (j *FundsAuditJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *FundsAuditJob) Execute() {
	audited, divergent, err := j.Run()
	if err != nil {
		logger.Error("Funds audit failed: %v", err)
		return
	}
	logger.Info("Funds audit completed: %d projects, %d divergent", audited, divergent)
}

// Run 审计所有非草稿项目，返回审计数和不一致数
func (j *FundsAuditJob) Run() (int, int, error) {
	projects, err := j.projects.ListAuditableProjects()
	if err != nil {
		return 0, 0, err
	}

	audited, divergent := 0, 0
	for _, project := range projects {
		audit, err := j.projects.AuditFunds(project.Id)
		if err != nil {
			logger.Error("Failed to audit project %s: %v", project.Id, err)
			continue
		}
		audited++
		if !audit.Consistent {
			divergent++
		}
	}
	return audited, divergent, nil
}
