package logic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MilestoneLogic 里程碑业务逻辑
type MilestoneLogic struct {
	db *gorm.DB
}

// NewMilestoneLogic 创建里程碑业务逻辑
func NewMilestoneLogic(db *gorm.DB) *MilestoneLogic {
	return &MilestoneLogic{db: db}
}

// CreateMilestoneInput 创建里程碑参数，MilestoneIndex 为空时取下一个下标
type CreateMilestoneInput struct {
	ProjectId      string
	MilestoneIndex *int
	Title          string
	Description    string
	FundsToRelease decimal.Decimal
	TargetDate     *time.Time
}

// CreateMilestone 创建里程碑
func (m *MilestoneLogic) CreateMilestone(principal Principal, in CreateMilestoneInput) (*model.MilestoneModel, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, newValidationError("title", "must not be empty")
	}
	if in.FundsToRelease.IsNegative() {
		return nil, newValidationError("funds_to_release", "must not be negative")
	}
	if in.MilestoneIndex != nil && *in.MilestoneIndex < 0 {
		return nil, newValidationError("milestone_index", "must not be negative")
	}

	var milestone *model.MilestoneModel
	err := m.db.Transaction(func(tx *gorm.DB) error {
		var project model.ProjectModel
		if err := findOne(forUpdate(tx), &project, "project", "id = ?", in.ProjectId); err != nil {
			return err
		}
		if !canManageProject(principal, &project) {
			return ErrForbidden
		}

		index := 0
		if in.MilestoneIndex != nil {
			index = *in.MilestoneIndex
		} else {
			var maxIndex sql.NullInt64
			if err := tx.Model(&model.MilestoneModel{}).
				Where("project_id = ?", in.ProjectId).
				Select("MAX(milestone_index)").
				Scan(&maxIndex).Error; err != nil {
				return fmt.Errorf("获取里程碑下标失败: %w", err)
			}
			if maxIndex.Valid {
				index = int(maxIndex.Int64) + 1
			}
		}

		milestone = &model.MilestoneModel{
			ProjectId:      in.ProjectId,
			MilestoneIndex: index,
			Title:          strings.TrimSpace(in.Title),
			Description:    in.Description,
			FundsToRelease: in.FundsToRelease,
			TargetDate:     in.TargetDate,
			Status:         model.MilestoneStatusPending,
		}
		return tx.Create(milestone).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("milestone index for project: %w", ErrAlreadyExists)
		}
		return nil, err
	}
	return milestone, nil
}

// ListProjectMilestones 按下标获取项目的里程碑
func (m *MilestoneLogic) ListProjectMilestones(projectId string) ([]model.MilestoneModel, error) {
	var milestones []model.MilestoneModel
	if err := m.db.Where("project_id = ?", projectId).Order("milestone_index ASC").Find(&milestones).Error; err != nil {
		return nil, fmt.Errorf("获取里程碑列表失败: %w", err)
	}
	return milestones, nil
}

// UpdateMilestoneInput 更新里程碑参数，nil 表示不修改
type UpdateMilestoneInput struct {
	Title        *string
	Description  *string
	TargetDate   *time.Time
	Status       *model.MilestoneStatus
	EvidenceHash *string
	VerifiedBy   *string
}

// UpdateMilestone 更新里程碑。证明哈希和核验人必须同时提供；完成状态要求两者都已填写。
func (m *MilestoneLogic) UpdateMilestone(principal Principal, id string, in UpdateMilestoneInput) (*model.MilestoneModel, error) {
	evidenceSet := in.EvidenceHash != nil && strings.TrimSpace(*in.EvidenceHash) != ""
	verifierSet := in.VerifiedBy != nil && strings.TrimSpace(*in.VerifiedBy) != ""
	if evidenceSet != verifierSet {
		return nil, ErrIncompleteEvidence
	}
	if verifierSet && !chain.IsValidAddress(*in.VerifiedBy) {
		return nil, newValidationError("verified_by", "malformed address")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, newValidationError("status", "unknown milestone status")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, newValidationError("title", "must not be empty")
	}

	var milestone model.MilestoneModel
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := findOne(forUpdate(tx), &milestone, "milestone", "id = ?", id); err != nil {
			return err
		}
		var project model.ProjectModel
		if err := findOne(forUpdate(tx), &project, "project", "id = ?", milestone.ProjectId); err != nil {
			return err
		}
		if !principal.HasRole(model.RoleAdmin, model.RoleAuditor) && !canManageProject(principal, &project) {
			return ErrForbidden
		}
		if evidenceSet && milestone.Status.IsTerminal() {
			return fmt.Errorf("%w: milestone is %s, evidence is frozen", ErrInvalidTransition, milestone.Status)
		}

		updates := map[string]interface{}{}
		if in.Title != nil {
			milestone.Title = strings.TrimSpace(*in.Title)
			updates["title"] = milestone.Title
		}
		if in.Description != nil {
			milestone.Description = *in.Description
			updates["description"] = milestone.Description
		}
		if in.TargetDate != nil {
			milestone.TargetDate = in.TargetDate
			updates["target_date"] = milestone.TargetDate
		}
		if evidenceSet {
			milestone.EvidenceHash = strings.TrimSpace(*in.EvidenceHash)
			milestone.VerifiedBy = strings.ToLower(*in.VerifiedBy)
			updates["evidence_hash"] = milestone.EvidenceHash
			updates["verified_by"] = milestone.VerifiedBy
		}

		completing := false
		if in.Status != nil && *in.Status != milestone.Status {
			if !milestone.Status.CanTransitionTo(*in.Status) {
				return fmt.Errorf("%w: milestone %s -> %s", ErrInvalidTransition, milestone.Status, *in.Status)
			}
			if *in.Status == model.MilestoneStatusCompleted {
				if milestone.EvidenceHash == "" || milestone.VerifiedBy == "" {
					return ErrIncompleteEvidence
				}
				completing = true
			}
			milestone.Status = *in.Status
			updates["status"] = milestone.Status
		}

		if len(updates) == 0 {
			return nil
		}
		if completing {
			now := time.Now().UTC()
			milestone.CompletedAt = &now
			updates["completed_at"] = milestone.CompletedAt
		}
		if err := tx.Model(&milestone).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新里程碑失败: %w", err)
		}
		if completing {
			return releaseFunds(tx, &project, &milestone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &milestone, nil
}

// releaseFunds 里程碑完成时累加项目已释放资金并通知项目经理
func releaseFunds(tx *gorm.DB, project *model.ProjectModel, milestone *model.MilestoneModel) error {
	if milestone.FundsToRelease.IsPositive() {
		if err := tx.Model(project).Update("funds_released", project.FundsReleased.Add(milestone.FundsToRelease)).Error; err != nil {
			return fmt.Errorf("更新已释放资金失败: %w", err)
		}
	}
	return notify(tx, project.ManagerId, model.NotificationMilestoneCompleted,
		"Milestone completed",
		fmt.Sprintf("Milestone %d (%s) of %s is completed.", milestone.MilestoneIndex, milestone.Title, project.Name),
		milestone.Id)
}

// CompleteFromChain 处理链上 MilestoneCompleted 事件，可从任一非终态直接完成
func (m *MilestoneLogic) CompleteFromChain(ctx context.Context, ev chain.Event) (*model.MilestoneModel, error) {
	if ev.EvidenceHash == "" || ev.Verifier == "" {
		return nil, ErrIncompleteEvidence
	}

	var milestone model.MilestoneModel
	var changed bool
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project model.ProjectModel
		if err := findOne(forUpdate(tx), &project, "project", "chain_project_id = ?", ev.ChainProjectId); err != nil {
			return err
		}
		if err := findOne(forUpdate(tx), &milestone, "milestone", "project_id = ? AND milestone_index = ?", project.Id, ev.MilestoneIndex); err != nil {
			return err
		}

		switch milestone.Status {
		case model.MilestoneStatusCompleted:
			return nil
		case model.MilestoneStatusFailed:
			return fmt.Errorf("%w: milestone %d already failed", ErrInvalidTransition, milestone.MilestoneIndex)
		}

		completedAt := ev.Timestamp
		if completedAt.IsZero() {
			completedAt = time.Now().UTC()
		}
		milestone.Status = model.MilestoneStatusCompleted
		milestone.EvidenceHash = ev.EvidenceHash
		milestone.VerifiedBy = ev.Verifier
		milestone.CompletedAt = &completedAt
		if err := tx.Model(&milestone).Updates(map[string]interface{}{
			"status":        milestone.Status,
			"evidence_hash": milestone.EvidenceHash,
			"verified_by":   milestone.VerifiedBy,
			"completed_at":  milestone.CompletedAt,
		}).Error; err != nil {
			return fmt.Errorf("更新里程碑失败: %w", err)
		}

		if err := recordChainTransaction(tx, &model.TransactionModel{
			ProjectId:       &project.Id,
			Type:            model.TransactionTypeMilestoneCompletion,
			TransactionHash: ev.TxHash,
			FromAddress:     ev.Verifier,
			ToAddress:       ev.ContractAddress,
			Amount:          milestone.FundsToRelease,
			Status:          model.InvestmentStatusConfirmed,
			BlockNumber:     &ev.BlockNumber,
		}); err != nil {
			return err
		}

		changed = true
		return releaseFunds(tx, &project, &milestone)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		logger.Info("Milestone %d of chain project %d completed on chain (tx %s)", ev.MilestoneIndex, ev.ChainProjectId, ev.TxHash)
	}
	return &milestone, nil
}

// recordChainTransaction 写入已确认的链上交易记录，哈希已存在时跳过
func recordChainTransaction(tx *gorm.DB, record *model.TransactionModel) error {
	var count int64
	if err := tx.Model(&model.TransactionModel{}).Where("transaction_hash = ?", record.TransactionHash).Count(&count).Error; err != nil {
		return fmt.Errorf("检查交易哈希失败: %w", err)
	}
	if count > 0 {
		return nil
	}
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("创建交易记录失败: %w", err)
	}
	return nil
}
