package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/metrics"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxVerifier 交易回执查询，由 chain.Adapter 实现
type TxVerifier interface {
	VerifyTransaction(ctx context.Context, hash string) (*chain.TxResult, error)
}

// InvestmentLogic 投资业务逻辑
type InvestmentLogic struct {
	db       *gorm.DB
	verifier TxVerifier
}

// NewInvestmentLogic 创建投资业务逻辑
func NewInvestmentLogic(db *gorm.DB, verifier TxVerifier) *InvestmentLogic {
	return &InvestmentLogic{db: db, verifier: verifier}
}

// SubmitInvestment 记录客户端提交的投资交易，状态为 pending
func (i *InvestmentLogic) SubmitInvestment(principal Principal, projectId string, amount decimal.Decimal, txHash string) (*model.InvestmentModel, error) {
	if !principal.HasRole(model.RoleInvestor) {
		return nil, ErrForbidden
	}
	if !chain.IsValidTxHash(txHash) {
		return nil, newValidationError("transaction_hash", "must be 0x followed by 64 hex characters")
	}
	if !amount.IsPositive() {
		return nil, newValidationError("amount", "must be positive")
	}
	txHash = chain.NormalizeHash(txHash)

	investment := &model.InvestmentModel{
		InvestorId:      principal.UserId,
		ProjectId:       projectId,
		Amount:          amount,
		TokensMinted:    decimal.Zero,
		TransactionHash: txHash,
		Status:          model.InvestmentStatusPending,
	}

	err := i.db.Transaction(func(tx *gorm.DB) error {
		var user model.UserModel
		if err := findOne(tx, &user, "user", "id = ?", principal.UserId); err != nil {
			return err
		}
		if !user.IsActive {
			return fmt.Errorf("%w: user is deactivated", ErrForbidden)
		}
		var project model.ProjectModel
		if err := findOne(tx, &project, "project", "id = ?", projectId); err != nil {
			return err
		}
		if project.Status != model.ProjectStatusActive {
			return fmt.Errorf("%w: project is %s, not accepting investments", ErrInvalidTransition, project.Status)
		}
		if err := ensureHashUnused(tx, txHash); err != nil {
			return err
		}
		if err := tx.Create(investment).Error; err != nil {
			return err
		}
		return tx.Create(&model.TransactionModel{
			UserId:          &principal.UserId,
			ProjectId:       &project.Id,
			Type:            model.TransactionTypeInvestment,
			TransactionHash: txHash,
			FromAddress:     principal.WalletAddress,
			Amount:          amount,
			Status:          model.InvestmentStatusPending,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	metrics.InvestmentsSubmitted.Inc()
	logger.Info("Investment %s submitted by %s for project %s (tx %s)", investment.Id, principal.UserId, projectId, txHash)
	return investment, nil
}

// ensureHashUnused 交易哈希不能已被投资或交易记录使用
func ensureHashUnused(tx *gorm.DB, txHash string) error {
	var count int64
	if err := tx.Model(&model.InvestmentModel{}).Where("transaction_hash = ?", txHash).Count(&count).Error; err != nil {
		return fmt.Errorf("检查交易哈希失败: %w", err)
	}
	if count > 0 {
		return ErrDuplicateTransaction
	}
	if err := tx.Model(&model.TransactionModel{}).Where("transaction_hash = ?", txHash).Count(&count).Error; err != nil {
		return fmt.Errorf("检查交易哈希失败: %w", err)
	}
	if count > 0 {
		return ErrDuplicateTransaction
	}
	return nil
}

// GetInvestment 获取投资记录，只有投资者本人、管理员和审计员可查看
func (i *InvestmentLogic) GetInvestment(principal Principal, id string) (*model.InvestmentModel, error) {
	var investment model.InvestmentModel
	if err := findOne(i.db, &investment, "investment", "id = ?", id); err != nil {
		return nil, err
	}
	if investment.InvestorId != principal.UserId && !principal.IsPrivileged() {
		return nil, ErrForbidden
	}
	return &investment, nil
}

// ListMyInvestments 获取投资者自己的投资
func (i *InvestmentLogic) ListMyInvestments(principal Principal, page Page) ([]model.InvestmentModel, int64, error) {
	return i.list(i.db.Where("investor_id = ?", principal.UserId), page)
}

// ListProjectInvestments 获取项目的投资记录，项目经理只能查看自己的项目
func (i *InvestmentLogic) ListProjectInvestments(principal Principal, projectId string, page Page) ([]model.InvestmentModel, int64, error) {
	var project model.ProjectModel
	if err := findOne(i.db, &project, "project", "id = ?", projectId); err != nil {
		return nil, 0, err
	}
	if !principal.IsPrivileged() && !canManageProject(principal, &project) {
		return nil, 0, ErrForbidden
	}
	return i.list(i.db.Where("project_id = ?", projectId), page)
}

func (i *InvestmentLogic) list(query *gorm.DB, page Page) ([]model.InvestmentModel, int64, error) {
	page = page.Normalize()
	var investments []model.InvestmentModel
	var total int64

	query = query.Model(&model.InvestmentModel{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取投资总数失败: %w", err)
	}
	if err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.PageSize).Find(&investments).Error; err != nil {
		return nil, 0, fmt.Errorf("获取投资列表失败: %w", err)
	}
	return investments, total, nil
}

// ListPendingInvestments 获取提交时间早于 olderThan 的待确认投资
func (i *InvestmentLogic) ListPendingInvestments(olderThan time.Time, limit int) ([]model.InvestmentModel, error) {
	var investments []model.InvestmentModel
	if err := i.db.Where("status = ? AND created_at <= ?", model.InvestmentStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("获取待确认投资失败: %w", err)
	}
	return investments, nil
}

// VerifyInvestment 按需查询链上回执并推进投资状态。回执不存在时保持 pending。
func (i *InvestmentLogic) VerifyInvestment(ctx context.Context, id string) (*model.InvestmentModel, error) {
	var investment model.InvestmentModel
	if err := findOne(i.db.WithContext(ctx), &investment, "investment", "id = ?", id); err != nil {
		return nil, err
	}
	if investment.Status.IsTerminal() {
		return &investment, nil
	}

	result, err := i.verifier.VerifyTransaction(ctx, investment.TransactionHash)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case model.InvestmentStatusConfirmed:
		return i.ConfirmInvestment(ctx, id, Confirmation{
			BlockNumber: result.BlockNumber,
			GasUsed:     result.GasUsed,
			From:        result.From,
			To:          result.To,
		})
	case model.InvestmentStatusFailed:
		return i.FailInvestment(ctx, id, "transaction reverted on chain", result.BlockNumber)
	default:
		logger.Debug("Investment %s still pending (tx %s)", id, investment.TransactionHash)
		return &investment, nil
	}
}

// Confirmation 确认投资时的链上信息
type Confirmation struct {
	BlockNumber  *uint64
	GasUsed      *uint64
	From         string
	To           string
	TokensMinted decimal.Decimal // 为零时按投资金额计
	ConfirmedAt  time.Time       // 为零时取当前时间
}

// ConfirmInvestment 在一个事务中确认投资并更新所有汇总值。投资已是终态时不做任何修改。
func (i *InvestmentLogic) ConfirmInvestment(ctx context.Context, id string, c Confirmation) (*model.InvestmentModel, error) {
	var investment *model.InvestmentModel
	var changed bool
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		investment, changed, err = confirmInTx(tx, id, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.InvestmentsReconciled.WithLabelValues(string(model.InvestmentStatusConfirmed)).Inc()
		logger.Info("Investment %s confirmed, %s added to project %s", investment.Id, investment.Amount, investment.ProjectId)
	}
	return investment, nil
}

// confirmInTx 确认投资：锁定投资、项目和用户行，增加募资额、投资人数、用户累计值，
// 更新利息本金和交易记录并发送通知
func confirmInTx(tx *gorm.DB, id string, c Confirmation) (*model.InvestmentModel, bool, error) {
	var investment model.InvestmentModel
	if err := findOne(forUpdate(tx), &investment, "investment", "id = ?", id); err != nil {
		return nil, false, err
	}
	if investment.Status != model.InvestmentStatusPending {
		return &investment, false, nil
	}

	var project model.ProjectModel
	if err := findOne(forUpdate(tx), &project, "project", "id = ?", investment.ProjectId); err != nil {
		return nil, false, err
	}
	var user model.UserModel
	if err := findOne(forUpdate(tx), &user, "user", "id = ?", investment.InvestorId); err != nil {
		return nil, false, err
	}

	// 该投资者在此项目上的首笔确认投资才计入投资人数
	var priorConfirmed int64
	if err := tx.Model(&model.InvestmentModel{}).
		Where("investor_id = ? AND project_id = ? AND status = ?", investment.InvestorId, investment.ProjectId, model.InvestmentStatusConfirmed).
		Count(&priorConfirmed).Error; err != nil {
		return nil, false, fmt.Errorf("统计已确认投资失败: %w", err)
	}

	confirmedAt := c.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now().UTC()
	}
	tokens := c.TokensMinted
	if !tokens.IsPositive() {
		tokens = investment.Amount
	}

	investment.Status = model.InvestmentStatusConfirmed
	investment.BlockNumber = c.BlockNumber
	investment.ConfirmedAt = &confirmedAt
	investment.TokensMinted = tokens
	if err := tx.Model(&investment).Updates(map[string]interface{}{
		"status":        investment.Status,
		"block_number":  investment.BlockNumber,
		"confirmed_at":  investment.ConfirmedAt,
		"tokens_minted": investment.TokensMinted,
	}).Error; err != nil {
		return nil, false, fmt.Errorf("更新投资状态失败: %w", err)
	}

	projectUpdates := map[string]interface{}{
		"funds_raised": project.FundsRaised.Add(investment.Amount),
	}
	if priorConfirmed == 0 {
		projectUpdates["investor_count"] = project.InvestorCount + 1
	}
	if project.Status == model.ProjectStatusActive && project.FundsRaised.Add(investment.Amount).GreaterThanOrEqual(project.FundingGoal) {
		projectUpdates["status"] = model.ProjectStatusFunded
	}
	if err := tx.Model(&project).Updates(projectUpdates).Error; err != nil {
		return nil, false, fmt.Errorf("更新项目募资额失败: %w", err)
	}

	if err := tx.Model(&user).Updates(map[string]interface{}{
		"total_invested": user.TotalInvested.Add(investment.Amount),
		"total_tokens":   user.TotalTokens.Add(tokens),
	}).Error; err != nil {
		return nil, false, fmt.Errorf("更新用户累计投资失败: %w", err)
	}

	if err := addPrincipal(tx, investment.InvestorId, investment.ProjectId, investment.Amount, confirmedAt); err != nil {
		return nil, false, err
	}

	if err := settleTransaction(tx, investment.TransactionHash, model.InvestmentStatusConfirmed, c); err != nil {
		return nil, false, err
	}

	if err := notify(tx, investment.InvestorId, model.NotificationInvestmentConfirmed,
		"Investment confirmed",
		fmt.Sprintf("Your investment of %s in %s is confirmed on chain.", investment.Amount, project.Name),
		investment.Id); err != nil {
		return nil, false, err
	}

	return &investment, true, nil
}

// addPrincipal 增加利息台账本金，不存在时创建
func addPrincipal(tx *gorm.DB, investorId, projectId string, amount decimal.Decimal, at time.Time) error {
	var interest model.InterestModel
	err := forUpdate(tx).Where("investor_id = ? AND project_id = ?", investorId, projectId).First(&interest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		interest = model.InterestModel{
			InvestorId:      investorId,
			ProjectId:       projectId,
			Principal:       amount,
			AccruedAmount:   decimal.Zero,
			ClaimedAmount:   decimal.Zero,
			PendingAmount:   decimal.Zero,
			OverclaimAmount: decimal.Zero,
			AccrualStartAt:  &at,
		}
		if err := tx.Create(&interest).Error; err != nil {
			return fmt.Errorf("创建利息台账失败: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("获取利息台账失败: %w", err)
	}
	if err := tx.Model(&interest).Update("principal", interest.Principal.Add(amount)).Error; err != nil {
		return fmt.Errorf("更新利息本金失败: %w", err)
	}
	return nil
}

// settleTransaction 把交易记录推进到终态
func settleTransaction(tx *gorm.DB, txHash string, status model.TxStatus, c Confirmation) error {
	updates := map[string]interface{}{"status": status}
	if c.BlockNumber != nil {
		updates["block_number"] = *c.BlockNumber
	}
	if c.GasUsed != nil {
		updates["gas_used"] = *c.GasUsed
	}
	if c.From != "" {
		updates["from_address"] = c.From
	}
	if c.To != "" {
		updates["to_address"] = c.To
	}
	if err := tx.Model(&model.TransactionModel{}).
		Where("transaction_hash = ? AND status = ?", txHash, model.InvestmentStatusPending).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("更新交易记录失败: %w", err)
	}
	return nil
}

// FailInvestment 标记投资失败，不修改任何汇总值
func (i *InvestmentLogic) FailInvestment(ctx context.Context, id, reason string, blockNumber *uint64) (*model.InvestmentModel, error) {
	var investment model.InvestmentModel
	var changed bool
	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findOne(forUpdate(tx), &investment, "investment", "id = ?", id); err != nil {
			return err
		}
		if investment.Status != model.InvestmentStatusPending {
			return nil
		}

		investment.Status = model.InvestmentStatusFailed
		investment.FailureReason = reason
		investment.BlockNumber = blockNumber
		if err := tx.Model(&investment).Updates(map[string]interface{}{
			"status":         investment.Status,
			"failure_reason": reason,
			"block_number":   blockNumber,
		}).Error; err != nil {
			return fmt.Errorf("更新投资状态失败: %w", err)
		}
		if err := settleTransaction(tx, investment.TransactionHash, model.InvestmentStatusFailed, Confirmation{BlockNumber: blockNumber}); err != nil {
			return err
		}
		changed = true
		return notify(tx, investment.InvestorId, model.NotificationInvestmentFailed,
			"Investment failed",
			fmt.Sprintf("Your investment transaction %s failed: %s.", investment.TransactionHash, reason),
			investment.Id)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.InvestmentsReconciled.WithLabelValues(string(model.InvestmentStatusFailed)).Inc()
		logger.Info("Investment %s failed: %s", investment.Id, reason)
	}
	return &investment, nil
}

// RecordChainInvestment 处理链上 InvestmentMade 事件。已有对应的待确认投资时确认它；
// 否则在钱包地址和链上项目ID都能对应到记录时新建一笔已确认投资。
func (i *InvestmentLogic) RecordChainInvestment(ctx context.Context, ev chain.Event) (*model.InvestmentModel, error) {
	c := Confirmation{
		BlockNumber:  &ev.BlockNumber,
		From:         ev.Investor,
		To:           ev.ContractAddress,
		TokensMinted: ev.Tokens,
		ConfirmedAt:  ev.Timestamp,
	}

	var existing model.InvestmentModel
	err := i.db.WithContext(ctx).Where("transaction_hash = ?", ev.TxHash).First(&existing).Error
	if err == nil {
		return i.ConfirmInvestment(ctx, existing.Id, c)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("获取投资记录失败: %w", err)
	}

	var investment *model.InvestmentModel
	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project model.ProjectModel
		if err := findOne(tx, &project, "project", "chain_project_id = ?", ev.ChainProjectId); err != nil {
			return err
		}
		var user model.UserModel
		if err := findOne(tx, &user, "user", "wallet_address = ?", ev.Investor); err != nil {
			return err
		}
		if err := ensureHashUnused(tx, ev.TxHash); err != nil {
			return err
		}

		pending := &model.InvestmentModel{
			InvestorId:      user.Id,
			ProjectId:       project.Id,
			Amount:          ev.Amount,
			TokensMinted:    decimal.Zero,
			TransactionHash: ev.TxHash,
			Status:          model.InvestmentStatusPending,
		}
		if err := tx.Create(pending).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.TransactionModel{
			UserId:          &user.Id,
			ProjectId:       &project.Id,
			Type:            model.TransactionTypeInvestment,
			TransactionHash: ev.TxHash,
			FromAddress:     ev.Investor,
			ToAddress:       ev.ContractAddress,
			Amount:          ev.Amount,
			Status:          model.InvestmentStatusPending,
		}).Error; err != nil {
			return err
		}

		var err error
		investment, _, err = confirmInTx(tx, pending.Id, c)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	metrics.InvestmentsReconciled.WithLabelValues(string(model.InvestmentStatusConfirmed)).Inc()
	logger.Info("Recorded on-chain investment %s (tx %s) for project %s", investment.Id, ev.TxHash, investment.ProjectId)
	return investment, nil
}
