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

// InterestReader 链上应计利息查询，由 chain.Adapter 实现
type InterestReader interface {
	GetAccruedInterest(ctx context.Context, address string, projectId int64) (decimal.Decimal, error)
}

var secondsPerYear = decimal.NewFromInt(365 * 24 * 60 * 60)

// InterestLogic 利息业务逻辑
type InterestLogic struct {
	db     *gorm.DB
	reader InterestReader
	now    func() time.Time
}

// NewInterestLogic 创建利息业务逻辑
func NewInterestLogic(db *gorm.DB, reader InterestReader) *InterestLogic {
	return &InterestLogic{db: db, reader: reader, now: time.Now}
}

// ListMyInterest 获取投资者所有项目的利息台账
func (l *InterestLogic) ListMyInterest(principal Principal) ([]model.InterestModel, error) {
	var rows []model.InterestModel
	if err := l.db.Where("investor_id = ?", principal.UserId).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("获取利息台账失败: %w", err)
	}
	return rows, nil
}

// GetInterest 读取时推进应计利息并持久化。优先使用链上应计值，链不可用时按单利在本地计算。
func (l *InterestLogic) GetInterest(ctx context.Context, principal Principal, projectId string) (*model.InterestModel, error) {
	var project model.ProjectModel
	if err := findOne(l.db.WithContext(ctx), &project, "project", "id = ?", projectId); err != nil {
		return nil, err
	}
	var current model.InterestModel
	if err := findOne(l.db.WithContext(ctx), &current, "interest", "investor_id = ? AND project_id = ?", principal.UserId, projectId); err != nil {
		return nil, err
	}

	now := l.now().UTC()
	accrued, source := l.accruedAmount(ctx, principal.WalletAddress, &project, &current, now)

	var interest model.InterestModel
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findOne(forUpdate(tx), &interest, "interest", "id = ?", current.Id); err != nil {
			return err
		}
		if !interest.Accrue(accrued, now) {
			return nil
		}
		return tx.Model(&interest).Updates(map[string]interface{}{
			"accrued_amount":  interest.AccruedAmount,
			"pending_amount":  interest.PendingAmount,
			"last_accrued_at": interest.LastAccruedAt,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("更新应计利息失败: %w", err)
	}

	logger.Debug("Interest for %s on %s accrued to %s (%s)", principal.UserId, projectId, interest.AccruedAmount, source)
	return &interest, nil
}

// accruedAmount 计算当前应计利息，返回金额和来源
func (l *InterestLogic) accruedAmount(ctx context.Context, wallet string, project *model.ProjectModel,
	row *model.InterestModel, now time.Time) (decimal.Decimal, string) {
	if l.reader != nil && wallet != "" && project.ChainProjectId != nil {
		accrued, err := l.reader.GetAccruedInterest(ctx, wallet, *project.ChainProjectId)
		if err == nil {
			return accrued, "chain"
		}
		if !errors.Is(err, chain.ErrContractUnavailable) {
			logger.Warn("Chain accrual read failed for project %s, using local accrual: %v", project.Id, err)
		}
	}
	return SimpleInterest(row.Principal, project.InterestRateAnnual, row.AccrualStartAt, now), "local"
}

// SimpleInterest 单利：本金 × 年利率/100 × 经过时间/365天
func SimpleInterest(principal, ratePercent decimal.Decimal, since *time.Time, now time.Time) decimal.Decimal {
	if since == nil || !now.After(*since) {
		return decimal.Zero
	}
	elapsed := decimal.NewFromInt(int64(now.Sub(*since) / time.Second))
	return principal.
		Mul(ratePercent).
		Div(decimal.NewFromInt(100)).
		Mul(elapsed).
		Div(secondsPerYear).
		Round(chain.DefaultDecimals)
}

// ApplyClaim 记录一次利息领取。领取金额超过待领取金额时截断到零并标记超领，
// 标记会被保存，同时返回 ErrOverclaimDetected。
func (l *InterestLogic) ApplyClaim(ctx context.Context, investorId, projectId string, amount decimal.Decimal, at time.Time) (*model.InterestModel, error) {
	if !amount.IsPositive() {
		return nil, newValidationError("amount", "must be positive")
	}

	var interest *model.InterestModel
	var excess decimal.Decimal
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		interest, excess, err = applyClaimInTx(tx, investorId, projectId, amount, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return interest, overclaimError(interest, excess)
}

// applyClaimInTx 在调用方事务中应用领取，台账不存在时创建
func applyClaimInTx(tx *gorm.DB, investorId, projectId string, amount decimal.Decimal, at time.Time) (*model.InterestModel, decimal.Decimal, error) {
	var interest model.InterestModel
	err := forUpdate(tx).Where("investor_id = ? AND project_id = ?", investorId, projectId).First(&interest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		interest = model.InterestModel{
			InvestorId:      investorId,
			ProjectId:       projectId,
			Principal:       decimal.Zero,
			AccruedAmount:   decimal.Zero,
			ClaimedAmount:   decimal.Zero,
			PendingAmount:   decimal.Zero,
			OverclaimAmount: decimal.Zero,
		}
		if err := tx.Create(&interest).Error; err != nil {
			return nil, decimal.Zero, fmt.Errorf("创建利息台账失败: %w", err)
		}
	} else if err != nil {
		return nil, decimal.Zero, fmt.Errorf("获取利息台账失败: %w", err)
	}

	excess := interest.Claim(amount, at)
	if err := tx.Model(&interest).Updates(map[string]interface{}{
		"claimed_amount":    interest.ClaimedAmount,
		"pending_amount":    interest.PendingAmount,
		"last_claimed_at":   interest.LastClaimedAt,
		"overclaim_flagged": interest.OverclaimFlagged,
		"overclaim_amount":  interest.OverclaimAmount,
	}).Error; err != nil {
		return nil, decimal.Zero, fmt.Errorf("更新利息台账失败: %w", err)
	}

	if excess.IsPositive() {
		if err := notify(tx, investorId, model.NotificationOverclaimDetected,
			"Interest claim flagged",
			fmt.Sprintf("A claim of %s exceeded your pending interest by %s and was flagged for review.", amount, excess),
			interest.Id); err != nil {
			return nil, decimal.Zero, err
		}
	}
	return &interest, excess, nil
}

func overclaimError(interest *model.InterestModel, excess decimal.Decimal) error {
	if !excess.IsPositive() {
		return nil
	}
	metrics.OverclaimsDetected.Inc()
	logger.Warn("Overclaim detected on interest %s (investor %s, project %s): excess %s",
		interest.Id, interest.InvestorId, interest.ProjectId, excess)
	return fmt.Errorf("%w: excess %s", ErrOverclaimDetected, excess)
}

// RecordChainClaim 处理链上 InterestClaimed 事件：先刷新应计利息，再应用领取并记录交易，按交易哈希去重
func (l *InterestLogic) RecordChainClaim(ctx context.Context, ev chain.Event) (*model.InterestModel, error) {
	var project model.ProjectModel
	if err := findOne(l.db.WithContext(ctx), &project, "project", "chain_project_id = ?", ev.ChainProjectId); err != nil {
		return nil, err
	}
	var user model.UserModel
	if err := findOne(l.db.WithContext(ctx), &user, "user", "wallet_address = ?", ev.Investor); err != nil {
		return nil, err
	}

	var recorded int64
	if err := l.db.WithContext(ctx).Model(&model.TransactionModel{}).Where("transaction_hash = ?", ev.TxHash).Count(&recorded).Error; err != nil {
		return nil, fmt.Errorf("检查交易哈希失败: %w", err)
	}
	if recorded > 0 {
		logger.Debug("Interest claim %s already recorded", ev.TxHash)
		var existing model.InterestModel
		if err := findOne(l.db.WithContext(ctx), &existing, "interest", "investor_id = ? AND project_id = ?", user.Id, project.Id); err != nil {
			return nil, err
		}
		return &existing, nil
	}

	// 领取前先按拉取方式刷新应计利息，避免过期的待领取金额被误判为超领
	if _, err := l.GetInterest(ctx, Principal{UserId: user.Id, Role: user.Role, WalletAddress: ev.Investor}, project.Id); err != nil && !errors.Is(err, ErrNotFound) {
		logger.Warn("Failed to refresh accrual before claim %s: %v", ev.TxHash, err)
	}

	claimedAt := ev.Timestamp
	if claimedAt.IsZero() {
		claimedAt = l.now().UTC()
	}

	var interest *model.InterestModel
	var excess decimal.Decimal
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureHashUnused(tx, ev.TxHash); err != nil {
			return err
		}
		if err := tx.Create(&model.TransactionModel{
			UserId:          &user.Id,
			ProjectId:       &project.Id,
			Type:            model.TransactionTypeInterestClaim,
			TransactionHash: ev.TxHash,
			FromAddress:     ev.ContractAddress,
			ToAddress:       ev.Investor,
			Amount:          ev.Amount,
			Status:          model.InvestmentStatusConfirmed,
			BlockNumber:     &ev.BlockNumber,
		}).Error; err != nil {
			return fmt.Errorf("创建交易记录失败: %w", err)
		}

		var err error
		interest, excess, err = applyClaimInTx(tx, user.Id, project.Id, ev.Amount, claimedAt)
		if err != nil {
			return err
		}
		return notify(tx, user.Id, model.NotificationInterestClaimed,
			"Interest claimed",
			fmt.Sprintf("You claimed %s interest from %s.", ev.Amount, project.Name),
			interest.Id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}
	return interest, overclaimError(interest, excess)
}
