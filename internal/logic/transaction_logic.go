package logic

import (
	"fmt"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

// TransactionLogic 链上交易记录查询
type TransactionLogic struct {
	db *gorm.DB
}

// NewTransactionLogic 创建交易记录业务逻辑
func NewTransactionLogic(db *gorm.DB) *TransactionLogic {
	return &TransactionLogic{db: db}
}

// ListMyTransactions 获取用户自己的交易记录
func (t *TransactionLogic) ListMyTransactions(principal Principal, page Page) ([]model.TransactionModel, int64, error) {
	page = page.Normalize()
	var transactions []model.TransactionModel
	var total int64

	query := t.db.Model(&model.TransactionModel{}).Where("user_id = ?", principal.UserId)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取交易总数失败: %w", err)
	}
	if err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.PageSize).Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("获取交易列表失败: %w", err)
	}
	return transactions, total, nil
}

// GetTransactionByHash 根据哈希获取交易记录，只有本人、管理员和审计员可查看
func (t *TransactionLogic) GetTransactionByHash(principal Principal, hash string) (*model.TransactionModel, error) {
	if !chain.IsValidTxHash(hash) {
		return nil, newValidationError("hash", "must be 0x followed by 64 hex characters")
	}
	var transaction model.TransactionModel
	if err := findOne(t.db, &transaction, "transaction", "transaction_hash = ?", chain.NormalizeHash(hash)); err != nil {
		return nil, err
	}
	owner := transaction.UserId != nil && *transaction.UserId == principal.UserId
	if !owner && !principal.IsPrivileged() {
		return nil, ErrForbidden
	}
	return &transaction, nil
}
