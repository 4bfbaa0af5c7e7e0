package model

import (
	"github.com/shopspring/decimal"
)

// TransactionModel 链上交易审计记录，每个交易哈希一行
type TransactionModel struct {
	BaseModel

	UserId          *string         `json:"user_id" gorm:"type:varchar(36);index"`
	ProjectId       *string         `json:"project_id" gorm:"type:varchar(36);index"`
	Type            TransactionType `json:"type" gorm:"type:varchar(32);not null"`
	TransactionHash string          `json:"transaction_hash" gorm:"type:varchar(66);not null;uniqueIndex"`
	FromAddress     string          `json:"from_address" gorm:"type:varchar(42)"`
	ToAddress       string          `json:"to_address" gorm:"type:varchar(42)"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric(38,18);not null"`
	Status          TxStatus        `json:"status" gorm:"type:varchar(16);not null;index"`
	BlockNumber     *uint64         `json:"block_number"`
	GasUsed         *uint64         `json:"gas_used"`
}

// TableName 自定义表名
func (TransactionModel) TableName() string {
	return "chain_transaction"
}
