package model

// ChainEventModel 已消费的链上事件，(tx_hash, log_index) 用于去重
type ChainEventModel struct {
	BaseModel

	ContractName    string `json:"contract_name" gorm:"not null"`
	ContractAddress string `json:"contract_address" gorm:"type:varchar(42);not null"`
	EventName       string `json:"event_name" gorm:"not null"`
	TxHash          string `json:"tx_hash" gorm:"type:varchar(66);not null;uniqueIndex:idx_chain_event_tx_log"`
	LogIndex        uint   `json:"log_index" gorm:"not null;uniqueIndex:idx_chain_event_tx_log"`
	BlockNumber     uint64 `json:"block_number" gorm:"not null;index"`
	Data            string `json:"data" gorm:"type:text"`
	Processed       bool   `json:"processed" gorm:"not null;default:false"`
	Error           string `json:"error,omitempty" gorm:"type:text"`
}

// TableName 自定义表名
func (ChainEventModel) TableName() string {
	return "chain_event"
}
