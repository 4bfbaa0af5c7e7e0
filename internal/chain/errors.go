package chain

import "errors"

var (
	// ErrContractUnavailable 合约未配置、未部署或节点不可达
	ErrContractUnavailable = errors.New("contract unavailable")
	// ErrChainRead RPC 调用失败或超时
	ErrChainRead = errors.New("chain read failed")
	// ErrInvalidInput 地址或交易哈希格式错误
	ErrInvalidInput = errors.New("invalid input")
)
