package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/infrachain/server/internal/config"
	"github.com/infrachain/server/internal/logger"
)

// Backend 适配器依赖的节点接口，*ethclient.Client 满足该接口
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

// Options 适配器运行参数
type Options struct {
	ChainType     string
	ChainId       int64
	ReadTimeout   time.Duration
	PollInterval  time.Duration
	BatchSize     uint64
	Confirmations uint64
}

// OptionsFromConfig 从链配置生成运行参数
func OptionsFromConfig(cfg config.ChainConfig) Options {
	opts := Options{
		ChainType:    cfg.ChainType,
		ChainId:      cfg.ChainId,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		PollInterval: cfg.PollIntervalDuration(),
	}
	if cfg.BatchSize > 0 {
		opts.BatchSize = uint64(cfg.BatchSize)
	}
	if cfg.Confirmations > 0 {
		opts.Confirmations = uint64(cfg.Confirmations)
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Second
	}
	if o.BatchSize == 0 {
		o.BatchSize = 500
	}
	return o
}

// Adapter 链适配器。不可用状态下所有读取返回 ErrContractUnavailable。
type Adapter struct {
	mu        sync.RWMutex
	backend   Backend
	contracts map[string]*Contract // 合约映射: "contractName" -> Contract
	opts      Options
	reason    string // 不可用原因
}

var supportedChainTypes = []string{"ethereum", "polygon", "bsc", "arbitrum", "optimism"}

// NewAdapter 按配置创建适配器，不会失败：连接或合约初始化失败时返回不可用状态的适配器
func NewAdapter(cfg config.ChainConfig) *Adapter {
	opts := OptionsFromConfig(cfg)
	logger.Info("Initializing chain adapter (type: %s, id: %d)", cfg.ChainType, cfg.ChainId)

	client, err := dialClient(cfg, opts.ReadTimeout)
	if err != nil {
		logger.Warn("Chain adapter unavailable: %v", err)
		return newUnavailable(opts, err.Error())
	}

	contracts := initContracts(cfg)
	if len(contracts) == 0 {
		client.Close()
		logger.Warn("Chain adapter unavailable: no enabled contracts configured")
		return newUnavailable(opts, "no enabled contracts configured")
	}

	logger.Info("Chain adapter ready with %d contracts", len(contracts))
	return NewAdapterWithBackend(client, contracts, opts)
}

// NewAdapterWithBackend 使用指定节点创建可用的适配器
func NewAdapterWithBackend(backend Backend, contracts map[string]*Contract, opts Options) *Adapter {
	return &Adapter{
		backend:   backend,
		contracts: contracts,
		opts:      opts.withDefaults(),
	}
}

func newUnavailable(opts Options, reason string) *Adapter {
	return &Adapter{
		contracts: make(map[string]*Contract),
		opts:      opts,
		reason:    reason,
	}
}

// dialClient 创建并测试节点连接
func dialClient(cfg config.ChainConfig, timeout time.Duration) (*ethclient.Client, error) {
	if cfg.RpcUrl == "" {
		return nil, fmt.Errorf("no RPC URL configured")
	}

	isSupported := false
	for _, supportedType := range supportedChainTypes {
		if cfg.ChainType == supportedType {
			isSupported = true
			break
		}
	}
	if !isSupported {
		return nil, fmt.Errorf("unsupported chain type %s, supported types: %v", cfg.ChainType, supportedChainTypes)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RpcUrl, err)
	}

	// 测试连接
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("client connection test failed (%s): %w", cfg.ChainType, err)
	}
	return client, nil
}

// initContracts 初始化所有启用的合约，失败的合约被跳过
func initContracts(cfg config.ChainConfig) map[string]*Contract {
	contracts := make(map[string]*Contract)
	for contractName, contractCfg := range cfg.Contracts {
		if !contractCfg.Enabled {
			logger.Info("Skipping disabled contract: %s", contractName)
			continue
		}

		contract, err := NewContract(contractName, contractCfg, cfg.ChainId)
		if err != nil {
			logger.Error("Failed to create contract %s: %v", contractName, err)
			continue
		}
		contracts[contractName] = contract
		logger.Info("Initialized contract: %s (address: %s)", contractName, contractCfg.Address)
	}
	return contracts
}

// Available 适配器是否可用
func (a *Adapter) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend != nil
}

// GetContract 获取指定合约，不存在时返回 ErrContractUnavailable
func (a *Adapter) GetContract(contractName string) (*Contract, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractUnavailable, a.reason)
	}
	contract, exists := a.contracts[contractName]
	if !exists {
		return nil, fmt.Errorf("%w: contract %s not configured", ErrContractUnavailable, contractName)
	}
	return contract, nil
}

// getBackend 获取节点
func (a *Adapter) getBackend() (Backend, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrContractUnavailable, a.reason)
	}
	return a.backend, nil
}

// ContractStatus 单个合约状态
type ContractStatus struct {
	Address  string `json:"address"`
	BlockNum int64  `json:"block_num"`
	Events   bool   `json:"events"`
}

// Status 适配器状态
type Status struct {
	Available bool                      `json:"available"`
	Reason    string                    `json:"reason,omitempty"`
	ChainType string                    `json:"chain_type"`
	ChainId   int64                     `json:"chain_id"`
	HeadBlock uint64                    `json:"head_block,omitempty"`
	Contracts map[string]ContractStatus `json:"contracts"`
}

// Status 获取适配器状态，节点读取失败时标记为不可用但不返回错误
func (a *Adapter) Status(ctx context.Context) Status {
	a.mu.RLock()
	status := Status{
		Available: a.backend != nil,
		Reason:    a.reason,
		ChainType: a.opts.ChainType,
		ChainId:   a.opts.ChainId,
		Contracts: make(map[string]ContractStatus, len(a.contracts)),
	}
	for name, contract := range a.contracts {
		status.Contracts[name] = ContractStatus{
			Address:  NormalizeAddress(contract.GetAddress()),
			BlockNum: contract.GetBlockNum(),
			Events:   contract.HasEvents(),
		}
	}
	a.mu.RUnlock()

	if !status.Available {
		return status
	}

	head, err := a.HeadBlock(ctx)
	if err != nil {
		status.Available = false
		status.Reason = err.Error()
		return status
	}
	status.HeadBlock = head
	return status
}

// Close 关闭节点连接，之后适配器处于不可用状态
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.backend != nil {
		a.backend.Close()
		a.backend = nil
		a.reason = "adapter closed"
	}
	logger.Info("Chain adapter closed")
}
