package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/infrachain/server/internal/config"
)

// Contract 合约工具类
type Contract struct {
	address  common.Address // 合约地址
	abi      abi.ABI        // 合约ABI
	name     string         // 合约名称
	blockNum int64          // 合约部署的区块号
	chainId  int64          // 链ID
}

// NewContract 创建合约实例。未配置 ABI 文件时按合约名称使用内置 ABI。
func NewContract(name string, contractCfg config.ContractConfig, chainId int64) (*Contract, error) {
	if !common.IsHexAddress(contractCfg.Address) {
		return nil, fmt.Errorf("invalid address %q for contract %s", contractCfg.Address, name)
	}

	parsedABI, err := loadABI(name, contractCfg.ABIPath)
	if err != nil {
		return nil, err
	}

	return &Contract{
		address:  common.HexToAddress(contractCfg.Address),
		abi:      parsedABI,
		name:     name,
		blockNum: contractCfg.BlockNum,
		chainId:  chainId,
	}, nil
}

// loadABI 读取 ABI 文件，支持纯 ABI 数组和带 abi 字段的编译输出
func loadABI(name, path string) (abi.ABI, error) {
	if path == "" {
		builtin, ok := builtinABIs[name]
		if !ok {
			return abi.ABI{}, fmt.Errorf("no abi_path configured and no built-in ABI for contract %s", name)
		}
		return abi.JSON(strings.NewReader(builtin))
	}

	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}

	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsedABI, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsedABI, nil
	}

	parsedABI, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsedABI, nil
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetABI 获取合约ABI
func (c *Contract) GetABI() abi.ABI {
	return c.abi
}

// GetName 获取合约名称
func (c *Contract) GetName() string {
	return c.name
}

// GetBlockNum 获取合约部署区块号
func (c *Contract) GetBlockNum() int64 {
	return c.blockNum
}

// GetChainId 获取链ID
func (c *Contract) GetChainId() int64 {
	return c.chainId
}

// HasEvents 合约 ABI 中是否声明了事件
func (c *Contract) HasEvents() bool {
	return len(c.abi.Events) > 0
}

// Call 调用只读方法并解包返回值。合约地址上没有代码时返回 ErrContractUnavailable。
func (c *Contract) Call(ctx context.Context, caller ethereum.ContractCaller, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.name, method, err)
	}

	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s.%s: %v", ErrChainRead, c.name, method, err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("%w: %s has no code at %s", ErrContractUnavailable, c.name, c.address.Hex())
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s.%s: %v", ErrChainRead, c.name, method, err)
	}
	return values, nil
}

// ParseEvent 解析事件日志，返回事件名和参数。未知事件返回空事件名。
func (c *Contract) ParseEvent(log types.Log) (string, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return "", nil, nil
	}

	event, err := c.abi.EventByID(log.Topics[0])
	if err != nil {
		return "", nil, nil
	}

	result := make(map[string]interface{})

	// 索引参数在 topics 中
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(result, indexed, log.Topics[1:]); err != nil {
			return event.Name, nil, fmt.Errorf("parse topics of %s: %w", event.Name, err)
		}
	}

	// 非索引参数在 data 中
	if len(log.Data) > 0 {
		if err := c.abi.UnpackIntoMap(result, event.Name, log.Data); err != nil {
			return event.Name, nil, fmt.Errorf("unpack data of %s: %w", event.Name, err)
		}
	}

	return event.Name, result, nil
}

// bigArg 从解析结果中取出整数参数
func bigArg(values map[string]interface{}, key string) (*big.Int, error) {
	v, ok := values[key].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("event argument %s missing or not an integer", key)
	}
	return v, nil
}

// addressArg 从解析结果中取出地址参数
func addressArg(values map[string]interface{}, key string) (common.Address, error) {
	v, ok := values[key].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("event argument %s missing or not an address", key)
	}
	return v, nil
}
