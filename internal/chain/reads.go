package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/infrachain/server/internal/metrics"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
)

// OnChainProject 合约中的项目信息
type OnChainProject struct {
	ProjectId      int64           `json:"project_id"`
	Name           string          `json:"name"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	FundsRaised    decimal.Decimal `json:"funds_raised"`
	FundsReleased  decimal.Decimal `json:"funds_released"`
	InterestRate   decimal.Decimal `json:"interest_rate"` // 年化百分比，链上为基点
	DurationMonths int64           `json:"duration_months"`
	IsActive       bool            `json:"is_active"`
}

// OnChainMilestone 合约中的里程碑信息
type OnChainMilestone struct {
	ProjectId      int64           `json:"project_id"`
	Index          int             `json:"index"`
	Description    string          `json:"description"`
	FundsToRelease decimal.Decimal `json:"funds_to_release"`
	IsCompleted    bool            `json:"is_completed"`
	EvidenceHash   string          `json:"evidence_hash,omitempty"`
	VerifiedBy     string          `json:"verified_by,omitempty"`
}

// TxResult 交易回执查询结果
type TxResult struct {
	Hash        string                 `json:"hash"`
	Status      model.InvestmentStatus `json:"status"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
	From        string                 `json:"from,omitempty"`
	To          string                 `json:"to,omitempty"`
	GasUsed     *uint64                `json:"gas_used,omitempty"`
}

// call 在读取超时内调用合约方法并记录指标
func (a *Adapter) call(ctx context.Context, contractName, method string, args ...interface{}) ([]interface{}, error) {
	contract, err := a.GetContract(contractName)
	if err != nil {
		return nil, err
	}
	backend, err := a.getBackend()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.ReadTimeout)
	defer cancel()

	start := time.Now()
	values, err := contract.Call(ctx, backend, method, args...)
	metrics.ObserveChainRead(method, start, err)
	return values, err
}

// GetProject 读取链上项目
func (a *Adapter) GetProject(ctx context.Context, projectId int64) (*OnChainProject, error) {
	if projectId < 0 {
		return nil, fmt.Errorf("%w: negative project id", ErrInvalidInput)
	}
	values, err := a.call(ctx, BondContract, "getProject", big.NewInt(projectId))
	if err != nil {
		return nil, err
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("%w: getProject returned %d values", ErrChainRead, len(values))
	}

	name, ok1 := values[0].(string)
	goal, ok2 := values[1].(*big.Int)
	raised, ok3 := values[2].(*big.Int)
	released, ok4 := values[3].(*big.Int)
	rate, ok5 := values[4].(*big.Int)
	duration, ok6 := values[5].(*big.Int)
	active, ok7 := values[6].(bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return nil, fmt.Errorf("%w: unexpected getProject output types", ErrChainRead)
	}

	return &OnChainProject{
		ProjectId:      projectId,
		Name:           name,
		FundingGoal:    FromBaseUnits(goal, DefaultDecimals),
		FundsRaised:    FromBaseUnits(raised, DefaultDecimals),
		FundsReleased:  FromBaseUnits(released, DefaultDecimals),
		InterestRate:   FromBaseUnits(rate, 2),
		DurationMonths: duration.Int64(),
		IsActive:       active,
	}, nil
}

// GetMilestone 读取链上里程碑
func (a *Adapter) GetMilestone(ctx context.Context, projectId int64, index int) (*OnChainMilestone, error) {
	if projectId < 0 || index < 0 {
		return nil, fmt.Errorf("%w: negative project id or milestone index", ErrInvalidInput)
	}
	values, err := a.call(ctx, BondContract, "getMilestone", big.NewInt(projectId), big.NewInt(int64(index)))
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("%w: getMilestone returned %d values", ErrChainRead, len(values))
	}

	description, ok1 := values[0].(string)
	funds, ok2 := values[1].(*big.Int)
	completed, ok3 := values[2].(bool)
	evidence, ok4 := values[3].(string)
	verifier, ok5 := values[4].(common.Address)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, fmt.Errorf("%w: unexpected getMilestone output types", ErrChainRead)
	}

	m := &OnChainMilestone{
		ProjectId:      projectId,
		Index:          index,
		Description:    description,
		FundsToRelease: FromBaseUnits(funds, DefaultDecimals),
		IsCompleted:    completed,
		EvidenceHash:   evidence,
	}
	if verifier != (common.Address{}) {
		m.VerifiedBy = NormalizeAddress(verifier)
	}
	return m, nil
}

// GetAccruedInterest 读取投资者在项目上的应计利息
func (a *Adapter) GetAccruedInterest(ctx context.Context, address string, projectId int64) (decimal.Decimal, error) {
	if !IsValidAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: malformed address %q", ErrInvalidInput, address)
	}
	if projectId < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative project id", ErrInvalidInput)
	}
	values, err := a.call(ctx, BondContract, "getAccruedInterest", common.HexToAddress(address), big.NewInt(projectId))
	if err != nil {
		return decimal.Zero, err
	}
	accrued, ok := firstBig(values)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unexpected getAccruedInterest output", ErrChainRead)
	}
	return FromBaseUnits(accrued, DefaultDecimals), nil
}

// GetTokenBalance 读取债券代币余额，按代币自身精度换算
func (a *Adapter) GetTokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !IsValidAddress(address) {
		return decimal.Zero, fmt.Errorf("%w: malformed address %q", ErrInvalidInput, address)
	}
	values, err := a.call(ctx, TokenContract, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, err
	}
	balance, ok := firstBig(values)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unexpected balanceOf output", ErrChainRead)
	}
	return FromBaseUnits(balance, a.tokenDecimals(ctx)), nil
}

// tokenDecimals 读取代币精度，失败时使用默认精度
func (a *Adapter) tokenDecimals(ctx context.Context) int32 {
	values, err := a.call(ctx, TokenContract, "decimals")
	if err != nil || len(values) != 1 {
		return DefaultDecimals
	}
	d, ok := values[0].(uint8)
	if !ok {
		return DefaultDecimals
	}
	return int32(d)
}

func firstBig(values []interface{}) (*big.Int, bool) {
	if len(values) != 1 {
		return nil, false
	}
	v, ok := values[0].(*big.Int)
	return v, ok
}

// HeadBlock 获取最新区块号
func (a *Adapter) HeadBlock(ctx context.Context) (uint64, error) {
	backend, err := a.getBackend()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.opts.ReadTimeout)
	defer cancel()

	start := time.Now()
	head, err := backend.BlockNumber(ctx)
	metrics.ObserveChainRead("blockNumber", start, err)
	if err != nil {
		return 0, fmt.Errorf("%w: block number: %v", ErrChainRead, err)
	}
	return head, nil
}

// VerifyTransaction 查询交易回执。回执不存在时返回 pending，不视为错误。
func (a *Adapter) VerifyTransaction(ctx context.Context, hash string) (*TxResult, error) {
	if !IsValidTxHash(hash) {
		return nil, fmt.Errorf("%w: malformed transaction hash %q", ErrInvalidInput, hash)
	}
	backend, err := a.getBackend()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.ReadTimeout)
	defer cancel()

	txHash := common.HexToHash(hash)
	result := &TxResult{Hash: NormalizeHash(hash), Status: model.InvestmentStatusPending}

	start := time.Now()
	receipt, err := backend.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		metrics.ObserveChainRead("transactionReceipt", start, nil)
		return result, nil
	}
	metrics.ObserveChainRead("transactionReceipt", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt %s: %v", ErrChainRead, hash, err)
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		result.Status = model.InvestmentStatusConfirmed
	} else {
		result.Status = model.InvestmentStatusFailed
	}
	if receipt.BlockNumber != nil && receipt.BlockNumber.IsUint64() {
		blockNumber := receipt.BlockNumber.Uint64()
		result.BlockNumber = &blockNumber
	}
	gasUsed := receipt.GasUsed
	result.GasUsed = &gasUsed

	// 发送方和接收方只是补充信息，查询失败不影响结果
	tx, _, err := backend.TransactionByHash(ctx, txHash)
	if err == nil && tx != nil {
		if to := tx.To(); to != nil {
			result.To = NormalizeAddress(*to)
		}
		if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
			result.From = NormalizeAddress(from)
		}
	}

	return result, nil
}
