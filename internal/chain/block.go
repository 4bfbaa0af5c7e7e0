package chain

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// getBatchBlockLogs 批量获取多个区块的日志，按区块号和日志序号排序
func getBatchBlockLogs(ctx context.Context, backend Backend, contractAddresses []common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: contractAddresses,
	}

	logs, err := backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	return logs, nil
}

// batchRanges 把 [from, to] 按批大小切分
func batchRanges(from, to, batchSize uint64) [][2]uint64 {
	if from > to || batchSize == 0 {
		return nil
	}
	var ranges [][2]uint64
	for start := from; start <= to; start += batchSize {
		end := start + batchSize - 1
		if end > to || end < start {
			end = to
		}
		ranges = append(ranges, [2]uint64{start, end})
		if end == to {
			break
		}
	}
	return ranges
}
