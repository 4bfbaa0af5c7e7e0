package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/infrachain/server/internal/logger"
)

// maxPollFailures 连续失败次数达到该值时关闭事件流，由消费方重新订阅
const maxPollFailures = 5

// Subscribe 订阅合约事件。从 from 和合约部署区块中较大者开始，按批轮询日志，
// 落后链头 confirmations 个区块，按区块和日志顺序发送事件。
// ctx 取消或连续轮询失败时事件流关闭。不可用状态下返回已关闭的事件流和 ErrContractUnavailable。
func (a *Adapter) Subscribe(ctx context.Context, from uint64) (<-chan Event, error) {
	out := make(chan Event)

	backend, err := a.getBackend()
	if err != nil {
		close(out)
		return out, err
	}

	addresses, contractMap, start := a.eventContracts()
	if len(addresses) == 0 {
		close(out)
		logger.Warn("No contracts with events to monitor")
		return out, ErrContractUnavailable
	}
	if from > start {
		start = from
	}

	logger.Info("Subscribing to %d contracts from block %d", len(addresses), start)
	go a.pollLoop(ctx, backend, addresses, contractMap, start, out)
	return out, nil
}

// eventContracts 获取声明了事件的合约地址及最小部署区块
func (a *Adapter) eventContracts() ([]common.Address, map[common.Address]*Contract, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var addresses []common.Address
	contractMap := make(map[common.Address]*Contract)
	var minDeployBlock int64 = -1
	for _, contract := range a.contracts {
		if !contract.HasEvents() {
			continue
		}
		addresses = append(addresses, contract.GetAddress())
		contractMap[contract.GetAddress()] = contract
		if minDeployBlock < 0 || contract.GetBlockNum() < minDeployBlock {
			minDeployBlock = contract.GetBlockNum()
		}
	}
	if minDeployBlock < 0 {
		minDeployBlock = 0
	}
	return addresses, contractMap, uint64(minDeployBlock)
}

// pollLoop 轮询循环
func (a *Adapter) pollLoop(ctx context.Context, backend Backend, addresses []common.Address,
	contractMap map[common.Address]*Contract, next uint64, out chan<- Event) {
	defer close(out)

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		var err error
		next, err = a.pollOnce(ctx, backend, addresses, contractMap, next, out)
		if ctx.Err() != nil {
			logger.Info("Event subscription stopped")
			return
		}
		if err != nil {
			failures++
			logger.Error("Event poll failed (%d/%d): %v", failures, maxPollFailures, err)
			if failures >= maxPollFailures {
				logger.Warn("Closing event stream after %d consecutive failures", failures)
				return
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			logger.Info("Event subscription stopped")
			return
		case <-ticker.C:
		}
	}
}

// pollOnce 处理 next 到安全高度之间的区块，返回下一次的起始区块
func (a *Adapter) pollOnce(ctx context.Context, backend Backend, addresses []common.Address,
	contractMap map[common.Address]*Contract, next uint64, out chan<- Event) (uint64, error) {
	head, err := a.HeadBlock(ctx)
	if err != nil {
		return next, err
	}
	if head < a.opts.Confirmations {
		return next, nil
	}
	safe := head - a.opts.Confirmations

	for _, r := range batchRanges(next, safe, a.opts.BatchSize) {
		logger.Debug("Fetching logs for blocks %d-%d", r[0], r[1])

		readCtx, cancel := context.WithTimeout(ctx, a.opts.ReadTimeout)
		logs, err := getBatchBlockLogs(readCtx, backend, addresses, r[0], r[1])
		cancel()
		if err != nil {
			return next, err
		}

		for _, log := range logs {
			contract := contractMap[log.Address]
			if contract == nil {
				continue
			}
			ev, ok, err := decodeEvent(contract, log)
			if err != nil {
				logger.Warn("Skipping undecodable log %s#%d: %v", log.TxHash.Hex(), log.Index, err)
				continue
			}
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return next, ctx.Err()
			}
		}
		next = r[1] + 1
	}
	return next, nil
}
