package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/model"
	"github.com/panjf2000/ants/v2"
)

// PendingVerifier 由 logic.InvestmentLogic 实现
type PendingVerifier interface {
	ListPendingInvestments(olderThan time.Time, limit int) ([]model.InvestmentModel, error)
	VerifyInvestment(ctx context.Context, id string) (*model.InvestmentModel, error)
}

// Availability 由 chain.Adapter 实现
type Availability interface {
	Available() bool
}

// PendingInvestmentJob 定期查询链上回执，推进超过宽限期仍未确认的投资
type PendingInvestmentJob struct {
	investments PendingVerifier
	chain       Availability
	interval    time.Duration
	grace       time.Duration
	workers     int
	batchSize   int
	timeout     time.Duration
}

// VerifyResult 一次执行的统计
type VerifyResult struct {
	Checked   int
	Confirmed int
	Failed    int
	Pending   int
	Errors    int
}

// NewPendingInvestmentJob 创建待确认投资核验任务
func NewPendingInvestmentJob(investments PendingVerifier, availability Availability,
	interval, grace time.Duration, workers, batchSize int) *PendingInvestmentJob {
	if workers <= 0 {
		workers = 1
	}
	return &PendingInvestmentJob{
		investments: investments,
		chain:       availability,
		interval:    interval,
		grace:       grace,
		workers:     workers,
		batchSize:   batchSize,
		timeout:     interval,
	}
}

// GetName 获取任务名称
func (j *PendingInvestmentJob) GetName() string {
	return "pending_investment_verifier"
}

// GetSchedule 获取调度配置
func (j *PendingInvestmentJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *PendingInvestmentJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	res, err := j.Run(ctx)
	if err != nil {
		logger.Error("Pending investment verification failed: %v", err)
		return
	}
	if res.Checked > 0 {
		logger.Info("Pending investment verification completed: checked %d, confirmed %d, failed %d, pending %d, errors %d",
			res.Checked, res.Confirmed, res.Failed, res.Pending, res.Errors)
	}
}

// Run 并发核验一批待确认投资。链不可用时直接返回。
func (j *PendingInvestmentJob) Run(ctx context.Context) (VerifyResult, error) {
	var res VerifyResult
	if !j.chain.Available() {
		logger.Debug("Chain unavailable, skipping pending investment verification")
		return res, nil
	}

	pending, err := j.investments.ListPendingInvestments(time.Now().Add(-j.grace), j.batchSize)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}

	pool, err := ants.NewPool(j.workers)
	if err != nil {
		return res, err
	}
	defer pool.Release()

	var mu sync.Mutex
	var wg sync.WaitGroup
	record := func(status model.InvestmentStatus, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Checked++
		switch {
		case err != nil:
			res.Errors++
		case status == model.InvestmentStatusConfirmed:
			res.Confirmed++
		case status == model.InvestmentStatusFailed:
			res.Failed++
		default:
			res.Pending++
		}
	}

	for _, inv := range pending {
		id := inv.Id
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			updated, err := j.investments.VerifyInvestment(ctx, id)
			if err != nil {
				if !errors.Is(err, chain.ErrContractUnavailable) {
					logger.Warn("Failed to verify investment %s: %v", id, err)
				}
				record("", err)
				return
			}
			record(updated.Status, nil)
		}); err != nil {
			wg.Done()
			logger.Error("Failed to submit task to pool: %v", err)
			record("", err)
		}
	}
	wg.Wait()
	return res, nil
}
