package task

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/infrachain/server/internal/logger"
)

// EventRetrier 由 monitor.EventMonitor 实现
type EventRetrier interface {
	RetryFailed(ctx context.Context, limit int) (int, error)
}

// EventRetryJob 重新处理之前失败的链上事件，例如事件早于用户注册到达
type EventRetryJob struct {
	retrier   EventRetrier
	interval  time.Duration
	batchSize int
}

// NewEventRetryJob 创建链上事件重试任务
func NewEventRetryJob(retrier EventRetrier, interval time.Duration, batchSize int) *EventRetryJob {
	return &EventRetryJob{retrier: retrier, interval: interval, batchSize: batchSize}
}

// GetName 获取任务名称
func (j *EventRetryJob) GetName() string {
	return "chain_event_retry"
}

// GetSchedule 获取调度配置
func (j *EventRetryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute 执行任务
func (j *EventRetryJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.interval)
	defer cancel()

	n, err := j.retrier.RetryFailed(ctx, j.batchSize)
	if err != nil {
		logger.Error("Chain event retry failed: %v", err)
		return
	}
	if n > 0 {
		logger.Info("Reprocessed %d chain events", n)
	}
}
