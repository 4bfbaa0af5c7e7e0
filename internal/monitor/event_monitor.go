package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/metrics"
	"github.com/infrachain/server/internal/model"
	"gorm.io/gorm"
)

// EventSource 链上事件来源，由 chain.Adapter 实现
type EventSource interface {
	Available() bool
	Subscribe(ctx context.Context, from uint64) (<-chan chain.Event, error)
}

// EventMonitor 区块链事件监控器：消费事件流，落库去重后分发给处理器
type EventMonitor struct {
	source      EventSource
	db          *gorm.DB
	processors  *ProcessorManager
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	baseBackoff time.Duration

	mu         sync.RWMutex // 保护以下状态
	running    bool
	lastBlock  uint64
	processed  uint64
	failed     uint64
	retryCount int
}

// Status 监控状态
type Status struct {
	Running    bool   `json:"running"`
	LastBlock  uint64 `json:"last_block"`
	Processed  uint64 `json:"processed"`
	Failed     uint64 `json:"failed"`
	RetryCount int    `json:"retry_count"`
}

// NewEventMonitor 创建事件监控器
func NewEventMonitor(source EventSource, db *gorm.DB, processors *ProcessorManager) *EventMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventMonitor{
		source:      source,
		db:          db,
		processors:  processors,
		ctx:         ctx,
		cancel:      cancel,
		baseBackoff: 10 * time.Second,
	}
}

// Start 启动监控。链不可用时不启动，也不返回错误。
func (m *EventMonitor) Start() error {
	if !m.source.Available() {
		logger.Warn("Chain adapter unavailable, blockchain event monitor disabled")
		return nil
	}

	logger.Info("Starting blockchain event monitor")
	m.setRunning(true)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.setRunning(false)
		m.loop()
	}()
	return nil
}

// Stop 停止监控并等待循环退出
func (m *EventMonitor) Stop() {
	logger.Info("Stopping blockchain event monitor")
	m.cancel()
	m.wg.Wait()
}

// loop 订阅循环，事件流关闭后退避重订阅
func (m *EventMonitor) loop() {
	for {
		from := m.resumeBlock()
		events, err := m.source.Subscribe(m.ctx, from)
		if errors.Is(err, chain.ErrContractUnavailable) {
			logger.Warn("No contracts to monitor, event monitor exiting: %v", err)
			return
		}
		if err != nil {
			m.handleError(err)
			if !m.sleepBackoff() {
				return
			}
			continue
		}

		received := false
		for ev := range events {
			received = true
			if err := m.HandleEvent(m.ctx, ev); err != nil {
				logger.Error("Error handling %s event in tx %s: %v", ev.Kind, ev.TxHash, err)
			}
		}
		if m.ctx.Err() != nil {
			logger.Info("Monitor stopped")
			return
		}
		if received {
			m.resetRetry()
		}
		m.handleError(errors.New("event stream closed"))
		if !m.sleepBackoff() {
			return
		}
	}
}

// resumeBlock 从已记录的最大区块重新订阅，重复事件由 (tx_hash, log_index) 去重
func (m *EventMonitor) resumeBlock() uint64 {
	var maxProcessedBlock int64
	if err := m.db.Model(&model.ChainEventModel{}).
		Select("COALESCE(MAX(block_number), 0)").
		Scan(&maxProcessedBlock).Error; err != nil {
		logger.Error("Failed to get max processed block number from database: %v", err)
		return 0
	}
	logger.Debug("Max processed block from database: %d", maxProcessedBlock)
	return uint64(maxProcessedBlock)
}

// HandleEvent 记录并处理单个事件。已处理过的事件跳过，处理失败的事件保留错误信息等待重试。
func (m *EventMonitor) HandleEvent(ctx context.Context, ev chain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event data to JSON: %w", err)
	}

	record := &model.ChainEventModel{
		ContractName:    ev.Contract,
		ContractAddress: ev.ContractAddress,
		EventName:       string(ev.Kind),
		TxHash:          ev.TxHash,
		LogIndex:        ev.LogIndex,
		BlockNumber:     ev.BlockNumber,
		Data:            string(data),
	}
	err = m.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		var existing model.ChainEventModel
		if err := m.db.WithContext(ctx).Where("tx_hash = ? AND log_index = ?", ev.TxHash, ev.LogIndex).First(&existing).Error; err != nil {
			return fmt.Errorf("获取链上事件失败: %w", err)
		}
		if existing.Processed {
			metrics.ChainEventsProcessed.WithLabelValues(string(ev.Kind), "duplicate").Inc()
			logger.Debug("Event %s/%d already processed", ev.TxHash, ev.LogIndex)
			return nil
		}
		record = &existing
	} else if err != nil {
		return fmt.Errorf("保存链上事件失败: %w", err)
	}

	return m.process(ctx, record, ev)
}

// process 调用处理器并回写处理结果
func (m *EventMonitor) process(ctx context.Context, record *model.ChainEventModel, ev chain.Event) error {
	procErr := m.safeProcess(ctx, ev)

	updates := map[string]interface{}{"processed": procErr == nil, "error": ""}
	if procErr != nil {
		updates["error"] = procErr.Error()
	}
	if err := m.db.WithContext(ctx).Model(record).Updates(updates).Error; err != nil {
		return fmt.Errorf("更新链上事件状态失败: %w", err)
	}

	m.mu.Lock()
	if ev.BlockNumber > m.lastBlock {
		m.lastBlock = ev.BlockNumber
	}
	if procErr != nil {
		m.failed++
	} else {
		m.processed++
	}
	m.mu.Unlock()

	if procErr != nil {
		metrics.ChainEventsProcessed.WithLabelValues(string(ev.Kind), "error").Inc()
		return procErr
	}
	metrics.ChainEventsProcessed.WithLabelValues(string(ev.Kind), "ok").Inc()
	logger.Debug("Processed %s event at block %d (tx %s)", ev.Kind, ev.BlockNumber, ev.TxHash)
	return nil
}

// safeProcess 处理器 panic 不影响事件流
func (m *EventMonitor) safeProcess(ctx context.Context, ev chain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return m.processors.ProcessEvent(ctx, ev)
}

// RetryFailed 重新处理未成功的事件，返回本次处理成功的数量
func (m *EventMonitor) RetryFailed(ctx context.Context, limit int) (int, error) {
	var records []model.ChainEventModel
	if err := m.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("block_number ASC, log_index ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return 0, fmt.Errorf("获取未处理事件失败: %w", err)
	}

	succeeded := 0
	for i := range records {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		var ev chain.Event
		if err := json.Unmarshal([]byte(records[i].Data), &ev); err != nil {
			logger.Error("Stored event %s is not decodable: %v", records[i].Id, err)
			continue
		}
		if err := m.process(ctx, &records[i], ev); err != nil {
			logger.Warn("Retry of %s event in tx %s failed: %v", ev.Kind, ev.TxHash, err)
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

// handleError 记录错误并增加重试次数
func (m *EventMonitor) handleError(err error) {
	m.mu.Lock()
	m.retryCount++
	retry := m.retryCount
	m.mu.Unlock()
	logger.Error("Monitor encountered error (retry %d): %v", retry, err)
}

func (m *EventMonitor) resetRetry() {
	m.mu.Lock()
	m.retryCount = 0
	m.mu.Unlock()
}

// sleepBackoff 按重试次数线性退避，最多 30 倍基础间隔。监控停止时返回 false。
func (m *EventMonitor) sleepBackoff() bool {
	m.mu.RLock()
	retry := m.retryCount
	m.mu.RUnlock()
	if retry > 30 {
		retry = 30
	}

	timer := time.NewTimer(time.Duration(retry) * m.baseBackoff)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *EventMonitor) setRunning(running bool) {
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
}

// GetStatus 获取监控状态
func (m *EventMonitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Running:    m.running,
		LastBlock:  m.lastBlock,
		Processed:  m.processed,
		Failed:     m.failed,
		RetryCount: m.retryCount,
	}
}
