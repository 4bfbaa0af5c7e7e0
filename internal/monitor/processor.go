package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/logger"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
)

// EventProcessor 事件处理器接口
type EventProcessor interface {
	Process(ctx context.Context, ev chain.Event) error
	GetEventType() chain.EventKind
}

// ProcessorManager 事件处理器管理器
type ProcessorManager struct {
	mu         sync.RWMutex
	processors map[chain.EventKind]EventProcessor
}

// NewProcessorManager 创建处理器管理器
func NewProcessorManager(processors ...EventProcessor) *ProcessorManager {
	manager := &ProcessorManager{
		processors: make(map[chain.EventKind]EventProcessor),
	}
	for _, p := range processors {
		manager.RegisterProcessor(p)
	}
	logger.Info("ProcessorManager initialized with %d processors", len(manager.processors))
	return manager
}

// RegisterProcessor 注册事件处理器
func (pm *ProcessorManager) RegisterProcessor(processor EventProcessor) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	eventType := processor.GetEventType()
	pm.processors[eventType] = processor
	logger.Debug("Registered processor for event type: %s", eventType)
}

// GetProcessor 获取指定事件类型的处理器
func (pm *ProcessorManager) GetProcessor(eventType chain.EventKind) (EventProcessor, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	processor, exists := pm.processors[eventType]
	return processor, exists
}

// ProcessEvent 处理事件，未注册的事件类型直接跳过
func (pm *ProcessorManager) ProcessEvent(ctx context.Context, ev chain.Event) error {
	processor, exists := pm.GetProcessor(ev.Kind)
	if !exists {
		logger.Warn("No processor found for event type: %s", ev.Kind)
		return nil
	}
	return processor.Process(ctx, ev)
}

// InvestmentRecorder 由 logic.InvestmentLogic 实现
type InvestmentRecorder interface {
	RecordChainInvestment(ctx context.Context, ev chain.Event) (*model.InvestmentModel, error)
}

// InvestmentProcessor 处理 InvestmentMade 事件
type InvestmentProcessor struct {
	recorder InvestmentRecorder
}

// NewInvestmentProcessor 创建投资事件处理器
func NewInvestmentProcessor(recorder InvestmentRecorder) *InvestmentProcessor {
	return &InvestmentProcessor{recorder: recorder}
}

func (p *InvestmentProcessor) GetEventType() chain.EventKind {
	return chain.EventInvestmentMade
}

func (p *InvestmentProcessor) Process(ctx context.Context, ev chain.Event) error {
	investment, err := p.recorder.RecordChainInvestment(ctx, ev)
	if err != nil {
		return err
	}
	logger.Debug("Processed investment %s from %s on chain project %d", investment.Id, ev.Investor, ev.ChainProjectId)
	return nil
}

// MilestoneCompleter 由 logic.MilestoneLogic 实现
type MilestoneCompleter interface {
	CompleteFromChain(ctx context.Context, ev chain.Event) (*model.MilestoneModel, error)
}

// MilestoneProcessor 处理 MilestoneCompleted 事件
type MilestoneProcessor struct {
	completer MilestoneCompleter
}

// NewMilestoneProcessor 创建里程碑事件处理器
func NewMilestoneProcessor(completer MilestoneCompleter) *MilestoneProcessor {
	return &MilestoneProcessor{completer: completer}
}

func (p *MilestoneProcessor) GetEventType() chain.EventKind {
	return chain.EventMilestoneCompleted
}

func (p *MilestoneProcessor) Process(ctx context.Context, ev chain.Event) error {
	_, err := p.completer.CompleteFromChain(ctx, ev)
	return err
}

// ClaimRecorder 由 logic.InterestLogic 实现
type ClaimRecorder interface {
	RecordChainClaim(ctx context.Context, ev chain.Event) (*model.InterestModel, error)
}

// InterestClaimProcessor 处理 InterestClaimed 事件
type InterestClaimProcessor struct {
	recorder ClaimRecorder
}

// NewInterestClaimProcessor 创建利息领取事件处理器
func NewInterestClaimProcessor(recorder ClaimRecorder) *InterestClaimProcessor {
	return &InterestClaimProcessor{recorder: recorder}
}

func (p *InterestClaimProcessor) GetEventType() chain.EventKind {
	return chain.EventInterestClaimed
}

// Process 超领已经在台账中标记，不视为处理失败
func (p *InterestClaimProcessor) Process(ctx context.Context, ev chain.Event) error {
	_, err := p.recorder.RecordChainClaim(ctx, ev)
	if errors.Is(err, logic.ErrOverclaimDetected) {
		logger.Warn("Interest claim %s flagged: %v", ev.TxHash, err)
		return nil
	}
	return err
}
