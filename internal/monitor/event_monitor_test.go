package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/infrachain/server/internal/chain"
	"github.com/infrachain/server/internal/database"
	"github.com/infrachain/server/internal/logic"
	"github.com/infrachain/server/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// fakeSource 按函数字段应答订阅
type fakeSource struct {
	available   bool
	subscribeFn func(ctx context.Context, from uint64) (<-chan chain.Event, error)
}

func (f *fakeSource) Available() bool { return f.available }

func (f *fakeSource) Subscribe(ctx context.Context, from uint64) (<-chan chain.Event, error) {
	return f.subscribeFn(ctx, from)
}

// funcProcessor 按函数字段处理事件
type funcProcessor struct {
	kind      chain.EventKind
	processFn func(ctx context.Context, ev chain.Event) error
}

func (p *funcProcessor) GetEventType() chain.EventKind { return p.kind }

func (p *funcProcessor) Process(ctx context.Context, ev chain.Event) error {
	return p.processFn(ctx, ev)
}

func hashOf(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func seed(t *testing.T, db *gorm.DB, wallet string, chainProjectId int64) (*model.UserModel, *model.ProjectModel) {
	t.Helper()
	manager := &model.UserModel{Name: "pm", Role: model.RoleProjectManager, KycStatus: model.KycVerified, IsActive: true}
	if err := db.Create(manager).Error; err != nil {
		t.Fatalf("create manager: %v", err)
	}
	investor := &model.UserModel{WalletAddress: &wallet, Name: "inv", Role: model.RoleInvestor, KycStatus: model.KycVerified, IsActive: true}
	if err := db.Create(investor).Error; err != nil {
		t.Fatalf("create investor: %v", err)
	}
	project := &model.ProjectModel{
		ChainProjectId:     &chainProjectId,
		Name:               "Solar Farm",
		ManagerId:          manager.Id,
		FundingGoal:        decimal.NewFromInt(1000),
		FundsRaised:        decimal.Zero,
		FundsReleased:      decimal.Zero,
		InterestRateAnnual: decimal.NewFromInt(6),
		DurationMonths:     12,
		Status:             model.ProjectStatusActive,
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return investor, project
}

func investmentEvent(wallet string, n int, block uint64) chain.Event {
	return chain.Event{
		Kind:            chain.EventInvestmentMade,
		Contract:        chain.BondContract,
		ContractAddress: "0x00000000000000000000000000000000000000b0",
		ChainProjectId:  1,
		Investor:        wallet,
		Amount:          decimal.NewFromInt(100),
		Tokens:          decimal.NewFromInt(100),
		Timestamp:       time.Unix(1700000000, 0).UTC(),
		TxHash:          hashOf(n),
		BlockNumber:     block,
		LogIndex:        0,
	}
}

func newLogicMonitor(db *gorm.DB, source EventSource) *EventMonitor {
	processors := NewProcessorManager(
		NewInvestmentProcessor(logic.NewInvestmentLogic(db, nil)),
		NewMilestoneProcessor(logic.NewMilestoneLogic(db)),
		NewInterestClaimProcessor(logic.NewInterestLogic(db, nil)),
	)
	return NewEventMonitor(source, db, processors)
}

func TestHandleEvent_RecordsAndDeduplicates(t *testing.T) {
	db := openTestDB(t)
	wallet := "0x00000000000000000000000000000000000000a1"
	_, project := seed(t, db, wallet, 1)
	m := newLogicMonitor(db, &fakeSource{})
	ctx := context.Background()

	ev := investmentEvent(wallet, 1, 10)
	if err := m.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if err := m.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("replayed HandleEvent: %v", err)
	}

	var stored []model.ChainEventModel
	db.Find(&stored)
	if len(stored) != 1 || !stored[0].Processed || stored[0].EventName != string(chain.EventInvestmentMade) {
		t.Fatalf("unexpected chain events %+v", stored)
	}
	var p model.ProjectModel
	db.First(&p, "id = ?", project.Id)
	if !p.FundsRaised.Equal(decimal.NewFromInt(100)) || p.InvestorCount != 1 {
		t.Fatalf("unexpected project aggregates %s/%d", p.FundsRaised, p.InvestorCount)
	}
	if s := m.GetStatus(); s.Processed != 1 || s.LastBlock != 10 {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestHandleEvent_FailureIsRetried(t *testing.T) {
	db := openTestDB(t)
	_, project := seed(t, db, "0x00000000000000000000000000000000000000a1", 1)
	m := newLogicMonitor(db, &fakeSource{})
	ctx := context.Background()

	// 钱包尚未注册
	late := "0x00000000000000000000000000000000000000a2"
	ev := investmentEvent(late, 2, 11)
	if err := m.HandleEvent(ctx, ev); !errors.Is(err, logic.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var stored model.ChainEventModel
	db.First(&stored, "tx_hash = ?", ev.TxHash)
	if stored.Processed || stored.Error == "" {
		t.Fatalf("failure not recorded: %+v", stored)
	}

	if err := db.Create(&model.UserModel{WalletAddress: &late, Name: "late", Role: model.RoleInvestor, KycStatus: model.KycPending, IsActive: true}).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	n, err := m.RetryFailed(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("expected one retried event, got %d err=%v", n, err)
	}
	db.First(&stored, "tx_hash = ?", ev.TxHash)
	if !stored.Processed || stored.Error != "" {
		t.Fatalf("retry not recorded: %+v", stored)
	}
	var p model.ProjectModel
	db.First(&p, "id = ?", project.Id)
	if !p.FundsRaised.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected fundsRaised 100 after retry, got %s", p.FundsRaised)
	}
}

func TestHandleEvent_RecoversProcessorPanic(t *testing.T) {
	db := openTestDB(t)
	processors := NewProcessorManager(&funcProcessor{
		kind:      chain.EventMilestoneCompleted,
		processFn: func(context.Context, chain.Event) error { panic("boom") },
	})
	m := NewEventMonitor(&fakeSource{}, db, processors)

	err := m.HandleEvent(context.Background(), chain.Event{Kind: chain.EventMilestoneCompleted, TxHash: hashOf(3), BlockNumber: 4})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if s := m.GetStatus(); s.Failed != 1 {
		t.Fatalf("expected one failed event, got %+v", s)
	}
}

func TestHandleEvent_UnknownKindSkipped(t *testing.T) {
	db := openTestDB(t)
	m := NewEventMonitor(&fakeSource{}, db, NewProcessorManager())
	if err := m.HandleEvent(context.Background(), chain.Event{Kind: "Transfer", TxHash: hashOf(5)}); err != nil {
		t.Fatalf("unknown event kind should be skipped, got %v", err)
	}
}

func TestStart_UnavailableIsNoop(t *testing.T) {
	db := openTestDB(t)
	source := &fakeSource{subscribeFn: func(context.Context, uint64) (<-chan chain.Event, error) {
		t.Fatal("subscribe must not be called when chain is unavailable")
		return nil, nil
	}}
	m := NewEventMonitor(source, db, NewProcessorManager())
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()
	if m.GetStatus().Running {
		t.Fatal("monitor should not be running")
	}
}

func TestLoop_ResubscribesFromLastRecordedBlock(t *testing.T) {
	db := openTestDB(t)
	wallet := "0x00000000000000000000000000000000000000a1"
	seed(t, db, wallet, 1)

	var mu sync.Mutex
	var froms []uint64
	resubscribed := make(chan struct{})
	source := &fakeSource{available: true}
	source.subscribeFn = func(ctx context.Context, from uint64) (<-chan chain.Event, error) {
		mu.Lock()
		froms = append(froms, from)
		call := len(froms)
		mu.Unlock()

		out := make(chan chain.Event, 2)
		switch call {
		case 1:
			out <- investmentEvent(wallet, 10, 30)
			out <- investmentEvent(wallet, 11, 31)
			close(out)
		case 2:
			close(resubscribed)
			go func() {
				<-ctx.Done()
				close(out)
			}()
		default:
			close(out)
		}
		return out, nil
	}

	m := newLogicMonitor(db, source)
	m.baseBackoff = time.Millisecond
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-resubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not resubscribe after stream closed")
	}
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if froms[0] != 0 || froms[1] != 31 {
		t.Fatalf("expected subscriptions from 0 then 31, got %v", froms)
	}
	if s := m.GetStatus(); s.Processed != 2 || s.Running {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestLoop_ExitsWhenNoContracts(t *testing.T) {
	db := openTestDB(t)
	source := &fakeSource{available: true, subscribeFn: func(context.Context, uint64) (<-chan chain.Event, error) {
		out := make(chan chain.Event)
		close(out)
		return out, chain.ErrContractUnavailable
	}}
	m := NewEventMonitor(source, db, NewProcessorManager())
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for m.GetStatus().Running {
		select {
		case <-deadline:
			t.Fatal("monitor did not exit")
		case <-time.After(5 * time.Millisecond):
		}
	}
	m.Stop()
}
